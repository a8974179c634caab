package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
)

func newSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split tax for taxable lines into jurisdiction components",
		Example: `  # Intra-state Indian supply at 18%
  voucherctl split --company-region MH --place-of-supply MH --line 500@18

  # Mixed rates, inter-state
  voucherctl split --company-region MH --place-of-supply KA --line 1000@5 --line 200@12`,
		RunE: runSplit,
	}
	cmd.Flags().String("company-region", "", "Region of the company")
	cmd.Flags().String("place-of-supply", "", "Region of supply")
	cmd.Flags().StringArray("line", nil, "Taxable line as AMOUNT@RATE (repeatable)")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}

func runSplit(cmd *cobra.Command, _ []string) error {
	engine, err := engineFromFlags(cmd)
	if err != nil {
		return err
	}
	raw, _ := cmd.Flags().GetStringArray("line")
	lines := make([]tax.RatedAmount, 0, len(raw))
	for _, entry := range raw {
		line, err := parseRatedAmount(entry)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}
	company, _ := cmd.Flags().GetString("company-region")
	supply, _ := cmd.Flags().GetString("place-of-supply")
	place := tax.Place{
		CompanyRegion: strings.ToUpper(strings.TrimSpace(company)),
		SupplyRegion:  strings.ToUpper(strings.TrimSpace(supply)),
	}
	entries, err := engine.Table().Split(engine.DefaultJurisdiction(), lines, place)
	if err != nil {
		return err
	}
	return writeJSON(cmd, map[string]any{
		"jurisdiction": engine.DefaultJurisdiction(),
		"entries":      entries,
		"total":        tax.Sum(entries),
	})
}

func parseRatedAmount(s string) (tax.RatedAmount, error) {
	amount, rate, ok := strings.Cut(s, "@")
	if !ok {
		return tax.RatedAmount{}, fmt.Errorf("line %q: expected AMOUNT@RATE", s)
	}
	a, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return tax.RatedAmount{}, fmt.Errorf("line %q: amount: %w", s, err)
	}
	r, err := decimal.NewFromString(strings.TrimSpace(rate))
	if err != nil {
		return tax.RatedAmount{}, fmt.Errorf("line %q: rate: %w", s, err)
	}
	return tax.RatedAmount{Amount: a, Rate: r}, nil
}
