package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

type deriveOutput struct {
	Fingerprint string                `json:"fingerprint"`
	Totals      voucher.Totals        `json:"totals"`
	TaxEntries  []tax.Entry           `json:"tax_entries"`
	Journal     []voucher.JournalLine `json:"journal,omitempty"`
	Problem     string                `json:"problem,omitempty"`
}

func newDeriveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive FILE",
		Short: "Recompute tax, totals and journal rows for a draft JSON file",
		Example: `  voucherctl derive draft.json
  voucherctl derive --journal draft.json`,
		Args: cobra.ExactArgs(1),
		RunE: runDerive,
	}
	cmd.Flags().Bool("journal", false, "Also build journal rows when the draft is postable")
	return cmd
}

func runDerive(cmd *cobra.Command, args []string) error {
	engine, err := engineFromFlags(cmd)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read draft: %w", err)
	}
	var draft voucher.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return fmt.Errorf("decode draft: %w", err)
	}
	if draft.Jurisdiction == "" {
		draft.Jurisdiction = engine.DefaultJurisdiction()
	}
	j, err := engine.Table().Lookup(draft.Jurisdiction)
	if err != nil {
		return err
	}
	for i, line := range draft.StockEntries {
		calculated, err := voucher.CalculateLine(line, j.MinorUnitDigits, draft.Options.AllowNegativeQuantity)
		if err != nil {
			return fmt.Errorf("stock line %d: %w", i, err)
		}
		draft.StockEntries[i] = calculated
	}
	derived, err := engine.Derive(draft)
	if err != nil {
		return err
	}
	fingerprint, err := voucher.Fingerprint(derived)
	if err != nil {
		return err
	}
	out := deriveOutput{Fingerprint: fingerprint, Totals: derived.Totals, TaxEntries: derived.TaxEntries}
	if withJournal, _ := cmd.Flags().GetBool("journal"); withJournal {
		lines, err := engine.JournalLines(derived)
		if err != nil {
			out.Problem = err.Error()
		} else {
			out.Journal = lines
		}
	}
	return writeJSON(cmd, out)
}
