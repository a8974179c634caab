package cli

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledgerdesk/internal/app"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

var version = "0.1.0"

// NewRootCommand assembles the voucherctl command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "voucherctl",
		Short: "Offline voucher tooling for ledgerdesk",
		Long: `voucherctl runs the voucher engine without the API server.

It splits tax for a set of lines, derives totals and journal rows for a draft
file, and manages the background job queue.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().String("tax-table", "", "YAML jurisdiction table (default: built-in IN/US)")
	root.PersistentFlags().String("jurisdiction", "", "Default jurisdiction code (default: IN)")

	root.AddCommand(newSplitCommand(), newDeriveCommand(), newJobsCommand())
	return root
}

func engineFromFlags(cmd *cobra.Command) (*voucher.Engine, error) {
	path, _ := cmd.Flags().GetString("tax-table")
	code, _ := cmd.Flags().GetString("jurisdiction")
	return app.NewEngine(&app.Config{TaxTablePath: path, DefaultJurisdiction: code})
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)).With(slog.String("command", cmd.Name()))
}
