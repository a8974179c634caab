package app

import (
	"fmt"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// NewEngine builds the voucher engine from the configured jurisdiction table.
func NewEngine(cfg *Config) (*voucher.Engine, error) {
	table := tax.DefaultTable()
	jurisdiction := "IN"
	if cfg != nil {
		if cfg.TaxTablePath != "" {
			loaded, err := tax.LoadTableFile(cfg.TaxTablePath)
			if err != nil {
				return nil, fmt.Errorf("load tax table: %w", err)
			}
			table = loaded
		}
		if cfg.DefaultJurisdiction != "" {
			jurisdiction = cfg.DefaultJurisdiction
		}
	}
	if _, err := table.Lookup(jurisdiction); err != nil {
		return nil, fmt.Errorf("default jurisdiction: %w", err)
	}
	return voucher.NewEngine(table, jurisdiction), nil
}
