package tax

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Table maps jurisdiction codes to their split rules. It is supplied by the
// caller so new jurisdictions never touch calculation code.
type Table map[string]Jurisdiction

// DefaultTable returns the built-in table used when no file is configured.
func DefaultTable() Table {
	half := decimal.RequireFromString("0.5")
	return Table{
		"IN": {
			Code:            "IN",
			Currency:        "INR",
			MinorUnitDigits: 2,
			DefaultRate:     decimal.NewFromInt(18),
			IntraState:      []Component{{Name: "CGST", Share: half}, {Name: "SGST", Share: half}},
			InterState:      []Component{{Name: "IGST", Share: decimal.NewFromInt(1)}},
		},
		"US": {
			Code:            "US",
			Currency:        "USD",
			MinorUnitDigits: 2,
			IntraState:      []Component{{Name: "SALES_TAX", Share: decimal.NewFromInt(1)}},
		},
	}
}

// Lookup returns the jurisdiction for code.
func (t Table) Lookup(code string) (Jurisdiction, error) {
	j, ok := t[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Jurisdiction{}, fmt.Errorf("%w: %q", ErrUnknownJurisdiction, code)
	}
	return j, nil
}

// Validate checks every jurisdiction for usable split rules.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidTable)
	}
	for code, j := range t {
		if j.MinorUnitDigits < 0 || j.MinorUnitDigits > 4 {
			return fmt.Errorf("%w: %s minor unit digits %d", ErrInvalidTable, code, j.MinorUnitDigits)
		}
		if j.DefaultRate.IsNegative() {
			return fmt.Errorf("%w: %s default rate %s", ErrInvalidTable, code, j.DefaultRate)
		}
		if len(j.IntraState) == 0 {
			return fmt.Errorf("%w: %s has no components", ErrInvalidTable, code)
		}
		if err := validateComponents(code, j.IntraState); err != nil {
			return err
		}
		if j.HasDualRule() {
			if err := validateComponents(code, j.InterState); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateComponents(code string, components []Component) error {
	total := decimal.Zero
	for _, c := range components {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: %s component without name", ErrInvalidTable, code)
		}
		if !c.Share.IsPositive() {
			return fmt.Errorf("%w: %s component %s share must be positive", ErrInvalidTable, code, c.Name)
		}
		total = total.Add(c.Share)
	}
	if !total.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s shares sum to %s", ErrInvalidTable, code, total)
	}
	return nil
}

type fileTable struct {
	Jurisdictions []fileJurisdiction `yaml:"jurisdictions"`
}

type fileJurisdiction struct {
	Code            string          `yaml:"code"`
	Currency        string          `yaml:"currency"`
	MinorUnitDigits int32           `yaml:"minor_unit_digits"`
	DefaultRate     string          `yaml:"default_rate"`
	IntraState      []fileComponent `yaml:"intra_state"`
	InterState      []fileComponent `yaml:"inter_state"`
}

type fileComponent struct {
	Name  string `yaml:"name"`
	Share string `yaml:"share"`
}

// LoadTable parses a YAML jurisdiction table.
func LoadTable(r io.Reader) (Table, error) {
	var raw fileTable
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	table := make(Table, len(raw.Jurisdictions))
	for _, fj := range raw.Jurisdictions {
		code := strings.ToUpper(strings.TrimSpace(fj.Code))
		if code == "" {
			return nil, fmt.Errorf("%w: jurisdiction without code", ErrInvalidTable)
		}
		intra, err := parseComponents(code, fj.IntraState)
		if err != nil {
			return nil, err
		}
		inter, err := parseComponents(code, fj.InterState)
		if err != nil {
			return nil, err
		}
		rate := decimal.Zero
		if s := strings.TrimSpace(fj.DefaultRate); s != "" {
			if rate, err = decimal.NewFromString(s); err != nil {
				return nil, fmt.Errorf("%w: %s default rate %q", ErrInvalidTable, code, fj.DefaultRate)
			}
		}
		table[code] = Jurisdiction{
			Code:            code,
			Currency:        fj.Currency,
			MinorUnitDigits: fj.MinorUnitDigits,
			DefaultRate:     rate,
			IntraState:      intra,
			InterState:      inter,
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadTableFile reads a table from path, or returns DefaultTable when path is empty.
func LoadTableFile(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tax: open table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

func parseComponents(code string, in []fileComponent) ([]Component, error) {
	out := make([]Component, 0, len(in))
	for _, fc := range in {
		share, err := decimal.NewFromString(strings.TrimSpace(fc.Share))
		if err != nil {
			return nil, fmt.Errorf("%w: %s component %s share %q", ErrInvalidTable, code, fc.Name, fc.Share)
		}
		out = append(out, Component{Name: strings.TrimSpace(fc.Name), Share: share})
	}
	return out, nil
}
