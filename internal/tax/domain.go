package tax

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownJurisdiction indicates the code is missing from the table.
	ErrUnknownJurisdiction = errors.New("tax: unknown jurisdiction")
	// ErrNegativeRate indicates a rate below zero.
	ErrNegativeRate = errors.New("tax: rate must not be negative")
	// ErrInvalidTable indicates a malformed jurisdiction table.
	ErrInvalidTable = errors.New("tax: invalid jurisdiction table")
)

var hundred = decimal.NewFromInt(100)

// Component names one tax head and the share of the line rate it carries.
type Component struct {
	Name  string
	Share decimal.Decimal
}

// Jurisdiction describes how a tax rate is split for one tax authority.
type Jurisdiction struct {
	Code            string
	Currency        string
	MinorUnitDigits int32
	// DefaultRate is the standard line rate in percent, applied to lines
	// that arrive without one.
	DefaultRate decimal.Decimal
	IntraState  []Component
	// InterState is empty for jurisdictions without a dual-component rule.
	InterState []Component
}

// Epsilon returns one minor currency unit.
func (j Jurisdiction) Epsilon() decimal.Decimal {
	return decimal.New(1, -j.MinorUnitDigits)
}

// HasDualRule reports whether supply across regions changes the split.
func (j Jurisdiction) HasDualRule() bool {
	return len(j.InterState) > 0
}

// Place carries the regions that decide the split rule.
type Place struct {
	CompanyRegion string
	SupplyRegion  string
}

// Interstate reports whether the supply leaves the company's region.
func (p Place) Interstate() bool {
	return p.SupplyRegion != "" && p.SupplyRegion != p.CompanyRegion
}

// Entry is one derived tax component.
type Entry struct {
	Kind    string          `json:"kind"`
	Rate    decimal.Decimal `json:"rate"`
	Taxable decimal.Decimal `json:"taxable"`
	Amount  decimal.Decimal `json:"amount"`
}

// RatedAmount pairs a taxable amount with its line tax rate.
type RatedAmount struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
}

// Round applies round-half-to-even at the given number of decimal digits.
func Round(d decimal.Decimal, digits int32) decimal.Decimal {
	return d.RoundBank(digits)
}
