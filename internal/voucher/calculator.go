package voucher

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
)

var hundred = decimal.NewFromInt(100)

// CalculateLine validates the primitive inputs of line and fills Amount,
// TaxAmount and TotalAmount, each rounded once at digits.
func CalculateLine(line StockLine, digits int32, allowNegative bool) (StockLine, error) {
	if err := checkLineInputs(line, allowNegative); err != nil {
		return line, err
	}
	line = deriveAmount(line, digits)
	return deriveTax(line, digits), nil
}

func checkLineInputs(line StockLine, allowNegative bool) error {
	if line.Quantity.IsNegative() && !allowNegative {
		return ErrInvalidQuantity
	}
	if line.Rate.IsNegative() {
		return ErrInvalidRate
	}
	if line.TaxRate.IsNegative() {
		return ErrInvalidTaxRate
	}
	return nil
}

func deriveAmount(line StockLine, digits int32) StockLine {
	line.Amount = tax.Round(line.Quantity.Mul(line.Rate), digits)
	return line
}

func deriveTax(line StockLine, digits int32) StockLine {
	line.TaxAmount = tax.Round(line.Amount.Mul(line.TaxRate).Div(hundred), digits)
	line.TotalAmount = line.Amount.Add(line.TaxAmount)
	return line
}

// StockPatch changes selected fields of a stock line; nil fields are kept.
type StockPatch struct {
	Item     *ItemRef
	Quantity *decimal.Decimal
	Rate     *decimal.Decimal
	TaxRate  *decimal.Decimal
	GodownID *int64
	Batch    *string
	Serial   *string
}

// UpdateLine applies patch and re-derives only what the change affects:
// quantity or rate recompute the amount, and amount or tax rate recompute tax
// and total. Other fields leave derived values untouched.
func UpdateLine(line StockLine, patch StockPatch, digits int32, allowNegative bool) (StockLine, error) {
	next := line
	if patch.Item != nil {
		next.Item = *patch.Item
	}
	if patch.GodownID != nil {
		next.GodownID = patch.GodownID
	}
	if patch.Batch != nil {
		next.Batch = *patch.Batch
	}
	if patch.Serial != nil {
		next.Serial = *patch.Serial
	}
	amountChanged := false
	if patch.Quantity != nil && !patch.Quantity.Equal(line.Quantity) {
		next.Quantity = *patch.Quantity
		amountChanged = true
	}
	if patch.Rate != nil && !patch.Rate.Equal(line.Rate) {
		next.Rate = *patch.Rate
		amountChanged = true
	}
	taxChanged := false
	if patch.TaxRate != nil && !patch.TaxRate.Equal(line.TaxRate) {
		next.TaxRate = *patch.TaxRate
		taxChanged = true
	}
	if !amountChanged && !taxChanged {
		return next, nil
	}
	if err := checkLineInputs(next, allowNegative); err != nil {
		return line, err
	}
	if amountChanged {
		next = deriveAmount(next, digits)
	}
	return deriveTax(next, digits), nil
}
