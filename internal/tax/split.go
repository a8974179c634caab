package tax

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ComputeSplit derives the tax components for lines sharing one rate.
// Components are rebuilt from the supplied amounts on every call.
func (t Table) ComputeSplit(code string, lineAmounts []decimal.Decimal, place Place, rate decimal.Decimal) ([]Entry, error) {
	j, err := t.Lookup(code)
	if err != nil {
		return nil, err
	}
	return j.split(lineAmounts, place, rate)
}

// Split groups amounts by rate and concatenates each group's components in
// ascending rate order.
func (t Table) Split(code string, lines []RatedAmount, place Place) ([]Entry, error) {
	j, err := t.Lookup(code)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]decimal.Decimal)
	rates := make(map[string]decimal.Decimal)
	for _, line := range lines {
		key := line.Rate.String()
		groups[key] = append(groups[key], line.Amount)
		rates[key] = line.Rate
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool {
		return rates[keys[a]].LessThan(rates[keys[b]])
	})
	var out []Entry
	for _, key := range keys {
		entries, err := j.split(groups[key], place, rates[key])
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (j Jurisdiction) split(lineAmounts []decimal.Decimal, place Place, rate decimal.Decimal) ([]Entry, error) {
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeRate, rate)
	}
	taxable := decimal.Zero
	for _, amount := range lineAmounts {
		taxable = taxable.Add(amount)
	}
	if taxable.IsZero() {
		return nil, nil
	}
	total := Round(taxable.Mul(rate).Div(hundred), j.MinorUnitDigits)
	if total.IsZero() {
		return nil, nil
	}

	components := j.IntraState
	if place.Interstate() && j.HasDualRule() {
		components = j.InterState
	}

	out := make([]Entry, 0, len(components))
	remaining := total
	for idx, c := range components {
		amount := remaining
		if idx < len(components)-1 {
			amount = Round(total.Mul(c.Share), j.MinorUnitDigits)
			remaining = remaining.Sub(amount)
		}
		out = append(out, Entry{
			Kind:    c.Name,
			Rate:    rate.Mul(c.Share),
			Taxable: taxable,
			Amount:  amount,
		})
	}
	return out, nil
}

// Sum totals the amounts of the given entries.
func Sum(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
