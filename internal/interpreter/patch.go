package interpreter

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// PatchActions translates a validated patch into draft actions. Only
// primitive inputs are set: quantities, rates, amounts and ledger names.
// Amounts, tax and totals are derived by the engine afterwards. Entries
// naming a tax component are skipped because tax is always recomputed.
func PatchActions(p Patch, current voucher.Draft, table tax.Table, resolver voucher.LedgerResolver) ([]voucher.Action, error) {
	rules, err := voucher.RulesFor(p.VoucherType)
	if err != nil {
		return nil, err
	}
	var stock, other []PatchEntry
	for _, e := range p.Entries {
		if e.StockItem != "" {
			stock = append(stock, e)
		} else {
			other = append(other, e)
		}
	}
	mode := voucher.ModeAccounting
	if len(stock) > 0 {
		if !rules.Stock {
			return nil, fmt.Errorf("%w: %s vouchers carry no stock lines", ErrPatchRejected, p.VoucherType)
		}
		mode = voucher.ModeItemInvoice
	}

	narration := p.Narration
	actions := []voucher.Action{
		voucher.SetType{Type: p.VoucherType},
		voucher.SetMode{Mode: mode},
		voucher.SetHeader{Narration: &narration},
		voucher.ResetLines{},
	}
	if p.Party != "" && rules.PartyRole {
		party := voucher.Party{Ledger: voucher.LedgerRef{Name: p.Party}}
		if current.Party != nil && fold(current.Party.Ledger.Name) == fold(p.Party) {
			party = *current.Party
		}
		actions = append(actions, voucher.SetParty{Party: &party})
	}

	if mode == voucher.ModeItemInvoice {
		skip := taxKinds(table, current.Jurisdiction)
		fallback := lineTaxRate(p, stock, other, skip, table, current.Jurisdiction)
		lines, err := stockActions(p, stock, current, fallback)
		if err != nil {
			return nil, err
		}
		actions = append(actions, lines...)
		for _, e := range other {
			if skip[fold(e.Ledger)] || (p.Party != "" && fold(e.Ledger) == fold(p.Party)) {
				continue
			}
			actions = append(actions, voucher.AddAdditionalLedger{Line: voucher.AdditionalLedger{
				Ledger:    voucher.LedgerRef{Name: e.Ledger},
				Amount:    e.Amount,
				Direction: e.Side,
			}})
		}
	} else {
		for _, e := range p.Entries {
			amount := e.Amount
			if amount.IsZero() {
				amount = p.Amount
			}
			actions = append(actions, voucher.AddManualEntry{Entry: manualEntry(e.Ledger, e.Side, amount)})
		}
		if len(p.Entries) == 0 {
			actions = append(actions, cashLegs(p, rules)...)
		}
	}
	return append(actions, voucher.ResolveLedgers{Resolver: resolver}), nil
}

// lineTaxRate picks the rate for stock lines the draft does not know yet:
// the rate implied by tax entries in the patch, else the jurisdiction's
// default rate.
func lineTaxRate(p Patch, stock, other []PatchEntry, taxKind map[string]bool, table tax.Table, code string) decimal.Decimal {
	taxTotal := decimal.Zero
	for _, e := range other {
		if taxKind[fold(e.Ledger)] {
			taxTotal = taxTotal.Add(e.Amount)
		}
	}
	value := decimal.Zero
	for _, e := range stock {
		amount := e.Amount
		if amount.IsZero() && len(stock) == 1 {
			amount = p.Amount
		}
		value = value.Add(amount)
	}
	if taxTotal.IsPositive() && value.IsPositive() {
		return taxTotal.Div(value).Mul(decimal.NewFromInt(100)).RoundBank(2)
	}
	j, err := table.Lookup(code)
	if err != nil {
		return decimal.Zero
	}
	return j.DefaultRate
}

func stockActions(p Patch, stock []PatchEntry, current voucher.Draft, fallback decimal.Decimal) ([]voucher.Action, error) {
	known := make(map[string]decimal.Decimal, len(current.StockEntries))
	for _, l := range current.StockEntries {
		if l.Item.Name != "" {
			known[fold(l.Item.Name)] = l.TaxRate
		}
	}
	var out []voucher.Action
	for i, e := range stock {
		qty := decimal.NewFromInt(1)
		if e.Quantity != nil {
			qty = *e.Quantity
		}
		amount := e.Amount
		if amount.IsZero() && len(stock) == 1 {
			amount = p.Amount
		}
		var rate decimal.Decimal
		switch {
		case e.Rate != nil:
			rate = *e.Rate
		case qty.IsZero():
			return nil, fmt.Errorf("%w: %s has neither quantity nor rate", ErrPatchRejected, e.StockItem)
		default:
			rate = amount.Div(qty)
		}
		taxRate, ok := known[fold(e.StockItem)]
		if !ok {
			taxRate = fallback
		}
		out = append(out, voucher.AddStockLine{Line: voucher.StockLine{
			Item:     voucher.ItemRef{Name: e.StockItem},
			Quantity: qty,
			Rate:     rate,
			TaxRate:  taxRate,
		}})
		if i == 0 && e.Ledger != "" {
			out = append(out, voucher.SetValueLedger{Ledger: voucher.LedgerRef{Name: e.Ledger}})
		}
	}
	return out, nil
}

// cashLegs builds the two manual lines of a receipt or payment given only a
// party and an amount. The cash side is left without a ledger so posting
// stays blocked until the user picks one.
func cashLegs(p Patch, rules voucher.TypeRules) []voucher.Action {
	if p.Party == "" || !p.Amount.IsPositive() || !rules.PartyRole || rules.Stock {
		return nil
	}
	partySide := voucher.Debit
	if p.VoucherType == voucher.TypeReceipt {
		partySide = voucher.Credit
	}
	return []voucher.Action{
		voucher.AddManualEntry{Entry: manualEntry(p.Party, partySide, p.Amount)},
		voucher.AddManualEntry{Entry: manualEntry("", partySide.Opposite(), p.Amount)},
	}
}

func manualEntry(ledger string, side voucher.Side, amount decimal.Decimal) voucher.ManualEntry {
	e := voucher.ManualEntry{Ledger: voucher.LedgerRef{Name: ledger}}
	if side == voucher.Debit {
		e.Debit = amount
	} else {
		e.Credit = amount
	}
	return e
}

func taxKinds(table tax.Table, code string) map[string]bool {
	out := map[string]bool{}
	j, err := table.Lookup(code)
	if err != nil {
		return out
	}
	for _, c := range append(append([]tax.Component(nil), j.IntraState...), j.InterState...) {
		out[fold(c.Name)] = true
	}
	return out
}
