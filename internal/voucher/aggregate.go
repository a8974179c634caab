package voucher

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
)

// Aggregate sums every active contribution of d into debit and credit
// totals. In item-invoice mode the party line is the balancing figure, so
// the party amount equals value plus tax plus or minus additional ledgers.
func (e *Engine) Aggregate(d Draft) (Totals, error) {
	rules, err := RulesFor(d.Type)
	if err != nil {
		return Totals{}, invalid("voucher_type", err)
	}
	var (
		debit     = decimal.Zero
		credit    = decimal.Zero
		hasAmount bool
	)
	add := func(side Side, amount decimal.Decimal) {
		if amount.IsZero() {
			return
		}
		hasAmount = true
		if side == Debit {
			debit = debit.Add(amount)
			return
		}
		credit = credit.Add(amount)
	}

	totals := Totals{PartyAmount: decimal.Zero}
	manual, _, additional := activeCollections(d.Mode)

	if d.Mode == ModeItemInvoice && rules.Direction != nil {
		dir := rules.Direction
		value := decimal.Zero
		for _, l := range d.StockEntries {
			value = value.Add(l.Amount)
		}
		taxTotal := tax.Sum(d.TaxEntries)
		add(dir.Value, value)
		add(dir.Tax, taxTotal)

		party := value.Add(taxTotal)
		for _, a := range d.AdditionalLedgers {
			add(a.Direction, a.Amount)
			if a.Direction == dir.Value {
				party = party.Add(a.Amount)
			} else {
				party = party.Sub(a.Amount)
			}
		}
		add(dir.Party, party)
		totals.PartyAmount = party
	} else {
		if manual {
			for _, m := range d.ManualEntries {
				add(Debit, m.Debit)
				add(Credit, m.Credit)
			}
		}
		if additional {
			for _, a := range d.AdditionalLedgers {
				add(a.Direction, a.Amount)
			}
		}
	}

	j, err := e.table.Lookup(d.Jurisdiction)
	if err != nil {
		return Totals{}, invalid("jurisdiction", err)
	}
	totals.TotalDebit = debit
	totals.TotalCredit = credit
	totals.Difference = debit.Sub(credit)
	totals.IsBalanced = totals.Difference.Abs().LessThan(j.Epsilon())
	totals.IsEmpty = !hasAmount
	totals.IsZero = debit.IsZero() && credit.IsZero()
	return totals, nil
}
