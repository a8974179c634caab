package voucher

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// JournalLine is one posting row. Tax rows carry a MappingKey instead of a
// ledger id; the posting gateway resolves it through the ledger mappings.
type JournalLine struct {
	LedgerID   *int64          `json:"ledger_id,omitempty"`
	LedgerName string          `json:"ledger_name"`
	MappingKey string          `json:"mapping_key,omitempty"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Memo       string          `json:"memo,omitempty"`
}

// TaxMappingKey names the ledger mapping for a tax component.
func TaxMappingKey(account, kind string) string {
	return fmt.Sprintf("tax.%s.%s", account, kind)
}

// JournalLines flattens a postable draft into balanced journal rows. Zero
// rows are skipped and negative amounts move to the opposite side.
func (e *Engine) JournalLines(d Draft) ([]JournalLine, error) {
	if err := e.CheckPostable(d); err != nil {
		return nil, err
	}
	rules, err := RulesFor(d.Type)
	if err != nil {
		return nil, err
	}
	totals, err := e.Aggregate(d)
	if err != nil {
		return nil, err
	}

	var lines []JournalLine
	push := func(ref LedgerRef, key string, side Side, amount decimal.Decimal, memo string) {
		if amount.IsZero() {
			return
		}
		if amount.IsNegative() {
			side = side.Opposite()
			amount = amount.Neg()
		}
		line := JournalLine{LedgerID: ref.ID, LedgerName: ref.Name, MappingKey: key, Debit: decimal.Zero, Credit: decimal.Zero, Memo: memo}
		if side == Debit {
			line.Debit = amount
		} else {
			line.Credit = amount
		}
		lines = append(lines, line)
	}

	manual, _, additional := activeCollections(d.Mode)
	if d.Mode == ModeItemInvoice && rules.Direction != nil {
		dir := rules.Direction
		value := decimal.Zero
		for _, l := range d.StockEntries {
			value = value.Add(l.Amount)
		}
		push(d.Party.Ledger, "", dir.Party, totals.PartyAmount, d.Narration)
		push(d.ValueLedger, "", dir.Value, value, "")
		for _, t := range d.TaxEntries {
			push(LedgerRef{Name: t.Kind}, TaxMappingKey(dir.TaxAccount, t.Kind), dir.Tax, t.Amount, fmt.Sprintf("%s @ %s%%", t.Kind, t.Rate.String()))
		}
	}
	if manual {
		for _, m := range d.ManualEntries {
			push(m.Ledger, "", Debit, m.Debit, m.Narration)
			push(m.Ledger, "", Credit, m.Credit, m.Narration)
		}
	}
	if additional {
		for _, a := range d.AdditionalLedgers {
			push(a.Ledger, "", a.Direction, a.Amount, "")
		}
	}
	return lines, nil
}

// Fingerprint hashes every user-editable field of d, ignoring version and
// derived totals, so retries of the same edit state share a value.
func Fingerprint(d Draft) (string, error) {
	payload := struct {
		Type       VoucherType        `json:"t"`
		Mode       EntryMode          `json:"m"`
		Date       string             `json:"d"`
		Number     string             `json:"n"`
		Reference  string             `json:"r"`
		Narration  string             `json:"nr"`
		Juris      string             `json:"j"`
		Region     string             `json:"cr"`
		Options    Options            `json:"o"`
		Party      *Party             `json:"p"`
		Value      LedgerRef          `json:"v"`
		Manual     []ManualEntry      `json:"me"`
		Stock      []StockLine        `json:"se"`
		Additional []AdditionalLedger `json:"al"`
	}{
		Type:       d.Type,
		Mode:       d.Mode,
		Date:       d.Date.Format("2006-01-02"),
		Number:     d.Number,
		Reference:  d.Reference,
		Narration:  d.Narration,
		Juris:      d.Jurisdiction,
		Region:     d.CompanyRegion,
		Options:    d.Options,
		Party:      d.Party,
		Value:      d.ValueLedger,
		Manual:     d.ManualEntries,
		Stock:      d.StockEntries,
		Additional: d.AdditionalLedgers,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("voucher: fingerprint: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
