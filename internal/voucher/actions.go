package voucher

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is one edit applied by Engine.Apply.
type Action interface {
	apply(d *Draft, e *Engine) error
}

// LedgerResolver maps a free-text ledger name to a reference. Unknown or
// ambiguous names come back with a nil ID.
type LedgerResolver interface {
	Resolve(name string) LedgerRef
}

// SetHeader changes header fields; nil fields are kept.
type SetHeader struct {
	Number    *string
	Reference *string
	Narration *string
	Date      *time.Time
}

func (a SetHeader) apply(d *Draft, _ *Engine) error {
	if a.Number != nil {
		d.Number = strings.TrimSpace(*a.Number)
	}
	if a.Reference != nil {
		d.Reference = strings.TrimSpace(*a.Reference)
	}
	if a.Narration != nil {
		d.Narration = *a.Narration
	}
	if a.Date != nil {
		d.Date = *a.Date
	}
	return nil
}

// SetType switches the voucher type. An entry mode the new type forbids is
// replaced by its default mode, and a party is dropped when the type has none.
type SetType struct {
	Type VoucherType
}

func (a SetType) apply(d *Draft, _ *Engine) error {
	rules, err := RulesFor(a.Type)
	if err != nil {
		return invalid("voucher_type", err)
	}
	d.Type = a.Type
	if !rules.PartyRole {
		d.Party = nil
	}
	if !rules.Allows(d.Mode) {
		switchMode(d, rules.DefaultMode())
	}
	return nil
}

// SetMode switches the entry mode. Collections that become inactive are
// cleared and newly active ones get a blank line.
type SetMode struct {
	Mode EntryMode
}

func (a SetMode) apply(d *Draft, _ *Engine) error {
	rules, err := RulesFor(d.Type)
	if err != nil {
		return invalid("voucher_type", err)
	}
	if !rules.Allows(a.Mode) {
		return invalid("entry_mode", ErrModeNotAllowed)
	}
	if d.Mode != a.Mode {
		switchMode(d, a.Mode)
	}
	return nil
}

func switchMode(d *Draft, mode EntryMode) {
	d.Mode = mode
	manual, stock, additional := activeCollections(mode)
	if !manual {
		d.ManualEntries = nil
	}
	if !stock {
		d.StockEntries = nil
	}
	if !additional {
		d.AdditionalLedgers = nil
	}
	seedCollections(d)
}

// SetParty sets or, with a nil Party, clears the counterparty.
type SetParty struct {
	Party *Party
}

func (a SetParty) apply(d *Draft, _ *Engine) error {
	if a.Party == nil {
		d.Party = nil
		return nil
	}
	rules, err := RulesFor(d.Type)
	if err != nil {
		return invalid("voucher_type", err)
	}
	if !rules.PartyRole {
		return invalid("party", ErrPartyNotAllowed)
	}
	p := *a.Party
	p.PlaceOfSupply = strings.ToUpper(strings.TrimSpace(p.PlaceOfSupply))
	d.Party = &p
	return nil
}

// SetJurisdiction changes the tax jurisdiction and company region. Lines are
// recalculated because the minor unit may differ.
type SetJurisdiction struct {
	Code          string
	CompanyRegion *string
}

func (a SetJurisdiction) apply(d *Draft, e *Engine) error {
	j, err := e.table.Lookup(a.Code)
	if err != nil {
		return invalid("jurisdiction", err)
	}
	d.Jurisdiction = j.Code
	if a.CompanyRegion != nil {
		d.CompanyRegion = strings.ToUpper(strings.TrimSpace(*a.CompanyRegion))
	}
	for i, l := range d.StockEntries {
		calc, err := CalculateLine(l, j.MinorUnitDigits, d.Options.AllowNegativeQuantity)
		if err != nil {
			return invalid(lineField("stock_entries", i, "quantity"), err)
		}
		d.StockEntries[i] = calc
	}
	return nil
}

// SetValueLedger sets the sales or purchase ledger for item-invoice mode.
type SetValueLedger struct {
	Ledger LedgerRef
}

func (a SetValueLedger) apply(d *Draft, _ *Engine) error {
	d.ValueLedger = a.Ledger
	return nil
}

// SetOptions replaces the draft calculation options.
type SetOptions struct {
	Options Options
}

func (a SetOptions) apply(d *Draft, _ *Engine) error {
	if !a.Options.AllowNegativeQuantity {
		for i, l := range d.StockEntries {
			if l.Quantity.IsNegative() {
				return invalid(lineField("stock_entries", i, "quantity"), ErrNegativeLinesPresent)
			}
		}
	}
	d.Options = a.Options
	return nil
}

// ResetLines empties every line collection.
type ResetLines struct{}

func (ResetLines) apply(d *Draft, _ *Engine) error {
	d.ManualEntries = nil
	d.StockEntries = nil
	d.AdditionalLedgers = nil
	return nil
}

// AddStockLine appends an item row and derives its amounts.
type AddStockLine struct {
	Line StockLine
}

func (a AddStockLine) apply(d *Draft, e *Engine) error {
	if err := requireStock(d); err != nil {
		return err
	}
	idx := len(d.StockEntries)
	calc, err := CalculateLine(a.Line, e.digits(*d), d.Options.AllowNegativeQuantity)
	if err != nil {
		return invalid(lineField("stock_entries", idx, stockField(err)), err)
	}
	d.StockEntries = append(d.StockEntries, calc)
	return nil
}

// UpdateStockLine patches the row at Index.
type UpdateStockLine struct {
	Index int
	Patch StockPatch
}

func (a UpdateStockLine) apply(d *Draft, e *Engine) error {
	if err := requireStock(d); err != nil {
		return err
	}
	if a.Index < 0 || a.Index >= len(d.StockEntries) {
		return invalid(lineField("stock_entries", a.Index, "index"), ErrLineIndex)
	}
	next, err := UpdateLine(d.StockEntries[a.Index], a.Patch, e.digits(*d), d.Options.AllowNegativeQuantity)
	if err != nil {
		return invalid(lineField("stock_entries", a.Index, stockField(err)), err)
	}
	d.StockEntries[a.Index] = next
	return nil
}

// RemoveStockLine deletes the row at Index.
type RemoveStockLine struct {
	Index int
}

func (a RemoveStockLine) apply(d *Draft, _ *Engine) error {
	if err := requireStock(d); err != nil {
		return err
	}
	if a.Index < 0 || a.Index >= len(d.StockEntries) {
		return invalid(lineField("stock_entries", a.Index, "index"), ErrLineIndex)
	}
	d.StockEntries = append(d.StockEntries[:a.Index], d.StockEntries[a.Index+1:]...)
	return nil
}

func requireStock(d *Draft) error {
	rules, err := RulesFor(d.Type)
	if err != nil {
		return invalid("voucher_type", err)
	}
	if _, stock, _ := activeCollections(d.Mode); !stock || !rules.Stock {
		return invalid("stock_entries", ErrCollectionInactive)
	}
	return nil
}

func stockField(err error) string {
	switch err {
	case ErrInvalidRate:
		return "rate"
	case ErrInvalidTaxRate:
		return "tax_rate"
	default:
		return "quantity"
	}
}

// AddManualEntry appends a direct ledger entry.
type AddManualEntry struct {
	Entry ManualEntry
}

func (a AddManualEntry) apply(d *Draft, _ *Engine) error {
	if manual, _, _ := activeCollections(d.Mode); !manual {
		return invalid("manual_entries", ErrCollectionInactive)
	}
	idx := len(d.ManualEntries)
	if err := checkManual(a.Entry, idx); err != nil {
		return err
	}
	d.ManualEntries = append(d.ManualEntries, a.Entry)
	return nil
}

// ManualPatch changes selected fields of a manual entry.
type ManualPatch struct {
	Ledger    *LedgerRef
	Debit     *decimal.Decimal
	Credit    *decimal.Decimal
	Narration *string
}

// UpdateManualEntry patches the entry at Index.
type UpdateManualEntry struct {
	Index int
	Patch ManualPatch
}

func (a UpdateManualEntry) apply(d *Draft, _ *Engine) error {
	if manual, _, _ := activeCollections(d.Mode); !manual {
		return invalid("manual_entries", ErrCollectionInactive)
	}
	if a.Index < 0 || a.Index >= len(d.ManualEntries) {
		return invalid(lineField("manual_entries", a.Index, "index"), ErrLineIndex)
	}
	next := d.ManualEntries[a.Index]
	if a.Patch.Ledger != nil {
		next.Ledger = *a.Patch.Ledger
	}
	if a.Patch.Debit != nil {
		next.Debit = *a.Patch.Debit
	}
	if a.Patch.Credit != nil {
		next.Credit = *a.Patch.Credit
	}
	if a.Patch.Narration != nil {
		next.Narration = *a.Patch.Narration
	}
	if err := checkManual(next, a.Index); err != nil {
		return err
	}
	d.ManualEntries[a.Index] = next
	return nil
}

// RemoveManualEntry deletes the entry at Index.
type RemoveManualEntry struct {
	Index int
}

func (a RemoveManualEntry) apply(d *Draft, _ *Engine) error {
	if manual, _, _ := activeCollections(d.Mode); !manual {
		return invalid("manual_entries", ErrCollectionInactive)
	}
	if a.Index < 0 || a.Index >= len(d.ManualEntries) {
		return invalid(lineField("manual_entries", a.Index, "index"), ErrLineIndex)
	}
	d.ManualEntries = append(d.ManualEntries[:a.Index], d.ManualEntries[a.Index+1:]...)
	return nil
}

func checkManual(m ManualEntry, idx int) error {
	if m.Debit.IsNegative() {
		return invalid(lineField("manual_entries", idx, "debit"), ErrNegativeAmount)
	}
	if m.Credit.IsNegative() {
		return invalid(lineField("manual_entries", idx, "credit"), ErrNegativeAmount)
	}
	if !m.Debit.IsZero() && !m.Credit.IsZero() {
		return invalid(lineField("manual_entries", idx, "credit"), ErrBothSides)
	}
	return nil
}

// AddAdditionalLedger appends a charge or deduction line.
type AddAdditionalLedger struct {
	Line AdditionalLedger
}

func (a AddAdditionalLedger) apply(d *Draft, _ *Engine) error {
	if _, _, additional := activeCollections(d.Mode); !additional {
		return invalid("additional_ledgers", ErrCollectionInactive)
	}
	line := a.Line
	if line.Direction == "" {
		line.Direction = defaultAdditionalSide(*d)
	}
	idx := len(d.AdditionalLedgers)
	if err := checkAdditional(line, idx); err != nil {
		return err
	}
	d.AdditionalLedgers = append(d.AdditionalLedgers, line)
	return nil
}

// AdditionalPatch changes selected fields of an additional ledger line.
type AdditionalPatch struct {
	Ledger    *LedgerRef
	Amount    *decimal.Decimal
	Direction *Side
}

// UpdateAdditionalLedger patches the line at Index.
type UpdateAdditionalLedger struct {
	Index int
	Patch AdditionalPatch
}

func (a UpdateAdditionalLedger) apply(d *Draft, _ *Engine) error {
	if _, _, additional := activeCollections(d.Mode); !additional {
		return invalid("additional_ledgers", ErrCollectionInactive)
	}
	if a.Index < 0 || a.Index >= len(d.AdditionalLedgers) {
		return invalid(lineField("additional_ledgers", a.Index, "index"), ErrLineIndex)
	}
	next := d.AdditionalLedgers[a.Index]
	if a.Patch.Ledger != nil {
		next.Ledger = *a.Patch.Ledger
	}
	if a.Patch.Amount != nil {
		next.Amount = *a.Patch.Amount
	}
	if a.Patch.Direction != nil {
		next.Direction = *a.Patch.Direction
	}
	if err := checkAdditional(next, a.Index); err != nil {
		return err
	}
	d.AdditionalLedgers[a.Index] = next
	return nil
}

// RemoveAdditionalLedger deletes the line at Index.
type RemoveAdditionalLedger struct {
	Index int
}

func (a RemoveAdditionalLedger) apply(d *Draft, _ *Engine) error {
	if _, _, additional := activeCollections(d.Mode); !additional {
		return invalid("additional_ledgers", ErrCollectionInactive)
	}
	if a.Index < 0 || a.Index >= len(d.AdditionalLedgers) {
		return invalid(lineField("additional_ledgers", a.Index, "index"), ErrLineIndex)
	}
	d.AdditionalLedgers = append(d.AdditionalLedgers[:a.Index], d.AdditionalLedgers[a.Index+1:]...)
	return nil
}

func checkAdditional(l AdditionalLedger, idx int) error {
	if l.Amount.IsNegative() {
		return invalid(lineField("additional_ledgers", idx, "amount"), ErrNegativeAmount)
	}
	if !l.Direction.Valid() {
		return invalid(lineField("additional_ledgers", idx, "direction"), ErrInvalidDirection)
	}
	return nil
}

// ResolveLedgers fills missing ledger ids through Resolver. Names it cannot
// match stay unresolved.
type ResolveLedgers struct {
	Resolver LedgerResolver
}

func (a ResolveLedgers) apply(d *Draft, _ *Engine) error {
	if a.Resolver == nil {
		return nil
	}
	resolve := func(ref LedgerRef) LedgerRef {
		if ref.Resolved() || strings.TrimSpace(ref.Name) == "" {
			return ref
		}
		got := a.Resolver.Resolve(ref.Name)
		if !got.Resolved() {
			return ref
		}
		return got
	}
	if d.Party != nil {
		d.Party.Ledger = resolve(d.Party.Ledger)
	}
	d.ValueLedger = resolve(d.ValueLedger)
	for i := range d.ManualEntries {
		d.ManualEntries[i].Ledger = resolve(d.ManualEntries[i].Ledger)
	}
	for i := range d.AdditionalLedgers {
		d.AdditionalLedgers[i].Ledger = resolve(d.AdditionalLedgers[i].Ledger)
	}
	return nil
}
