package voucher

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
)

// Engine applies actions to drafts and derives tax and totals.
type Engine struct {
	table               tax.Table
	defaultJurisdiction string
	now                 func() time.Time
}

// NewEngine constructs an engine over the supplied jurisdiction table.
func NewEngine(table tax.Table, defaultJurisdiction string) *Engine {
	if table == nil {
		table = tax.DefaultTable()
	}
	code := strings.ToUpper(strings.TrimSpace(defaultJurisdiction))
	if code == "" {
		code = "IN"
	}
	return &Engine{table: table, defaultJurisdiction: code, now: time.Now}
}

// WithNow overrides the clock used for new drafts.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// DefaultJurisdiction is the code used when a draft names none.
func (e *Engine) DefaultJurisdiction() string {
	return e.defaultJurisdiction
}

// Table exposes the jurisdiction table.
func (e *Engine) Table() tax.Table {
	return e.table
}

// NewDraftInput configures a fresh draft.
type NewDraftInput struct {
	Type          VoucherType
	Mode          EntryMode
	Jurisdiction  string
	CompanyRegion string
	Date          time.Time
	Options       Options
}

// New creates an empty draft with one blank line per active collection.
func (e *Engine) New(in NewDraftInput) (Draft, error) {
	rules, err := RulesFor(in.Type)
	if err != nil {
		return Draft{}, invalid("voucher_type", err)
	}
	mode := in.Mode
	if mode == "" {
		mode = rules.DefaultMode()
	}
	if !rules.Allows(mode) {
		return Draft{}, invalid("entry_mode", ErrModeNotAllowed)
	}
	code := in.Jurisdiction
	if code == "" {
		code = e.defaultJurisdiction
	}
	j, err := e.table.Lookup(code)
	if err != nil {
		return Draft{}, invalid("jurisdiction", err)
	}
	date := in.Date
	if date.IsZero() {
		date = e.now().UTC().Truncate(24 * time.Hour)
	}
	d := Draft{
		ID:            uuid.New(),
		Status:        StatusOpen,
		Type:          in.Type,
		Mode:          mode,
		Date:          date,
		Jurisdiction:  j.Code,
		CompanyRegion: strings.ToUpper(strings.TrimSpace(in.CompanyRegion)),
		Options:       in.Options,
	}
	seedCollections(&d)
	return e.Derive(d)
}

func seedCollections(d *Draft) {
	manual, stock, additional := activeCollections(d.Mode)
	if manual && len(d.ManualEntries) == 0 {
		d.ManualEntries = []ManualEntry{{}}
	}
	if stock && len(d.StockEntries) == 0 {
		d.StockEntries = []StockLine{{}}
	}
	if additional && len(d.AdditionalLedgers) == 0 {
		d.AdditionalLedgers = []AdditionalLedger{{Direction: defaultAdditionalSide(*d)}}
	}
}

func defaultAdditionalSide(d Draft) Side {
	if rules, err := RulesFor(d.Type); err == nil && rules.Direction != nil {
		return rules.Direction.Value
	}
	return Debit
}

// Apply runs actions in order against a copy of d and re-derives tax and
// totals. The returned draft carries a bumped version. When any action fails
// the original draft is returned unchanged together with the error.
func (e *Engine) Apply(d Draft, actions ...Action) (Draft, error) {
	if d.Status == StatusPosted {
		return d, ErrDraftPosted
	}
	next := d.clone()
	for _, a := range actions {
		if err := a.apply(&next, e); err != nil {
			return d, err
		}
	}
	derived, err := e.Derive(next)
	if err != nil {
		return d, err
	}
	derived.Version = d.Version + 1
	return derived, nil
}

// Derive recomputes tax entries and totals from the draft's primary fields.
// It is idempotent.
func (e *Engine) Derive(d Draft) (Draft, error) {
	rules, err := RulesFor(d.Type)
	if err != nil {
		return d, invalid("voucher_type", err)
	}
	if !rules.Allows(d.Mode) {
		return d, invalid("entry_mode", ErrModeNotAllowed)
	}
	out := d.clone()
	out.TaxEntries = nil
	if out.Mode == ModeItemInvoice && rules.Tax {
		lines := make([]tax.RatedAmount, 0, len(out.StockEntries))
		for _, l := range out.StockEntries {
			lines = append(lines, tax.RatedAmount{Amount: l.Amount, Rate: l.TaxRate})
		}
		entries, err := e.table.Split(out.Jurisdiction, lines, out.Place())
		if err != nil {
			return d, invalid("tax_entries", err)
		}
		out.TaxEntries = entries
	}
	totals, err := e.Aggregate(out)
	if err != nil {
		return d, err
	}
	out.Totals = totals
	return out, nil
}

func (e *Engine) digits(d Draft) int32 {
	j, err := e.table.Lookup(d.Jurisdiction)
	if err != nil {
		return 2
	}
	return j.MinorUnitDigits
}

// MarkPosted freezes the draft after a successful posting.
func (e *Engine) MarkPosted(d Draft, transactionID string, at time.Time) (Draft, error) {
	if d.Status == StatusPosted {
		return d, ErrDraftPosted
	}
	out := d.clone()
	out.Status = StatusPosted
	out.TransactionID = transactionID
	posted := at.UTC()
	out.PostedAt = &posted
	out.Version = d.Version + 1
	return out, nil
}

// CheckPostable runs every posting precondition against the latest totals.
func (e *Engine) CheckPostable(d Draft) error {
	if d.Status == StatusPosted {
		return ErrDraftPosted
	}
	totals, err := e.Aggregate(d)
	if err != nil {
		return err
	}
	if totals.IsEmpty {
		return ErrNothingToPost
	}
	if !totals.IsBalanced {
		return &UnbalancedVoucherError{
			TotalDebit:  totals.TotalDebit,
			TotalCredit: totals.TotalCredit,
			Difference:  totals.Difference,
		}
	}
	rules, _ := RulesFor(d.Type)
	if rules.PartyRole && d.Party == nil {
		return invalid("party", ErrPartyRequired)
	}
	if d.Mode == ModeItemInvoice && totals.PartyAmount.IsNegative() {
		return invalid("party", ErrNegativePartyAmount)
	}
	if d.Party != nil && !rules.PartyRole {
		return invalid("party", ErrPartyNotAllowed)
	}
	if issues := unresolved(d); len(issues) > 0 {
		return &UnresolvedLedgerError{Lines: issues}
	}
	return nil
}

func unresolved(d Draft) []LineIssue {
	var issues []LineIssue
	manual, stock, additional := activeCollections(d.Mode)
	if d.Party != nil && !d.Party.Ledger.Resolved() {
		issues = append(issues, LineIssue{Collection: "party", Name: d.Party.Ledger.Name})
	}
	if stock && !d.ValueLedger.Resolved() {
		issues = append(issues, LineIssue{Collection: "value_ledger", Name: d.ValueLedger.Name})
	}
	if manual {
		for i, m := range d.ManualEntries {
			if !m.blank() && !m.Ledger.Resolved() {
				issues = append(issues, LineIssue{Collection: "manual_entries", Index: i, Name: m.Ledger.Name})
			}
		}
	}
	if additional {
		for i, a := range d.AdditionalLedgers {
			if !a.Amount.IsZero() && !a.Ledger.Resolved() {
				issues = append(issues, LineIssue{Collection: "additional_ledgers", Index: i, Name: a.Ledger.Name})
			}
		}
	}
	return issues
}

func lineField(collection string, index int, field string) string {
	return fmt.Sprintf("%s[%d].%s", collection, index, field)
}
