package voucher

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
)

// VoucherType enumerates the supported transaction kinds.
type VoucherType string

const (
	TypeSales                VoucherType = "sales"
	TypePurchase             VoucherType = "purchase"
	TypeReceipt              VoucherType = "receipt"
	TypePayment              VoucherType = "payment"
	TypeJournal              VoucherType = "journal"
	TypeContra               VoucherType = "contra"
	TypeDebitNote            VoucherType = "debit_note"
	TypeCreditNote           VoucherType = "credit_note"
	TypeManufacturingJournal VoucherType = "manufacturing_journal"
	TypeStockTransfer        VoucherType = "stock_transfer"
)

// AllTypes lists every voucher type in display order.
func AllTypes() []VoucherType {
	return []VoucherType{
		TypeSales, TypePurchase, TypeReceipt, TypePayment, TypeJournal,
		TypeContra, TypeDebitNote, TypeCreditNote, TypeManufacturingJournal, TypeStockTransfer,
	}
}

// ParseType normalises s into a known voucher type.
func ParseType(s string) (VoucherType, error) {
	norm := VoucherType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_"))
	if _, ok := typeRules[norm]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return norm, nil
}

// EntryMode selects which line collections are active.
type EntryMode string

const (
	ModeItemInvoice EntryMode = "item_invoice"
	ModeVoucher     EntryMode = "voucher_mode"
	ModeAccounting  EntryMode = "accounting_mode"
)

// Side is a debit or credit.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == Debit || s == Credit
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Debit {
		return Credit
	}
	return Debit
}

// Status tracks the draft lifecycle.
type Status string

const (
	StatusOpen   Status = "open"
	StatusPosted Status = "posted"
)

// Direction fixes which side each item-invoice contribution lands on.
type Direction struct {
	Value Side
	Tax   Side
	Party Side
	// TaxAccount is the mapping family for tax ledgers ("output" or "input").
	TaxAccount string
}

// TypeRules describes the sections a voucher type allows.
type TypeRules struct {
	PartyRole bool
	Stock     bool
	Tax       bool
	Modes     []EntryMode
	Direction *Direction
}

// Allows reports whether mode is legal for the type.
func (r TypeRules) Allows(mode EntryMode) bool {
	for _, m := range r.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// DefaultMode is the first legal mode.
func (r TypeRules) DefaultMode() EntryMode {
	return r.Modes[0]
}

var (
	salesDirection    = &Direction{Value: Credit, Tax: Credit, Party: Debit, TaxAccount: "output"}
	salesReturn       = &Direction{Value: Debit, Tax: Debit, Party: Credit, TaxAccount: "output"}
	purchaseDirection = &Direction{Value: Debit, Tax: Debit, Party: Credit, TaxAccount: "input"}
	purchaseReturn    = &Direction{Value: Credit, Tax: Credit, Party: Debit, TaxAccount: "input"}
)

var typeRules = map[VoucherType]TypeRules{
	TypeSales:                {PartyRole: true, Stock: true, Tax: true, Modes: []EntryMode{ModeItemInvoice, ModeVoucher, ModeAccounting}, Direction: salesDirection},
	TypeCreditNote:           {PartyRole: true, Stock: true, Tax: true, Modes: []EntryMode{ModeItemInvoice, ModeVoucher, ModeAccounting}, Direction: salesReturn},
	TypePurchase:             {PartyRole: true, Stock: true, Tax: true, Modes: []EntryMode{ModeItemInvoice, ModeVoucher, ModeAccounting}, Direction: purchaseDirection},
	TypeDebitNote:            {PartyRole: true, Stock: true, Tax: true, Modes: []EntryMode{ModeItemInvoice, ModeVoucher, ModeAccounting}, Direction: purchaseReturn},
	TypeReceipt:              {PartyRole: true, Modes: []EntryMode{ModeVoucher, ModeAccounting}},
	TypePayment:              {PartyRole: true, Modes: []EntryMode{ModeVoucher, ModeAccounting}},
	TypeJournal:              {Modes: []EntryMode{ModeAccounting, ModeVoucher}},
	TypeContra:               {Modes: []EntryMode{ModeAccounting, ModeVoucher}},
	TypeManufacturingJournal: {Modes: []EntryMode{ModeAccounting, ModeVoucher}},
	TypeStockTransfer:        {Modes: []EntryMode{ModeAccounting, ModeVoucher}},
}

// RulesFor returns the fixed rules for t.
func RulesFor(t VoucherType) (TypeRules, error) {
	r, ok := typeRules[t]
	if !ok {
		return TypeRules{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return r, nil
}

// LedgerRef points at a ledger; ID is nil until the name is resolved.
type LedgerRef struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

// Resolved reports whether the reference carries an id.
func (r LedgerRef) Resolved() bool {
	return r.ID != nil
}

// ItemRef points at a stock item.
type ItemRef struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

// Party is the counterparty of a trading or cash voucher.
type Party struct {
	Ledger        LedgerRef `json:"ledger"`
	GSTIN         string    `json:"gstin,omitempty"`
	PlaceOfSupply string    `json:"place_of_supply,omitempty"`
}

// ManualEntry is a direct ledger debit or credit.
type ManualEntry struct {
	Ledger    LedgerRef       `json:"ledger"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Narration string          `json:"narration,omitempty"`
}

func (e ManualEntry) blank() bool {
	return e.Debit.IsZero() && e.Credit.IsZero()
}

// StockLine is an item row; Amount, TaxAmount and TotalAmount are derived.
type StockLine struct {
	Item        ItemRef         `json:"item"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	GodownID    *int64          `json:"godown_id,omitempty"`
	Batch       string          `json:"batch,omitempty"`
	Serial      string          `json:"serial,omitempty"`
}

// AdditionalLedger is an ad hoc charge or deduction such as freight or discount.
type AdditionalLedger struct {
	Ledger    LedgerRef       `json:"ledger"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Side            `json:"direction"`
}

// Options carries explicit per-draft calculation switches.
type Options struct {
	AllowNegativeQuantity bool `json:"allow_negative_quantity"`
}

// Totals is the aggregator output.
type Totals struct {
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Difference  decimal.Decimal `json:"difference"`
	PartyAmount decimal.Decimal `json:"party_amount"`
	IsBalanced  bool            `json:"is_balanced"`
	// IsEmpty means no contributing line carries a non-zero amount.
	IsEmpty bool `json:"is_empty"`
	// IsZero means both totals are zero even though lines may exist.
	IsZero bool `json:"is_zero"`
}

// ReadyToPost reports whether the totals allow submission.
func (t Totals) ReadyToPost() bool {
	return t.IsBalanced && !t.IsEmpty
}

// Draft is the in-progress transaction. Values are never mutated in place;
// Engine.Apply returns a new draft.
type Draft struct {
	ID                uuid.UUID          `json:"id"`
	Version           int64              `json:"version"`
	Status            Status             `json:"status"`
	Type              VoucherType        `json:"voucher_type"`
	Mode              EntryMode          `json:"entry_mode"`
	Number            string             `json:"number,omitempty"`
	Date              time.Time          `json:"date"`
	Reference         string             `json:"reference,omitempty"`
	Narration         string             `json:"narration,omitempty"`
	Party             *Party             `json:"party,omitempty"`
	Jurisdiction      string             `json:"jurisdiction"`
	CompanyRegion     string             `json:"company_region,omitempty"`
	ValueLedger       LedgerRef          `json:"value_ledger"`
	Options           Options            `json:"options"`
	ManualEntries     []ManualEntry      `json:"manual_entries"`
	StockEntries      []StockLine        `json:"stock_entries"`
	TaxEntries        []tax.Entry        `json:"tax_entries"`
	AdditionalLedgers []AdditionalLedger `json:"additional_ledgers"`
	Totals            Totals             `json:"totals"`
	TransactionID     string             `json:"transaction_id,omitempty"`
	PostedAt          *time.Time         `json:"posted_at,omitempty"`
}

// Place returns the jurisdiction regions used for the tax split.
func (d Draft) Place() tax.Place {
	p := tax.Place{CompanyRegion: d.CompanyRegion}
	if d.Party != nil {
		p.SupplyRegion = d.Party.PlaceOfSupply
	}
	return p
}

func (d Draft) clone() Draft {
	out := d
	if d.Party != nil {
		p := *d.Party
		out.Party = &p
	}
	out.ManualEntries = append([]ManualEntry(nil), d.ManualEntries...)
	out.StockEntries = append([]StockLine(nil), d.StockEntries...)
	out.TaxEntries = append([]tax.Entry(nil), d.TaxEntries...)
	out.AdditionalLedgers = append([]AdditionalLedger(nil), d.AdditionalLedgers...)
	return out
}

func activeCollections(mode EntryMode) (manual, stock, additional bool) {
	switch mode {
	case ModeItemInvoice:
		return false, true, true
	case ModeVoucher:
		return true, false, true
	default:
		return true, false, false
	}
}
