package posting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

var (
	// ErrIdempotencyKeyRequired indicates a posting without a dedupe key.
	ErrIdempotencyKeyRequired = errors.New("posting: idempotency key required")
	// ErrNoLines indicates an empty journal.
	ErrNoLines = errors.New("posting: no journal lines")
	// ErrIdempotencyConflict indicates a key claimed by a concurrent posting.
	ErrIdempotencyConflict = errors.New("posting: idempotency key already claimed")
	// ErrMappingNotFound indicates a tax mapping key without a ledger.
	ErrMappingNotFound = errors.New("posting: ledger mapping not found")
)

// PersistenceError wraps store failures that are not part of the voucher
// taxonomy. Callers must not retry without the same idempotency key.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("posting: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Request is a balanced draft ready for persistence.
type Request struct {
	Draft          voucher.Draft
	Lines          []voucher.JournalLine
	IdempotencyKey string
	PostedBy       string
}

// Validate checks the request shape and balance before any write.
func (r Request) Validate() error {
	if r.IdempotencyKey == "" {
		return ErrIdempotencyKeyRequired
	}
	if len(r.Lines) == 0 {
		return ErrNoLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range r.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	if !debit.Equal(credit) {
		return &voucher.UnbalancedVoucherError{TotalDebit: debit, TotalCredit: credit, Difference: debit.Sub(credit)}
	}
	return nil
}

// Receipt identifies a persisted voucher.
type Receipt struct {
	TransactionID string    `json:"transaction_id"`
	VoucherID     int64     `json:"voucher_id"`
	Number        string    `json:"number"`
	PostedAt      time.Time `json:"posted_at"`
	// Replayed is set when the key had already been processed.
	Replayed bool `json:"replayed"`
}

// Header is the voucher row written by the repository.
type Header struct {
	TransactionID uuid.UUID
	DraftID       uuid.UUID
	DraftVersion  int64
	Type          voucher.VoucherType
	Number        string
	Date          time.Time
	Reference     string
	Narration     string
	PartyLedgerID *int64
	TotalDebit    decimal.Decimal
	TotalCredit   decimal.Decimal
	PostedBy      string
}

// Line is a resolved journal row.
type Line struct {
	LedgerID int64
	Debit    decimal.Decimal
	Credit   decimal.Decimal
	Memo     string
}

// Inserted is what the repository returns for a new voucher row.
type Inserted struct {
	ID       int64
	Number   string
	PostedAt time.Time
}

func defaultNumber(t voucher.VoucherType, id int64) string {
	return fmt.Sprintf("%s-%06d", strings.ToUpper(string(t)), id)
}
