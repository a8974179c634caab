package voucher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidQuantity indicates a negative quantity without the return flag.
	ErrInvalidQuantity = errors.New("voucher: quantity must not be negative")
	// ErrInvalidRate indicates a negative rate.
	ErrInvalidRate = errors.New("voucher: rate must not be negative")
	// ErrInvalidTaxRate indicates a negative tax rate.
	ErrInvalidTaxRate = errors.New("voucher: tax rate must not be negative")
	// ErrNegativeAmount indicates a negative debit, credit or charge.
	ErrNegativeAmount = errors.New("voucher: amount must not be negative")
	// ErrBothSides indicates an entry carrying both debit and credit.
	ErrBothSides = errors.New("voucher: entry cannot be both debit and credit")
	// ErrInvalidDirection indicates a side other than debit or credit.
	ErrInvalidDirection = errors.New("voucher: direction must be debit or credit")
	// ErrUnknownType indicates a voucher type outside the closed set.
	ErrUnknownType = errors.New("voucher: unknown voucher type")
	// ErrModeNotAllowed indicates an entry mode the voucher type forbids.
	ErrModeNotAllowed = errors.New("voucher: entry mode not allowed for voucher type")
	// ErrCollectionInactive indicates a line edit outside the active mode.
	ErrCollectionInactive = errors.New("voucher: line collection not active in entry mode")
	// ErrLineIndex indicates an out of range line index.
	ErrLineIndex = errors.New("voucher: line index out of range")
	// ErrPartyNotAllowed indicates a party on a type without a party role.
	ErrPartyNotAllowed = errors.New("voucher: voucher type has no party")
	// ErrPartyRequired indicates a missing party.
	ErrPartyRequired = errors.New("voucher: party required")
	// ErrNegativePartyAmount indicates deductions larger than the invoice value.
	ErrNegativePartyAmount = errors.New("voucher: party amount is negative")
	// ErrNegativeLinesPresent blocks disabling negative quantities while such lines exist.
	ErrNegativeLinesPresent = errors.New("voucher: negative quantity lines present")
	// ErrDraftPosted indicates an attempt to change an immutable draft.
	ErrDraftPosted = errors.New("voucher: draft already posted")
	// ErrNothingToPost indicates no line carries an amount.
	ErrNothingToPost = errors.New("voucher: nothing to post")
	// ErrUnbalanced is wrapped by UnbalancedVoucherError.
	ErrUnbalanced = errors.New("voucher: debits and credits do not balance")
	// ErrUnresolvedLedger is wrapped by UnresolvedLedgerError.
	ErrUnresolvedLedger = errors.New("voucher: unresolved ledger")
	// ErrConcurrentModification is wrapped by ConcurrentModificationError.
	ErrConcurrentModification = errors.New("voucher: draft modified concurrently")
)

// ValidationError pins a field-level failure to the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Field)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// UnbalancedVoucherError carries the signed difference debit minus credit.
type UnbalancedVoucherError struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Difference  decimal.Decimal
}

func (e *UnbalancedVoucherError) Error() string {
	return fmt.Sprintf("%s: difference %s", ErrUnbalanced.Error(), e.Difference.String())
}

func (e *UnbalancedVoucherError) Unwrap() error {
	return ErrUnbalanced
}

// LineIssue identifies one line by collection and position.
type LineIssue struct {
	Collection string `json:"collection"`
	Index      int    `json:"index"`
	Name       string `json:"name"`
}

// UnresolvedLedgerError lists every line whose ledger has no id.
type UnresolvedLedgerError struct {
	Lines []LineIssue
}

func (e *UnresolvedLedgerError) Error() string {
	names := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		names = append(names, fmt.Sprintf("%s[%d]=%q", l.Collection, l.Index, l.Name))
	}
	return fmt.Sprintf("%s: %s", ErrUnresolvedLedger.Error(), strings.Join(names, ", "))
}

func (e *UnresolvedLedgerError) Unwrap() error {
	return ErrUnresolvedLedger
}

// ConcurrentModificationError reports a stale draft version.
type ConcurrentModificationError struct {
	Expected int64
	Actual   int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s: expected version %d, found %d", ErrConcurrentModification.Error(), e.Expected, e.Actual)
}

func (e *ConcurrentModificationError) Unwrap() error {
	return ErrConcurrentModification
}
