package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherPosted is emitted once per persisted voucher.
type VoucherPosted struct {
	TransactionID string          `json:"transaction_id"`
	VoucherID     int64           `json:"voucher_id"`
	Number        string          `json:"number"`
	DraftID       string          `json:"draft_id"`
	VoucherType   string          `json:"voucher_type"`
	Date          string          `json:"date"`
	TotalDebit    decimal.Decimal `json:"total_debit"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
	PostedAt      time.Time       `json:"posted_at"`
	PostedBy      string          `json:"posted_by,omitempty"`
}

// Key partitions events by transaction.
func (e VoucherPosted) Key() string {
	return e.TransactionID
}
