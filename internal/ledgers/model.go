package ledgers

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is an account in the chart of accounts. This core only reads it;
// balances move through the posting gateway.
type Ledger struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Group      string          `json:"group"`
	Balance    decimal.Decimal `json:"balance"`
	LastUsedAt *time.Time      `json:"last_used_at,omitempty"`
}
