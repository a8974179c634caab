// Package workspace keeps voucher drafts between requests and orchestrates
// edits, natural-language commands and posting against them.
package workspace

import (
	"errors"
	"time"

	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
	"github.com/odyssey-erp/ledgerdesk/internal/posting"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

var (
	// ErrNotFound indicates an unknown or expired draft.
	ErrNotFound = errors.New("workspace: draft not found")
	// ErrExists indicates a draft id collision on create.
	ErrExists = errors.New("workspace: draft already exists")
	// ErrPostingInProgress indicates an edit while the draft is being posted.
	ErrPostingInProgress = errors.New("workspace: draft is being posted")
)

// Session is everything stored for one draft. Revision increases on every
// save and guards against lost updates between concurrent writers. Posting
// is set while a posting holds the draft and blocks direct edits.
type Session struct {
	Draft        voucher.Draft            `json:"draft"`
	Conversation interpreter.Conversation `json:"conversation"`
	Revision     int64                    `json:"revision"`
	Posting      bool                     `json:"posting,omitempty"`
	PostingKey   string                   `json:"posting_key,omitempty"`
	Receipt      *posting.Receipt         `json:"receipt,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at"`
}
