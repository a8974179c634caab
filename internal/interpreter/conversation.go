package interpreter

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// State is a conversation phase.
type State string

const (
	StateIdle               State = "idle"
	StateSent               State = "sent"
	StateApplied            State = "applied"
	StateNeedsClarification State = "needs_clarification"
	StateFailed             State = "failed"
)

// Turn is one message of the exchange.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Failure describes why the last request ended in StateFailed.
type Failure struct {
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

// Conversation is the per-draft AI exchange. It is a value: every
// transition returns a new Conversation and leaves the receiver untouched.
type Conversation struct {
	State          State               `json:"state"`
	RequestID      string              `json:"request_id,omitempty"`
	RequestVersion int64               `json:"request_version"`
	Command        string              `json:"command,omitempty"`
	History        []Turn              `json:"history,omitempty"`
	Questions      []string            `json:"questions,omitempty"`
	SuggestedType  voucher.VoucherType `json:"suggested_type,omitempty"`
	Applied        *Patch              `json:"applied,omitempty"`
	Failure        *Failure            `json:"failure,omitempty"`
}

// Busy reports whether a request is in flight.
func (c Conversation) Busy() bool {
	return c.State == StateSent
}

// Begin dispatches a new command tagged with the draft version it targets.
func (c Conversation) Begin(command string, draftVersion int64) (Conversation, error) {
	if c.Busy() {
		return c, ErrBusy
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return c, ErrEmptyCommand
	}
	return Conversation{
		State:          StateSent,
		RequestID:      uuid.NewString(),
		RequestVersion: draftVersion,
		Command:        command,
		History:        []Turn{{Role: RoleUser, Content: command}},
	}, nil
}

// Answer appends a reply to the pending questions and re-dispatches.
func (c Conversation) Answer(text string, draftVersion int64) (Conversation, error) {
	if c.Busy() {
		return c, ErrBusy
	}
	if c.State != StateNeedsClarification {
		return c, ErrNoClarification
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return c, ErrEmptyCommand
	}
	next := c.copyHistory()
	next.History = append(next.History,
		Turn{Role: RoleAssistant, Content: strings.Join(c.Questions, "\n")},
		Turn{Role: RoleUser, Content: text},
	)
	next.State = StateSent
	next.RequestID = uuid.NewString()
	next.RequestVersion = draftVersion
	next.Questions = nil
	next.Failure = nil
	return next, nil
}

// Stale reports whether the in-flight request targeted another draft version.
func (c Conversation) Stale(currentVersion int64) bool {
	return c.RequestVersion != currentVersion
}

// Apply records a successfully applied patch.
func (c Conversation) Apply(p *Patch) Conversation {
	next := c.copyHistory()
	next.State = StateApplied
	next.Applied = p
	next.Questions = nil
	next.Failure = nil
	return next
}

// Clarify records follow-up questions.
func (c Conversation) Clarify(cl Clarification) Conversation {
	next := c.copyHistory()
	next.State = StateNeedsClarification
	next.Questions = append([]string(nil), cl.Questions...)
	next.SuggestedType = cl.SuggestedVoucherType
	next.Failure = nil
	return next
}

// Fail records a failure. Interpretation failures carry their retryable flag.
func (c Conversation) Fail(err error) Conversation {
	next := c.copyHistory()
	next.State = StateFailed
	next.Questions = nil
	f := &Failure{Reason: err.Error(), Retryable: true}
	var aiErr *AIInterpretationError
	if errors.As(err, &aiErr) {
		f.Retryable = aiErr.Retryable
	}
	next.Failure = f
	return next
}

// Cancel abandons any pending request; a late response is then discarded
// because its RequestID no longer matches.
func (c Conversation) Cancel() Conversation {
	return Conversation{State: StateIdle}
}

func (c Conversation) copyHistory() Conversation {
	next := c
	next.History = append([]Turn(nil), c.History...)
	return next
}
