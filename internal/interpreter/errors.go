package interpreter

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy indicates a command is already in flight for the draft.
	ErrBusy = errors.New("interpreter: request already in flight")
	// ErrNoClarification indicates an answer without a pending question.
	ErrNoClarification = errors.New("interpreter: no clarification pending")
	// ErrNotSent indicates a run without a dispatched command.
	ErrNotSent = errors.New("interpreter: no command sent")
	// ErrEmptyCommand indicates blank command or answer text.
	ErrEmptyCommand = errors.New("interpreter: command text required")
	// ErrStaleResponse indicates a response for a draft version that has since changed.
	ErrStaleResponse = errors.New("interpreter: response is stale")
	// ErrMalformedResponse indicates output matching neither response shape.
	ErrMalformedResponse = errors.New("interpreter: malformed response")
	// ErrPatchRejected indicates a well-formed patch the draft refused.
	ErrPatchRejected = errors.New("interpreter: patch rejected")
	// ErrEmptyCompletion indicates the service returned no choices.
	ErrEmptyCompletion = errors.New("interpreter: empty completion")
)

// AIInterpretationError reports a failed interpretation. It is always safe
// to re-issue the command; the core never retries on its own.
type AIInterpretationError struct {
	Reason     string
	Retryable  bool
	StatusCode int
	Err        error
}

func (e *AIInterpretationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("interpreter: %s", e.Reason)
	}
	return fmt.Sprintf("interpreter: %s: %v", e.Reason, e.Err)
}

func (e *AIInterpretationError) Unwrap() error {
	return e.Err
}
