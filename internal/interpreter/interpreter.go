package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/ledgerdesk/internal/ledgers"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// Request is what a Model receives: the conversation so far plus the
// bounded vocabulary bundle.
type Request struct {
	History []Turn `json:"history"`
	Context Bundle `json:"context"`
}

// Model is the external AI service.
type Model interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Options tunes an Interpreter.
type Options struct {
	Timeout      time.Duration
	ContextLimit int
}

// Interpreter turns a dispatched conversation into a draft patch, a
// clarification or a failure.
type Interpreter struct {
	model   Model
	engine  *voucher.Engine
	timeout time.Duration
	limit   int
	logger  *slog.Logger
}

// New constructs an interpreter.
func New(model Model, engine *voucher.Engine, opts Options, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = DefaultContextLimit
	}
	return &Interpreter{model: model, engine: engine, timeout: opts.Timeout, limit: opts.ContextLimit, logger: logger}
}

// Run performs the model call for a conversation in StateSent and lands it
// in StateApplied, StateNeedsClarification or StateFailed. The returned
// draft differs from d only when the patch applied cleanly.
func (i *Interpreter) Run(ctx context.Context, d voucher.Draft, conv Conversation, directory []ledgers.Ledger) (voucher.Draft, Conversation, error) {
	if !conv.Busy() {
		return d, conv, ErrNotSent
	}
	if conv.Stale(d.Version) {
		err := &AIInterpretationError{Reason: "draft changed", Retryable: true, Err: ErrStaleResponse}
		return d, conv.Fail(err), err
	}

	req := Request{
		History: conv.History,
		Context: BuildContext(userText(conv.History), directory, i.limit),
	}
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	started := time.Now()
	raw, err := i.model.Complete(callCtx, req)
	if err != nil {
		aiErr := classify(err)
		i.logger.Warn("ai command failed", slog.String("draft_id", d.ID.String()), slog.Any("error", err))
		return d, conv.Fail(aiErr), aiErr
	}
	i.logger.Debug("ai command answered", slog.String("draft_id", d.ID.String()), slog.Duration("elapsed", time.Since(started)))

	res := Parse(raw)
	switch res.Kind {
	case KindClarify:
		return d, conv.Clarify(*res.Clarification), nil
	case KindApplied:
	default:
		aiErr := &AIInterpretationError{Reason: res.Reason, Retryable: true, Err: ErrMalformedResponse}
		i.logger.Warn("ai response rejected", slog.String("draft_id", d.ID.String()), slog.String("reason", res.Reason))
		return d, conv.Fail(aiErr), aiErr
	}

	actions, err := PatchActions(*res.Patch, d, i.engine.Table(), NewResolver(directory))
	if err != nil {
		aiErr := &AIInterpretationError{Reason: "patch rejected", Retryable: true, Err: err}
		return d, conv.Fail(aiErr), aiErr
	}
	next, err := i.engine.Apply(d, actions...)
	if err != nil {
		aiErr := &AIInterpretationError{Reason: "patch rejected", Retryable: true, Err: fmt.Errorf("%w: %w", ErrPatchRejected, err)}
		return d, conv.Fail(aiErr), aiErr
	}
	return next, conv.Apply(res.Patch), nil
}

func classify(err error) *AIInterpretationError {
	var aiErr *AIInterpretationError
	if errors.As(err, &aiErr) {
		return aiErr
	}
	reason := "service error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	return &AIInterpretationError{Reason: reason, Retryable: true, Err: err}
}

func userText(history []Turn) string {
	parts := make([]string, 0, len(history))
	for _, t := range history {
		if t.Role == RoleUser {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, " ")
}
