package workspace

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgerdesk/internal/events"
	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
	"github.com/odyssey-erp/ledgerdesk/internal/ledgers"
	"github.com/odyssey-erp/ledgerdesk/internal/observability"
	"github.com/odyssey-erp/ledgerdesk/internal/posting"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// Directory supplies the ledger list used for name resolution and AI context.
type Directory interface {
	List(ctx context.Context) ([]ledgers.Ledger, error)
	Invalidate(ctx context.Context) error
}

// Enqueuer hands posted vouchers to background processing.
type Enqueuer interface {
	EnqueueVoucherPosted(ctx context.Context, evt events.VoucherPosted) error
}

// Config wires a Service.
type Config struct {
	Engine      *voucher.Engine
	Interpreter *interpreter.Interpreter
	Gateway     posting.Gateway
	Store       Store
	Guard       Guard
	Directory   Directory
	Enqueuer    Enqueuer
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service coordinates drafts, commands and posting.
type Service struct {
	engine    *voucher.Engine
	interp    *interpreter.Interpreter
	gateway   posting.Gateway
	store     Store
	guard     Guard
	directory Directory
	enqueuer  Enqueuer
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the workspace service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	guard := cfg.Guard
	if guard == nil {
		guard = NewMemoryGuard(time.Minute)
	}
	return &Service{
		engine:    cfg.Engine,
		interp:    cfg.Interpreter,
		gateway:   cfg.Gateway,
		store:     store,
		guard:     guard,
		directory: cfg.Directory,
		enqueuer:  cfg.Enqueuer,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Engine exposes the voucher engine.
func (s *Service) Engine() *voucher.Engine {
	return s.engine
}

// CreateDraft starts a new draft session.
func (s *Service) CreateDraft(ctx context.Context, in voucher.NewDraftInput) (Session, error) {
	d, err := s.engine.New(in)
	if err != nil {
		return Session{}, err
	}
	sess := Session{Draft: d, Conversation: interpreter.Conversation{State: interpreter.StateIdle}, UpdatedAt: s.now().UTC()}
	if err := s.store.Create(ctx, sess); err != nil {
		return Session{}, err
	}
	s.logger.Info("draft created", slog.String("draft_id", d.ID.String()), slog.String("voucher_type", string(d.Type)))
	return sess, nil
}

// GetDraft loads a session.
func (s *Service) GetDraft(ctx context.Context, id uuid.UUID) (Session, error) {
	return s.store.Get(ctx, id)
}

// ApplyActions applies direct edits. When expectedVersion is set it must
// match the stored draft. An edit cancels any pending AI request, whose late
// response is then discarded.
func (s *Service) ApplyActions(ctx context.Context, id uuid.UUID, expectedVersion *int64, actions ...voucher.Action) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if expectedVersion != nil && *expectedVersion != sess.Draft.Version {
		return sess, &voucher.ConcurrentModificationError{Expected: *expectedVersion, Actual: sess.Draft.Version}
	}
	if sess.Posting {
		token, err := s.guard.Acquire(ctx, id)
		if err != nil {
			return sess, ErrPostingInProgress
		}
		defer s.release(id, token)
		// The posting that set the marker no longer holds the guard.
		sess.Posting = false
	}
	next, err := s.engine.Apply(sess.Draft, actions...)
	if err != nil {
		return sess, err
	}
	sess.Draft = next
	if sess.Conversation.Busy() {
		sess.Conversation = sess.Conversation.Cancel()
		if err := s.guard.Clear(ctx, id); err != nil {
			s.logger.Warn("clear inflight guard", slog.String("draft_id", id.String()), slog.Any("error", err))
		}
	}
	return s.save(ctx, sess)
}

// ResolveLedgers binds ledger names on the draft to directory ids.
func (s *Service) ResolveLedgers(ctx context.Context, id uuid.UUID) (Session, error) {
	list, err := s.ledgers(ctx)
	if err != nil {
		return Session{}, err
	}
	return s.ApplyActions(ctx, id, nil, voucher.ResolveLedgers{Resolver: interpreter.NewResolver(list)})
}

// SubmitCommand sends a natural-language command for the draft. Model
// failures and clarifications are recorded on the conversation rather than
// returned as errors.
func (s *Service) SubmitCommand(ctx context.Context, id uuid.UUID, text string) (Session, error) {
	return s.dispatch(ctx, id, func(c interpreter.Conversation, version int64) (interpreter.Conversation, error) {
		return c.Begin(text, version)
	})
}

// AnswerClarification replies to the model's questions and re-dispatches.
func (s *Service) AnswerClarification(ctx context.Context, id uuid.UUID, text string) (Session, error) {
	return s.dispatch(ctx, id, func(c interpreter.Conversation, version int64) (interpreter.Conversation, error) {
		return c.Answer(text, version)
	})
}

// CancelCommand abandons the pending request, if any.
func (s *Service) CancelCommand(ctx context.Context, id uuid.UUID) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Conversation = sess.Conversation.Cancel()
	saved, err := s.save(ctx, sess)
	if err != nil {
		return Session{}, err
	}
	if err := s.guard.Clear(ctx, id); err != nil {
		s.logger.Warn("clear inflight guard", slog.String("draft_id", id.String()), slog.Any("error", err))
	}
	return saved, nil
}

type transition func(interpreter.Conversation, int64) (interpreter.Conversation, error)

func (s *Service) dispatch(ctx context.Context, id uuid.UUID, begin transition) (Session, error) {
	if s.interp == nil {
		return Session{}, &interpreter.AIInterpretationError{Reason: "interpreter not configured", Err: interpreter.ErrNotSent}
	}
	token, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return Session{}, err
	}
	defer s.release(id, token)

	var (
		sess Session
		list []ledgers.Ledger
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sess, err = s.store.Get(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		list, err = s.ledgers(gctx)
		if err != nil {
			s.logger.Warn("ledger directory unavailable", slog.Any("error", err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Session{}, err
	}
	if sess.Draft.Status == voucher.StatusPosted {
		return sess, voucher.ErrDraftPosted
	}
	sess.Posting = false
	conv := settle(sess.Conversation)
	conv, err = begin(conv, sess.Draft.Version)
	if err != nil {
		return sess, err
	}
	sess.Conversation = conv
	sess, err = s.save(ctx, sess)
	if err != nil {
		return Session{}, err
	}

	started := s.now()
	draft, outcome, runErr := s.interp.Run(ctx, sess.Draft, conv, list)
	s.metrics.RecordAI(aiOutcome(outcome, runErr), s.now().Sub(started))

	// The outcome is stored even when the caller went away.
	persist := context.WithoutCancel(ctx)
	current, err := s.store.Get(persist, id)
	if err != nil {
		return Session{}, err
	}
	if current.Conversation.RequestID != conv.RequestID || current.Draft.Version != conv.RequestVersion {
		s.logger.Info("discarding stale ai response", slog.String("draft_id", id.String()), slog.String("request_id", conv.RequestID))
		return current, &interpreter.AIInterpretationError{Reason: "draft changed", Retryable: true, Err: interpreter.ErrStaleResponse}
	}
	current.Draft = draft
	current.Conversation = outcome
	return s.save(persist, current)
}

// settle drops a request left in flight by a holder that no longer owns the
// guard. Callers must hold the guard.
func settle(c interpreter.Conversation) interpreter.Conversation {
	if c.Busy() {
		return c.Cancel()
	}
	return c
}

// Post persists the draft through the gateway. key deduplicates retries: a
// repeat with the same key returns the first receipt.
func (s *Service) Post(ctx context.Context, id uuid.UUID, key, postedBy string) (Session, error) {
	if key == "" {
		return Session{}, posting.ErrIdempotencyKeyRequired
	}
	token, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return Session{}, err
	}
	defer s.release(id, token)

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Draft.Status == voucher.StatusPosted {
		if sess.PostingKey == key && sess.Receipt != nil {
			replay := *sess.Receipt
			replay.Replayed = true
			sess.Receipt = &replay
			s.metrics.RecordPosting(string(sess.Draft.Type), "replayed")
			return sess, nil
		}
		return sess, voucher.ErrDraftPosted
	}
	sess.Conversation = settle(sess.Conversation)

	lines, err := s.engine.JournalLines(sess.Draft)
	if err != nil {
		s.metrics.RecordPosting(string(sess.Draft.Type), postingOutcome(err))
		return sess, err
	}
	sess.Posting = true
	sess, err = s.save(ctx, sess)
	if err != nil {
		return Session{}, err
	}

	// The outcome is stored even when the caller went away.
	persist := context.WithoutCancel(ctx)
	receipt, err := s.gateway.Post(ctx, posting.Request{
		Draft:          sess.Draft,
		Lines:          lines,
		IdempotencyKey: key,
		PostedBy:       postedBy,
	})
	if err != nil {
		s.metrics.RecordPosting(string(sess.Draft.Type), postingOutcome(err))
		s.logger.Error("post voucher", slog.String("draft_id", id.String()), slog.Any("error", err))
		sess.Posting = false
		if saved, serr := s.save(persist, sess); serr == nil {
			sess = saved
		} else {
			s.logger.Warn("clear posting marker", slog.String("draft_id", id.String()), slog.Any("error", serr))
		}
		return sess, err
	}
	outcome := "posted"
	if receipt.Replayed {
		outcome = "replayed"
	}
	s.metrics.RecordPosting(string(sess.Draft.Type), outcome)

	posted, err := s.engine.MarkPosted(sess.Draft, receipt.TransactionID, receipt.PostedAt)
	if err != nil {
		return sess, err
	}
	sess.Draft = posted
	sess.Posting = false
	sess.PostingKey = key
	sess.Receipt = &receipt
	saved, err := s.savePosted(persist, sess)
	if err != nil {
		// The ledger already holds the voucher; a retry with the same key
		// replays the receipt and saves again.
		s.logger.Error("save posted draft", slog.String("draft_id", id.String()), slog.Any("error", err))
		return sess, err
	}

	s.afterPost(ctx, saved, lines)
	return saved, nil
}

// savePosted stores a posted session. Edits are blocked while posting, so a
// revision conflict can only come from conversation updates and is retried
// once on the latest copy.
func (s *Service) savePosted(ctx context.Context, sess Session) (Session, error) {
	saved, err := s.save(ctx, sess)
	var conflict *voucher.ConcurrentModificationError
	if !errors.As(err, &conflict) {
		return saved, err
	}
	current, err := s.store.Get(ctx, sess.Draft.ID)
	if err != nil {
		return Session{}, err
	}
	current.Draft = sess.Draft
	current.Posting = false
	current.PostingKey = sess.PostingKey
	current.Receipt = sess.Receipt
	return s.save(ctx, current)
}

func (s *Service) afterPost(ctx context.Context, sess Session, lines []voucher.JournalLine) {
	if s.directory != nil {
		if err := s.directory.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate ledger cache", slog.Any("error", err))
		}
	}
	if s.enqueuer == nil || sess.Receipt == nil {
		return
	}
	evt := events.VoucherPosted{
		TransactionID: sess.Receipt.TransactionID,
		VoucherID:     sess.Receipt.VoucherID,
		Number:        sess.Receipt.Number,
		DraftID:       sess.Draft.ID.String(),
		VoucherType:   string(sess.Draft.Type),
		Date:          sess.Draft.Date.Format("2006-01-02"),
		TotalDebit:    sess.Draft.Totals.TotalDebit,
		TotalCredit:   sess.Draft.Totals.TotalCredit,
		PostedAt:      sess.Receipt.PostedAt,
	}
	if err := s.enqueuer.EnqueueVoucherPosted(ctx, evt); err != nil {
		s.logger.Warn("enqueue voucher posted", slog.String("transaction_id", evt.TransactionID), slog.Int("lines", len(lines)), slog.Any("error", err))
	}
}

func (s *Service) ledgers(ctx context.Context) ([]ledgers.Ledger, error) {
	if s.directory == nil {
		return nil, nil
	}
	return s.directory.List(ctx)
}

func (s *Service) save(ctx context.Context, sess Session) (Session, error) {
	sess.UpdatedAt = s.now().UTC()
	return s.store.Save(ctx, sess, sess.Revision)
}

func (s *Service) release(id uuid.UUID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.guard.Release(ctx, id, token); err != nil {
		s.logger.Warn("release inflight guard", slog.String("draft_id", id.String()), slog.Any("error", err))
	}
}

func aiOutcome(c interpreter.Conversation, err error) string {
	if err != nil {
		if errors.Is(err, interpreter.ErrStaleResponse) {
			return "stale"
		}
		return "failed"
	}
	switch c.State {
	case interpreter.StateApplied:
		return "applied"
	case interpreter.StateNeedsClarification:
		return "clarify"
	default:
		return string(c.State)
	}
}

func postingOutcome(err error) string {
	var (
		unbalanced *voucher.UnbalancedVoucherError
		unresolved *voucher.UnresolvedLedgerError
		conflict   *voucher.ConcurrentModificationError
		perr       *posting.PersistenceError
		verr       *voucher.ValidationError
	)
	switch {
	case errors.As(err, &unbalanced):
		return "unbalanced"
	case errors.As(err, &unresolved):
		return "unresolved"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &perr):
		return "persistence"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, voucher.ErrNothingToPost):
		return "empty"
	default:
		return "error"
	}
}
