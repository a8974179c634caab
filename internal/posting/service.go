package posting

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// Gateway persists balanced drafts as immutable ledger transactions.
type Gateway interface {
	Post(ctx context.Context, req Request) (Receipt, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes of one posting transaction.
type TxRepository interface {
	LookupKey(ctx context.Context, key string) (*Receipt, error)
	// ClaimDraft records the draft as posted at version. A draft already
	// claimed returns voucher.ErrDraftPosted.
	ClaimDraft(ctx context.Context, draftID uuid.UUID, version int64) error
	ResolveMapping(ctx context.Context, key string) (int64, error)
	InsertVoucher(ctx context.Context, h Header) (Inserted, error)
	InsertLines(ctx context.Context, voucherID int64, lines []Line) error
	ApplyBalance(ctx context.Context, ledgerID int64, delta decimal.Decimal) error
	SaveKey(ctx context.Context, key string, draftID uuid.UUID, receipt Receipt) error
}

// Service implements Gateway over a RepositoryPort. The idempotency key,
// header, lines, balances and draft version are written in one transaction.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

var _ Gateway = (*Service)(nil)

// NewService constructs the posting gateway.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post writes req or, when its key was already processed, returns the
// earlier receipt. Nothing is retried automatically.
func (s *Service) Post(ctx context.Context, req Request) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, err
	}
	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.LookupKey(ctx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if prior != nil {
			receipt = *prior
			receipt.Replayed = true
			return nil
		}
		if err := tx.ClaimDraft(ctx, req.Draft.ID, req.Draft.Version); err != nil {
			return err
		}
		lines, err := resolveLines(ctx, tx, req.Lines)
		if err != nil {
			return err
		}
		header := buildHeader(req, lines)
		inserted, err := tx.InsertVoucher(ctx, header)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		for _, d := range balanceDeltas(lines) {
			if err := tx.ApplyBalance(ctx, d.ledgerID, d.delta); err != nil {
				return err
			}
		}
		receipt = Receipt{
			TransactionID: header.TransactionID.String(),
			VoucherID:     inserted.ID,
			Number:        inserted.Number,
			PostedAt:      inserted.PostedAt,
		}
		if receipt.PostedAt.IsZero() {
			receipt.PostedAt = s.now().UTC()
		}
		return tx.SaveKey(ctx, req.IdempotencyKey, req.Draft.ID, receipt)
	})
	if errors.Is(err, ErrIdempotencyConflict) {
		return s.replay(ctx, req.IdempotencyKey)
	}
	if err != nil {
		return Receipt{}, classify("post voucher", err)
	}
	s.logger.Info("voucher posted",
		slog.String("draft_id", req.Draft.ID.String()),
		slog.String("transaction_id", receipt.TransactionID),
		slog.Bool("replayed", receipt.Replayed))
	return receipt, nil
}

// replay reads the receipt stored by the posting that won the key.
func (s *Service) replay(ctx context.Context, key string) (Receipt, error) {
	var receipt *Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		receipt, err = tx.LookupKey(ctx, key)
		return err
	})
	if err != nil {
		return Receipt{}, classify("replay receipt", err)
	}
	if receipt == nil {
		return Receipt{}, &PersistenceError{Op: "replay receipt", Err: ErrIdempotencyConflict}
	}
	out := *receipt
	out.Replayed = true
	return out, nil
}

func resolveLines(ctx context.Context, tx TxRepository, in []voucher.JournalLine) ([]Line, error) {
	out := make([]Line, 0, len(in))
	var missing []voucher.LineIssue
	for i, l := range in {
		var ledgerID int64
		switch {
		case l.LedgerID != nil:
			ledgerID = *l.LedgerID
		case l.MappingKey != "":
			id, err := tx.ResolveMapping(ctx, l.MappingKey)
			if errors.Is(err, ErrMappingNotFound) {
				missing = append(missing, voucher.LineIssue{Collection: "tax_entries", Index: i, Name: l.MappingKey})
				continue
			}
			if err != nil {
				return nil, err
			}
			ledgerID = id
		default:
			missing = append(missing, voucher.LineIssue{Collection: "journal", Index: i, Name: l.LedgerName})
			continue
		}
		out = append(out, Line{LedgerID: ledgerID, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo})
	}
	if len(missing) > 0 {
		return nil, &voucher.UnresolvedLedgerError{Lines: missing}
	}
	return out, nil
}

func buildHeader(req Request, lines []Line) Header {
	h := Header{
		TransactionID: uuid.New(),
		DraftID:       req.Draft.ID,
		DraftVersion:  req.Draft.Version,
		Type:          req.Draft.Type,
		Number:        req.Draft.Number,
		Date:          req.Draft.Date,
		Reference:     req.Draft.Reference,
		Narration:     req.Draft.Narration,
		TotalDebit:    decimal.Zero,
		TotalCredit:   decimal.Zero,
		PostedBy:      req.PostedBy,
	}
	if req.Draft.Party != nil {
		h.PartyLedgerID = req.Draft.Party.Ledger.ID
	}
	for _, l := range lines {
		h.TotalDebit = h.TotalDebit.Add(l.Debit)
		h.TotalCredit = h.TotalCredit.Add(l.Credit)
	}
	return h
}

type ledgerDelta struct {
	ledgerID int64
	delta    decimal.Decimal
}

// balanceDeltas nets lines per ledger, ordered by ledger id so concurrent
// postings lock balance rows in the same order.
func balanceDeltas(lines []Line) []ledgerDelta {
	index := map[int64]int{}
	var out []ledgerDelta
	for _, l := range lines {
		delta := l.Debit.Sub(l.Credit)
		if i, ok := index[l.LedgerID]; ok {
			out[i].delta = out[i].delta.Add(delta)
			continue
		}
		index[l.LedgerID] = len(out)
		out = append(out, ledgerDelta{ledgerID: l.LedgerID, delta: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ledgerID < out[j].ledgerID })
	return out
}

func classify(op string, err error) error {
	var (
		unbalanced *voucher.UnbalancedVoucherError
		unresolved *voucher.UnresolvedLedgerError
		conflict   *voucher.ConcurrentModificationError
	)
	switch {
	case errors.As(err, &unbalanced), errors.As(err, &unresolved), errors.As(err, &conflict):
		return err
	case errors.Is(err, ErrIdempotencyKeyRequired), errors.Is(err, ErrNoLines), errors.Is(err, voucher.ErrDraftPosted):
		return err
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
