package posting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// MemoryRepository is an in-process RepositoryPort. Each transaction works
// on a copy of the state that replaces the original only on success.
type MemoryRepository struct {
	mu    sync.Mutex
	state memoryState
	now   func() time.Time
}

type memoryState struct {
	keys     map[string]Receipt
	drafts   map[uuid.UUID]int64
	mappings map[string]int64
	balances map[int64]decimal.Decimal
	vouchers []StoredVoucher
	nextID   int64
}

// StoredVoucher is a persisted voucher held by MemoryRepository.
type StoredVoucher struct {
	Header   Header
	Inserted Inserted
	Lines    []Line
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: memoryState{
			keys:     map[string]Receipt{},
			drafts:   map[uuid.UUID]int64{},
			mappings: map[string]int64{},
			balances: map[int64]decimal.Decimal{},
			nextID:   1,
		},
		now: time.Now,
	}
}

// NewMemoryGateway returns a posting Service backed by a fresh
// MemoryRepository.
func NewMemoryGateway(mappings map[string]int64) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	for key, id := range mappings {
		repo.SetMapping(key, id)
	}
	return NewService(repo, nil), repo
}

// SetMapping binds a mapping key to a ledger id.
func (r *MemoryRepository) SetMapping(key string, ledgerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.mappings[key] = ledgerID
}

// Balance returns the running balance of a ledger.
func (r *MemoryRepository) Balance(ledgerID int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.state.balances[ledgerID]; ok {
		return b
	}
	return decimal.Zero
}

// Vouchers returns the stored vouchers in insertion order.
func (r *MemoryRepository) Vouchers() []StoredVoucher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StoredVoucher, len(r.state.vouchers))
	copy(out, r.state.vouchers)
	return out
}

// Cleanup drops receipts posted before the retention window.
func (r *MemoryRepository) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-olderThan)
	var removed int64
	for key, receipt := range r.state.keys {
		if receipt.PostedAt.Before(cutoff) {
			delete(r.state.keys, key)
			removed++
		}
	}
	return removed, nil
}

// WithTx runs fn against a copy of the state, committing it when fn succeeds.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{state: r.state.clone(), now: r.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		keys:     make(map[string]Receipt, len(s.keys)),
		drafts:   make(map[uuid.UUID]int64, len(s.drafts)),
		mappings: make(map[string]int64, len(s.mappings)),
		balances: make(map[int64]decimal.Decimal, len(s.balances)),
		vouchers: append([]StoredVoucher(nil), s.vouchers...),
		nextID:   s.nextID,
	}
	for k, v := range s.keys {
		out.keys[k] = v
	}
	for k, v := range s.drafts {
		out.drafts[k] = v
	}
	for k, v := range s.mappings {
		out.mappings[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	return out
}

type memoryTx struct {
	state memoryState
	now   func() time.Time
}

func (t *memoryTx) LookupKey(_ context.Context, key string) (*Receipt, error) {
	receipt, ok := t.state.keys[key]
	if !ok {
		return nil, nil
	}
	return &receipt, nil
}

func (t *memoryTx) ClaimDraft(_ context.Context, draftID uuid.UUID, version int64) error {
	if _, ok := t.state.drafts[draftID]; ok {
		return voucher.ErrDraftPosted
	}
	t.state.drafts[draftID] = version
	return nil
}

func (t *memoryTx) ResolveMapping(_ context.Context, key string) (int64, error) {
	id, ok := t.state.mappings[key]
	if !ok {
		return 0, ErrMappingNotFound
	}
	return id, nil
}

func (t *memoryTx) InsertVoucher(_ context.Context, h Header) (Inserted, error) {
	id := t.state.nextID
	t.state.nextID++
	number := h.Number
	if number == "" {
		number = defaultNumber(h.Type, id)
	}
	inserted := Inserted{ID: id, Number: number, PostedAt: t.now().UTC()}
	t.state.vouchers = append(t.state.vouchers, StoredVoucher{Header: h, Inserted: inserted})
	return inserted, nil
}

func (t *memoryTx) InsertLines(_ context.Context, voucherID int64, lines []Line) error {
	for i := range t.state.vouchers {
		if t.state.vouchers[i].Inserted.ID == voucherID {
			t.state.vouchers[i].Lines = append([]Line(nil), lines...)
			return nil
		}
	}
	return ErrNoLines
}

func (t *memoryTx) ApplyBalance(_ context.Context, ledgerID int64, delta decimal.Decimal) error {
	current, ok := t.state.balances[ledgerID]
	if !ok {
		current = decimal.Zero
	}
	t.state.balances[ledgerID] = current.Add(delta)
	return nil
}

func (t *memoryTx) SaveKey(_ context.Context, key string, _ uuid.UUID, receipt Receipt) error {
	if _, ok := t.state.keys[key]; ok {
		return ErrIdempotencyConflict
	}
	t.state.keys[key] = receipt
	return nil
}

// LedgerIDs lists ledgers holding a balance, sorted.
func (r *MemoryRepository) LedgerIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.state.balances))
	for id := range r.state.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
