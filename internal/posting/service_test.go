package posting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func ref(id int64, name string) voucher.LedgerRef {
	return voucher.LedgerRef{ID: &id, Name: name}
}

var saleMappings = map[string]int64{
	"tax.output.CGST": 30,
	"tax.output.SGST": 31,
	"tax.output.IGST": 32,
}

func saleRequest(t *testing.T, key string) Request {
	t.Helper()
	e := voucher.NewEngine(tax.DefaultTable(), "IN")
	d, err := e.New(voucher.NewDraftInput{Type: voucher.TypeSales, CompanyRegion: "MH"})
	require.NoError(t, err)
	d, err = e.Apply(d,
		voucher.SetParty{Party: &voucher.Party{Ledger: ref(10, "Acme Traders"), PlaceOfSupply: "MH"}},
		voucher.SetValueLedger{Ledger: ref(20, "Sales")},
		voucher.UpdateStockLine{Index: 0, Patch: voucher.StockPatch{
			Item:     &voucher.ItemRef{Name: "Widget"},
			Quantity: decp("5"),
			Rate:     decp("100"),
			TaxRate:  decp("18"),
		}},
	)
	require.NoError(t, err)
	lines, err := e.JournalLines(d)
	require.NoError(t, err)
	return Request{Draft: d, Lines: lines, IdempotencyKey: key, PostedBy: "tester"}
}

func TestPostSalePersistsBalancedVoucher(t *testing.T) {
	svc, repo := NewMemoryGateway(saleMappings)

	receipt, err := svc.Post(context.Background(), saleRequest(t, "sale-1"))
	require.NoError(t, err)
	assert.False(t, receipt.Replayed)
	assert.NotEmpty(t, receipt.TransactionID)
	assert.Equal(t, "SALES-000001", receipt.Number)

	vouchers := repo.Vouchers()
	require.Len(t, vouchers, 1)
	assert.Len(t, vouchers[0].Lines, 4)
	assert.Equal(t, "590", vouchers[0].Header.TotalDebit.String())
	assert.Equal(t, "590", vouchers[0].Header.TotalCredit.String())

	assert.Equal(t, "590", repo.Balance(10).String())
	assert.Equal(t, "-500", repo.Balance(20).String())
	assert.Equal(t, "-45", repo.Balance(30).String())
	assert.Equal(t, "-45", repo.Balance(31).String())
	assert.Equal(t, []int64{10, 20, 30, 31}, repo.LedgerIDs())
}

func TestPostReplaysProcessedKey(t *testing.T) {
	svc, repo := NewMemoryGateway(saleMappings)
	req := saleRequest(t, "sale-1")

	first, err := svc.Post(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Post(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.VoucherID, second.VoucherID)
	assert.Len(t, repo.Vouchers(), 1)
	assert.Equal(t, "590", repo.Balance(10).String())
}

func TestPostMissingMappingWritesNothing(t *testing.T) {
	svc, repo := NewMemoryGateway(map[string]int64{"tax.output.CGST": 30})

	_, err := svc.Post(context.Background(), saleRequest(t, "sale-1"))
	var unresolved *voucher.UnresolvedLedgerError
	require.True(t, errors.As(err, &unresolved))
	require.Len(t, unresolved.Lines, 1)
	assert.Equal(t, "tax.output.SGST", unresolved.Lines[0].Name)

	assert.Empty(t, repo.Vouchers())
	assert.True(t, repo.Balance(10).IsZero())
}

func TestPostRefusesSecondVoucherForDraft(t *testing.T) {
	svc, repo := NewMemoryGateway(saleMappings)
	req := saleRequest(t, "sale-1")

	_, err := svc.Post(context.Background(), req)
	require.NoError(t, err)

	// A later edit of the same draft with a fresh key must not post again.
	req.IdempotencyKey = "sale-2"
	req.Draft.Version++
	_, err = svc.Post(context.Background(), req)
	assert.ErrorIs(t, err, voucher.ErrDraftPosted)
	assert.Len(t, repo.Vouchers(), 1)
	assert.Equal(t, "590", repo.Balance(10).String())

	req.IdempotencyKey = "sale-1"
	receipt, err := svc.Post(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, receipt.Replayed)
}

func TestRequestValidate(t *testing.T) {
	req := saleRequest(t, "")
	assert.ErrorIs(t, req.Validate(), ErrIdempotencyKeyRequired)

	req.IdempotencyKey = "k"
	req.Lines = nil
	assert.ErrorIs(t, req.Validate(), ErrNoLines)

	req = saleRequest(t, "k")
	req.Lines[0].Debit = req.Lines[0].Debit.Add(dec("0.01"))
	err := req.Validate()
	var unbalanced *voucher.UnbalancedVoucherError
	require.True(t, errors.As(err, &unbalanced))
	assert.Equal(t, "0.01", unbalanced.Difference.String())
}

type stubRepo struct {
	tx *stubTx
}

func (r stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r.tx)
}

type stubTx struct {
	insertErr error
	saveErr   error
	stored    *Receipt
	lookups   int
}

func (tx *stubTx) LookupKey(ctx context.Context, key string) (*Receipt, error) {
	tx.lookups++
	if tx.lookups == 1 {
		return nil, nil
	}
	return tx.stored, nil
}

func (tx *stubTx) ClaimDraft(ctx context.Context, draftID uuid.UUID, version int64) error {
	return nil
}

func (tx *stubTx) ResolveMapping(ctx context.Context, key string) (int64, error) {
	return 99, nil
}

func (tx *stubTx) InsertVoucher(ctx context.Context, h Header) (Inserted, error) {
	if tx.insertErr != nil {
		return Inserted{}, tx.insertErr
	}
	return Inserted{ID: 1, Number: "S-1"}, nil
}

func (tx *stubTx) InsertLines(ctx context.Context, voucherID int64, lines []Line) error {
	return nil
}

func (tx *stubTx) ApplyBalance(ctx context.Context, ledgerID int64, delta decimal.Decimal) error {
	return nil
}

func (tx *stubTx) SaveKey(ctx context.Context, key string, draftID uuid.UUID, receipt Receipt) error {
	return tx.saveErr
}

func TestPostWrapsStoreFailures(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(stubRepo{tx: &stubTx{insertErr: boom}}, nil)

	_, err := svc.Post(context.Background(), saleRequest(t, "k"))
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "post voucher", perr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestPostKeyConflictReturnsWinnerReceipt(t *testing.T) {
	winner := &Receipt{TransactionID: "tx-winner", VoucherID: 7, Number: "S-7"}
	svc := NewService(stubRepo{tx: &stubTx{saveErr: ErrIdempotencyConflict, stored: winner}}, nil)

	receipt, err := svc.Post(context.Background(), saleRequest(t, "k"))
	require.NoError(t, err)
	assert.True(t, receipt.Replayed)
	assert.Equal(t, "tx-winner", receipt.TransactionID)
	assert.Equal(t, int64(7), receipt.VoucherID)
}

func TestPostStampsClockWhenStoreOmitsTime(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	svc := NewService(stubRepo{tx: &stubTx{}}, nil)
	svc.WithNow(func() time.Time { return fixed })

	receipt, err := svc.Post(context.Background(), saleRequest(t, "k"))
	require.NoError(t, err)
	assert.Equal(t, fixed, receipt.PostedAt)
}

func TestBalanceDeltasNetPerLedger(t *testing.T) {
	deltas := balanceDeltas([]Line{
		{LedgerID: 5, Debit: dec("100"), Credit: decimal.Zero},
		{LedgerID: 2, Debit: decimal.Zero, Credit: dec("40")},
		{LedgerID: 5, Debit: decimal.Zero, Credit: dec("60")},
	})
	require.Len(t, deltas, 2)
	assert.Equal(t, int64(2), deltas[0].ledgerID)
	assert.Equal(t, "-40", deltas[0].delta.String())
	assert.Equal(t, int64(5), deltas[1].ledgerID)
	assert.Equal(t, "40", deltas[1].delta.String())
}

func TestMemoryCleanupDropsExpiredKeys(t *testing.T) {
	svc, repo := NewMemoryGateway(saleMappings)
	posted := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return posted }

	_, err := svc.Post(context.Background(), saleRequest(t, "sale-1"))
	require.NoError(t, err)

	repo.now = func() time.Time { return posted.Add(100 * time.Hour) }
	removed, err := RunCleanup(context.Background(), repo, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = RunCleanup(context.Background(), nil, time.Hour)
	assert.Error(t, err)
}
