package posting

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/platform/db"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

const idempotencyModuleVoucher = "VOUCHER"

// Repository persists vouchers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction. Serialization
// failures surface as concurrent modifications.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("posting repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return &voucher.ConcurrentModificationError{}
	}
	return err
}

func (r *txRepository) LookupKey(ctx context.Context, key string) (*Receipt, error) {
	var raw []byte
	err := r.tx.QueryRow(ctx, `SELECT receipt FROM idempotency_keys WHERE key=$1 AND module=$2`, key, idempotencyModuleVoucher).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *txRepository) ClaimDraft(ctx context.Context, draftID uuid.UUID, version int64) error {
	tag, err := r.tx.Exec(ctx, `INSERT INTO draft_versions (draft_id, version) VALUES ($1,$2)
ON CONFLICT (draft_id) DO NOTHING`, draftID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return voucher.ErrDraftPosted
	}
	return nil
}

func (r *txRepository) ResolveMapping(ctx context.Context, key string) (int64, error) {
	var ledgerID int64
	err := r.tx.QueryRow(ctx, `SELECT ledger_id FROM ledger_mappings WHERE key=$1`, key).Scan(&ledgerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrMappingNotFound
	}
	return ledgerID, err
}

func (r *txRepository) InsertVoucher(ctx context.Context, h Header) (Inserted, error) {
	var out Inserted
	err := r.tx.QueryRow(ctx, `WITH seq AS (SELECT nextval('vouchers_id_seq') AS id)
INSERT INTO vouchers (id, transaction_id, draft_id, draft_version, voucher_type, number, date, reference, narration,
	party_ledger_id, total_debit, total_credit, posted_by)
SELECT seq.id, $1, $2, $3, $4, COALESCE(NULLIF($5, ''), upper($4) || '-' || lpad(seq.id::text, 6, '0')), $6, $7, $8, $9, $10, $11, NULLIF($12, '')
FROM seq
RETURNING id, number, posted_at`,
		h.TransactionID, h.DraftID, h.DraftVersion, string(h.Type), h.Number, h.Date, h.Reference, h.Narration,
		h.PartyLedgerID, h.TotalDebit, h.TotalCredit, h.PostedBy).
		Scan(&out.ID, &out.Number, &out.PostedAt)
	return out, err
}

func (r *txRepository) InsertLines(ctx context.Context, voucherID int64, lines []Line) error {
	batch := &pgx.Batch{}
	for i, l := range lines {
		batch.Queue(`INSERT INTO voucher_lines (voucher_id, line_no, ledger_id, debit, credit, memo) VALUES ($1,$2,$3,$4,$5,$6)`,
			voucherID, i+1, l.LedgerID, l.Debit, l.Credit, l.Memo)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) ApplyBalance(ctx context.Context, ledgerID int64, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE ledgers SET balance = balance + $2, last_used_at = now() WHERE id=$1`, ledgerID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &voucher.UnresolvedLedgerError{Lines: []voucher.LineIssue{{Collection: "ledgers", Name: strconv.FormatInt(ledgerID, 10)}}}
	}
	return nil
}

func (r *txRepository) SaveKey(ctx context.Context, key string, draftID uuid.UUID, receipt Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO idempotency_keys (key, module, draft_id, receipt, created_at) VALUES ($1,$2,$3,$4,now())`,
		key, idempotencyModuleVoucher, draftID, raw)
	if db.IsUniqueViolation(err, "") {
		return ErrIdempotencyConflict
	}
	return err
}
