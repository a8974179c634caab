package ledgers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository lists the ledger master.
type Repository interface {
	List(ctx context.Context) ([]Ledger, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context) ([]Ledger, error) {
	rows, err := r.db.Query(ctx, `SELECT l.id, l.name, COALESCE(g.name, ''), l.balance::text, l.last_used_at
FROM ledgers l
LEFT JOIN ledger_groups g ON g.id = l.group_id
WHERE l.is_active
ORDER BY l.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ledger
	for rows.Next() {
		var (
			l       Ledger
			balance string
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Group, &balance, &l.LastUsedAt); err != nil {
			return nil, err
		}
		if err := l.Balance.Scan(balance); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// StaticRepository serves a fixed ledger list.
type StaticRepository []Ledger

// List returns a copy of the list.
func (s StaticRepository) List(context.Context) ([]Ledger, error) {
	return append([]Ledger(nil), s...), nil
}
