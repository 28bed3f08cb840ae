package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/domain"
)

// CreditRepositoryPG implements domain.CreditRepository. Every mutation keeps
// the denormalized balance and the appended ledger entry in one transaction.
type CreditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a credit repository backed by PostgreSQL.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepositoryPG {
	return &CreditRepositoryPG{pool: pool}
}

// Balance returns the user's current balance.
func (r *CreditRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1;`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

// ReserveAndCharge atomically decrements the balance if it covers the cost and
// appends the reservation entry. The decrement-if-sufficient happens in a
// single UPDATE so concurrent submissions from the same user cannot
// double-spend: exactly one of two racing calls sees a row affected.
func (r *CreditRepositoryPG) ReserveAndCharge(ctx context.Context, entry *domain.CreditLedgerEntry) error {
	if entry.Amount >= 0 {
		return fmt.Errorf("credits: charge amount must be negative, got %d", entry.Amount)
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE users
SET credit_balance = credit_balance + $2, updated_at = NOW()
WHERE id = $1 AND credit_balance >= -$2;
`, entry.UserID, entry.Amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if err := r.userExists(ctx, tx, entry.UserID); err != nil {
				return err
			}
			return domain.ErrInsufficientCredits
		}
		return r.appendEntry(ctx, tx, entry)
	})
}

// Refund atomically increments the balance and appends the refund entry.
func (r *CreditRepositoryPG) Refund(ctx context.Context, entry *domain.CreditLedgerEntry) error {
	if entry.Amount <= 0 {
		return fmt.Errorf("credits: refund amount must be positive, got %d", entry.Amount)
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE users
SET credit_balance = credit_balance + $2, updated_at = NOW()
WHERE id = $1;
`, entry.UserID, entry.Amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return r.appendEntry(ctx, tx, entry)
	})
}

// SetBalance overwrites the balance (plan reset) and records the delta.
func (r *CreditRepositoryPG) SetBalance(ctx context.Context, userID string, newBalance int, entry *domain.CreditLedgerEntry) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var prev int
		err := tx.QueryRow(ctx, `
UPDATE users
SET credit_balance = $2, updated_at = NOW()
WHERE id = $1
RETURNING (SELECT credit_balance FROM users WHERE id = $1);
`, userID, newBalance).Scan(&prev)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		entry.Amount = newBalance - prev
		return r.appendEntry(ctx, tx, entry)
	})
}

// Entries returns the user's most recent ledger entries.
func (r *CreditRepositoryPG) Entries(ctx context.Context, userID string, limit int) ([]domain.CreditLedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, amount, entry_type, description, COALESCE(job_id::text, ''), created_at
FROM credit_ledger
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.CreditLedgerEntry
	for rows.Next() {
		var e domain.CreditLedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Type, &e.Description, &e.JobID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *CreditRepositoryPG) appendEntry(ctx context.Context, tx pgx.Tx, entry *domain.CreditLedgerEntry) error {
	return tx.QueryRow(ctx, `
INSERT INTO credit_ledger (id, user_id, amount, entry_type, description, job_id)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
RETURNING created_at;
`, entry.ID, entry.UserID, entry.Amount, entry.Type, entry.Description, entry.JobID).Scan(&entry.CreatedAt)
}

func (r *CreditRepositoryPG) userExists(ctx context.Context, tx pgx.Tx, userID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1);`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CreditRepositoryPG) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var _ domain.CreditRepository = (*CreditRepositoryPG)(nil)
