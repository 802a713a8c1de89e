package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
)

// BalanceRepository handles monthly balance and balance transaction database
// operations. Balances are never cached: the conditional UPDATE must always
// run against the stored value.
type BalanceRepository struct {
	db *DB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *DB) *BalanceRepository {
	return &BalanceRepository{
		db: db,
	}
}

// Ensure creates the balance row for (caller, month) initialized to the
// given allotment if it does not exist yet, then returns the current row.
// INSERT ... ON CONFLICT DO NOTHING keeps concurrent first requests from
// racing: exactly one insert wins and everyone re-reads the same row.
func (r *BalanceRepository) Ensure(ctx context.Context, callerID uuid.UUID, month time.Time, allotment int64) (*models.MonthlyBalance, error) {
	insert := `
		INSERT INTO monthly_balances (id, caller_id, month, current_balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (caller_id, month) DO NOTHING
	`

	_, err := r.db.conn.ExecContext(ctx, insert, uuid.New(), callerID, month, allotment)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure monthly balance: %w", err)
	}

	return r.GetByCallerAndMonth(ctx, callerID, month)
}

// GetByCallerAndMonth retrieves the balance row for a caller and month
func (r *BalanceRepository) GetByCallerAndMonth(ctx context.Context, callerID uuid.UUID, month time.Time) (*models.MonthlyBalance, error) {
	var balance models.MonthlyBalance
	query := `
		SELECT id, caller_id, month, current_balance, created_at, updated_at
		FROM monthly_balances
		WHERE caller_id = $1 AND month = $2
	`

	err := r.db.conn.GetContext(ctx, &balance, query, callerID, month)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to get monthly balance: %w", err)
	}

	return &balance, nil
}

// DeductIfSufficient atomically subtracts cost from the caller's balance for
// the month, but only when the remaining balance covers it. The check and the
// subtraction are one conditional UPDATE, so two concurrent deductions can
// never drive the balance negative. A matching balance transaction is written
// in the same database transaction. Returns the balance after deduction, or
// ErrInsufficientBalance when the UPDATE matched no row.
func (r *BalanceRepository) DeductIfSufficient(ctx context.Context, callerID uuid.UUID, month time.Time, cost int64, endpointID *uuid.UUID) (int64, error) {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `
		UPDATE monthly_balances
		SET current_balance = current_balance - $3, updated_at = NOW()
		WHERE caller_id = $1 AND month = $2 AND current_balance >= $3
		RETURNING current_balance
	`

	var remaining int64
	err = tx.QueryRowContext(ctx, update, callerID, month, cost).Scan(&remaining)
	if err != nil {
		if err == sql.ErrNoRows {
			// Either the balance cannot cover the cost or the row does not
			// exist at all. Distinguish so callers can lazily initialize.
			var exists bool
			check := `SELECT EXISTS (SELECT 1 FROM monthly_balances WHERE caller_id = $1 AND month = $2)`
			if checkErr := tx.QueryRowContext(ctx, check, callerID, month).Scan(&exists); checkErr != nil {
				return 0, fmt.Errorf("failed to check monthly balance: %w", checkErr)
			}
			if !exists {
				return 0, ErrBalanceNotFound
			}
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("failed to deduct balance: %w", err)
	}

	insert := `
		INSERT INTO balance_transactions (id, caller_id, endpoint_id, delta, balance_after, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.ExecContext(ctx, insert, uuid.New(), callerID, endpointID, -cost, remaining, models.TransactionReasonDeduction)
	if err != nil {
		return 0, fmt.Errorf("failed to record balance transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deduction: %w", err)
	}

	return remaining, nil
}

// SetBalance overwrites the caller's balance for the month and records an
// admin adjustment transaction carrying the delta and the operator's note.
// The row is locked for the duration so a concurrent deduction cannot
// interleave between read and write.
func (r *BalanceRepository) SetBalance(ctx context.Context, callerID uuid.UUID, month time.Time, newBalance int64, note *string) (*models.MonthlyBalance, error) {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance models.MonthlyBalance
	query := `
		SELECT id, caller_id, month, current_balance, created_at, updated_at
		FROM monthly_balances
		WHERE caller_id = $1 AND month = $2
		FOR UPDATE
	`

	err = tx.GetContext(ctx, &balance, query, callerID, month)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to lock monthly balance: %w", err)
	}

	update := `
		UPDATE monthly_balances
		SET current_balance = $3, updated_at = NOW()
		WHERE caller_id = $1 AND month = $2
	`

	if _, err := tx.ExecContext(ctx, update, callerID, month, newBalance); err != nil {
		return nil, fmt.Errorf("failed to set balance: %w", err)
	}

	insert := `
		INSERT INTO balance_transactions (id, caller_id, delta, balance_after, reason, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	delta := newBalance - balance.CurrentBalance
	_, err = tx.ExecContext(ctx, insert, uuid.New(), callerID, delta, newBalance, models.TransactionReasonAdminAdjustment, note)
	if err != nil {
		return nil, fmt.Errorf("failed to record balance transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit balance adjustment: %w", err)
	}

	balance.CurrentBalance = newBalance
	return &balance, nil
}

// ListTransactions retrieves the most recent balance transactions for a
// caller, newest first
func (r *BalanceRepository) ListTransactions(ctx context.Context, callerID uuid.UUID, limit int) ([]*models.BalanceTransaction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, caller_id, endpoint_id, delta, balance_after, reason, note, created_at
		FROM balance_transactions
		WHERE caller_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var transactions []*models.BalanceTransaction
	err := r.db.conn.SelectContext(ctx, &transactions, query, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance transactions: %w", err)
	}

	return transactions, nil
}
