package models

import (
	"time"

	"github.com/google/uuid"
)

// MonthlyBalance is a caller's remaining quota for one calendar month.
// Exactly one row exists per (caller, month); rows are created lazily on
// first use from the caller's tier allotment and are never deleted.
// current_balance never goes below zero: the repository enforces the
// decrement as a single conditional UPDATE.
type MonthlyBalance struct {
	ID             uuid.UUID `db:"id"`
	CallerID       uuid.UUID `db:"caller_id"`
	Month          time.Time `db:"month"` // first-of-month, UTC, stored as DATE
	CurrentBalance int64     `db:"current_balance"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// MonthOf truncates a timestamp to its first-of-month key in UTC.
func MonthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Transaction reasons. Admin adjustments must stay distinguishable from
// endpoint-driven deductions in the audit trail.
const (
	TransactionReasonDeduction       = "deduction"
	TransactionReasonAdminAdjustment = "admin_adjustment"
)

// BalanceTransaction is one immutable entry in the billing audit trail.
// Rows are append-only: never updated, never deleted. Delta is negative for
// deductions; BalanceAfter snapshots the post-change balance so the trail
// can be replayed without recomputation.
type BalanceTransaction struct {
	ID           uuid.UUID  `db:"id"`
	CallerID     uuid.UUID  `db:"caller_id"`
	EndpointID   *uuid.UUID `db:"endpoint_id"` // NULL for admin adjustments
	Delta        int64      `db:"delta"`
	BalanceAfter int64      `db:"balance_after"`
	Reason       string     `db:"reason"`
	Note         *string    `db:"note"` // e.g. the adjusting operator
	CreatedAt    time.Time  `db:"created_at"`
}
