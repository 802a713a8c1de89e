package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// CallerStore resolves caller rows by ID.
type CallerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Caller, error)
}

// EndpointStore resolves metered endpoint rows by ID.
type EndpointStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Endpoint, error)
}

// BalanceStore is the persistence contract the ledger needs. The store owns
// atomicity: DeductIfSufficient must be a single conditional update and
// Ensure must be insert-or-ignore, so the ledger never has to read, compare
// and write across round trips.
type BalanceStore interface {
	Ensure(ctx context.Context, callerID uuid.UUID, month time.Time, allotment int64) (*models.MonthlyBalance, error)
	GetByCallerAndMonth(ctx context.Context, callerID uuid.UUID, month time.Time) (*models.MonthlyBalance, error)
	DeductIfSufficient(ctx context.Context, callerID uuid.UUID, month time.Time, cost int64, endpointID *uuid.UUID) (int64, error)
	SetBalance(ctx context.Context, callerID uuid.UUID, month time.Time, newBalance int64, note *string) (*models.MonthlyBalance, error)
}

// Service enforces per-caller monthly quotas. Errors follow the apperrors
// taxonomy so the HTTP layer can map quota denial, misconfiguration and
// storage failure to distinct stable responses.
type Service interface {
	EnsureMonthlyBalance(ctx context.Context, callerID uuid.UUID) (*models.MonthlyBalance, error)
	CheckAndDeduct(ctx context.Context, callerID, endpointID uuid.UUID) (int64, error)
	GetCurrentBalance(ctx context.Context, callerID uuid.UUID) (*models.MonthlyBalance, error)
	AdminSetBalance(ctx context.Context, callerID uuid.UUID, newBalance int64, adminID string) (*models.MonthlyBalance, error)
}

// Ledger is the database-backed Service implementation.
type Ledger struct {
	callers   CallerStore
	endpoints EndpointStore
	balances  BalanceStore
	catalog   *ScopeQuotaCatalog
	logger    *utils.Logger

	// now is swappable so tests can pin the month boundary.
	now func() time.Time
}

// New creates a ledger over the given stores.
func New(callers CallerStore, endpoints EndpointStore, balances BalanceStore, catalog *ScopeQuotaCatalog) *Ledger {
	return &Ledger{
		callers:   callers,
		endpoints: endpoints,
		balances:  balances,
		catalog:   catalog,
		logger:    utils.NewLogger("ledger", utils.Info),
		now:       time.Now,
	}
}

// EnsureMonthlyBalance lazily creates the caller's balance row for the
// current month from its tier allotment. Safe to call concurrently: the
// store's insert-or-ignore guarantees exactly one row per (caller, month).
func (l *Ledger) EnsureMonthlyBalance(ctx context.Context, callerID uuid.UUID) (*models.MonthlyBalance, error) {
	caller, err := l.callers.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, storage.ErrCallerNotFound) {
			return nil, apperrors.Newf(apperrors.KindConfiguration, "caller %s not found", callerID)
		}
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to resolve caller", err)
	}

	allotment, err := l.catalog.AllotmentFor(ctx, caller.Scope)
	if err != nil {
		return nil, err
	}

	balance, err := l.balances.Ensure(ctx, callerID, models.MonthOf(l.now()), allotment)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to ensure monthly balance", err)
	}

	return balance, nil
}

// CheckAndDeduct resolves the endpoint's static cost and atomically deducts
// it from the caller's current-month balance. The deduction and its
// transaction row happen in one database transaction; an insufficient
// balance writes nothing to the ledger and returns a QuotaError carrying
// what remains.
func (l *Ledger) CheckAndDeduct(ctx context.Context, callerID, endpointID uuid.UUID) (int64, error) {
	endpoint, err := l.endpoints.GetByID(ctx, endpointID)
	if err != nil {
		if errors.Is(err, storage.ErrEndpointNotFound) {
			l.logger.Error("Deduction requested for unregistered endpoint", "endpoint_id", endpointID)
			return 0, apperrors.Newf(apperrors.KindConfiguration, "endpoint %s not registered for metering", endpointID)
		}
		return 0, apperrors.Wrap(apperrors.KindStorage, "failed to resolve endpoint", err)
	}
	if !endpoint.Active {
		return 0, apperrors.Newf(apperrors.KindConfiguration, "endpoint %s is disabled", endpoint.Path)
	}

	month := models.MonthOf(l.now())

	remaining, err := l.balances.DeductIfSufficient(ctx, callerID, month, endpoint.Cost, &endpoint.ID)
	if errors.Is(err, storage.ErrBalanceNotFound) {
		// First call of the month: create the row, then retry the deduction
		// once. The retry hits the same conditional update, so concurrent
		// first calls stay safe.
		if _, err := l.EnsureMonthlyBalance(ctx, callerID); err != nil {
			return 0, err
		}
		remaining, err = l.balances.DeductIfSufficient(ctx, callerID, month, endpoint.Cost, &endpoint.ID)
	}

	if err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			return 0, l.quotaError(ctx, callerID, month, endpoint.Cost)
		}
		if errors.Is(err, storage.ErrBalanceNotFound) {
			return 0, apperrors.Wrap(apperrors.KindStorage, "monthly balance disappeared after ensure", err)
		}
		return 0, apperrors.Wrap(apperrors.KindStorage, "failed to deduct balance", err)
	}

	return remaining, nil
}

// quotaError builds the denial carrying the remaining balance. The re-read
// is best effort; a denial must not turn into a storage failure just
// because the remaining amount could not be fetched.
func (l *Ledger) quotaError(ctx context.Context, callerID uuid.UUID, month time.Time, cost int64) error {
	quotaErr := &apperrors.QuotaError{CallerID: callerID, Cost: cost, Remaining: -1}
	if balance, err := l.balances.GetByCallerAndMonth(ctx, callerID, month); err == nil {
		quotaErr.Remaining = balance.CurrentBalance
	}
	return quotaErr
}

// GetCurrentBalance returns the caller's current-month balance, creating
// the row first if this is the first touch of the month.
func (l *Ledger) GetCurrentBalance(ctx context.Context, callerID uuid.UUID) (*models.MonthlyBalance, error) {
	return l.EnsureMonthlyBalance(ctx, callerID)
}

// AdminSetBalance overwrites the caller's current-month balance. The store
// writes a transaction row tagged as an admin adjustment with the operator
// recorded, so overrides stay distinguishable from endpoint deductions in
// the trail.
func (l *Ledger) AdminSetBalance(ctx context.Context, callerID uuid.UUID, newBalance int64, adminID string) (*models.MonthlyBalance, error) {
	if newBalance < 0 {
		return nil, apperrors.New(apperrors.KindPolicyViolation, "balance cannot be set below zero")
	}

	// Make sure the row exists so overrides work in a fresh month too.
	if _, err := l.EnsureMonthlyBalance(ctx, callerID); err != nil {
		return nil, err
	}

	note := "set by " + adminID
	balance, err := l.balances.SetBalance(ctx, callerID, models.MonthOf(l.now()), newBalance, &note)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to set balance", err)
	}

	l.logger.Info("Balance overridden", "caller_id", callerID, "new_balance", newBalance, "admin", adminID)
	return balance, nil
}
