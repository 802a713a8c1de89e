package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
)

// CallerRepository handles caller database operations with caching
type CallerRepository struct {
	db    *DB
	cache *Cache[*models.Caller]
}

// NewCallerRepository creates a new caller repository
func NewCallerRepository(db *DB) *CallerRepository {
	return &CallerRepository{
		db:    db,
		cache: db.GetCallerCache(),
	}
}

// GetByAPIKeyHash retrieves a caller by the SHA-256 hash of its API key
// (with caching). This is the hot path for every metered request.
func (r *CallerRepository) GetByAPIKeyHash(ctx context.Context, keyHash string) (*models.Caller, error) {
	// Check cache first
	if cached, found := r.cache.Get(keyHash); found {
		return cached, nil
	}

	var caller models.Caller
	query := `
		SELECT id, name, api_key_hash, scope, rate_limit_per_minute, active, created_at, updated_at
		FROM callers
		WHERE api_key_hash = $1
	`

	err := r.db.conn.GetContext(ctx, &caller, query, keyHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCallerNotFound
		}
		return nil, fmt.Errorf("failed to get caller: %w", err)
	}

	// Cache the result
	r.cache.Set(keyHash, &caller)

	return &caller, nil
}

// GetByID retrieves a caller by ID
func (r *CallerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Caller, error) {
	var caller models.Caller
	query := `
		SELECT id, name, api_key_hash, scope, rate_limit_per_minute, active, created_at, updated_at
		FROM callers
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &caller, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCallerNotFound
		}
		return nil, fmt.Errorf("failed to get caller: %w", err)
	}

	return &caller, nil
}

// Create creates a new caller
func (r *CallerRepository) Create(ctx context.Context, caller *models.Caller) error {
	query := `
		INSERT INTO callers (id, name, api_key_hash, scope, rate_limit_per_minute, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	if caller.ID == uuid.Nil {
		caller.ID = uuid.New()
	}

	err := r.db.conn.QueryRowContext(
		ctx, query,
		caller.ID, caller.Name, caller.APIKeyHash, caller.Scope, caller.RateLimitPerMinute, caller.Active,
	).Scan(&caller.ID, &caller.CreatedAt, &caller.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create caller: %w", err)
	}

	return nil
}

// Update updates an existing caller and invalidates its cache entry
func (r *CallerRepository) Update(ctx context.Context, caller *models.Caller) error {
	query := `
		UPDATE callers
		SET name = $2, scope = $3, rate_limit_per_minute = $4, active = $5
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowContext(
		ctx, query,
		caller.ID, caller.Name, caller.Scope, caller.RateLimitPerMinute, caller.Active,
	).Scan(&caller.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrCallerNotFound
		}
		return fmt.Errorf("failed to update caller: %w", err)
	}

	// The cache is keyed by API key hash, which updates never change.
	r.cache.Delete(caller.APIKeyHash)

	return nil
}

// Delete deletes a caller by ID
func (r *CallerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// Fetch first so the cache entry can be invalidated.
	caller, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	query := `DELETE FROM callers WHERE id = $1`

	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete caller: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrCallerNotFound
	}

	r.cache.Delete(caller.APIKeyHash)

	return nil
}

// List retrieves all callers, optionally only active ones
func (r *CallerRepository) List(ctx context.Context, activeOnly bool) ([]*models.Caller, error) {
	query := `
		SELECT id, name, api_key_hash, scope, rate_limit_per_minute, active, created_at, updated_at
		FROM callers
	`

	if activeOnly {
		query += " WHERE active = true"
	}

	query += " ORDER BY created_at DESC"

	var callers []*models.Caller
	err := r.db.conn.SelectContext(ctx, &callers, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list callers: %w", err)
	}

	return callers, nil
}
