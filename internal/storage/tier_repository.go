package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"meter_gateway/internal/models"
)

// TierRepository handles usage tier database operations with caching
type TierRepository struct {
	db    *DB
	cache *Cache[*models.Tier]
}

// NewTierRepository creates a new tier repository
func NewTierRepository(db *DB) *TierRepository {
	return &TierRepository{
		db:    db,
		cache: db.GetTierCache(),
	}
}

// GetByScope retrieves the tier for a scope identifier (with caching)
func (r *TierRepository) GetByScope(ctx context.Context, scope int) (*models.Tier, error) {
	cacheKey := strconv.Itoa(scope)
	if cached, found := r.cache.Get(cacheKey); found {
		return cached, nil
	}

	var tier models.Tier
	query := `
		SELECT scope, name, monthly_allotment, created_at, updated_at
		FROM tiers
		WHERE scope = $1
	`

	err := r.db.conn.GetContext(ctx, &tier, query, scope)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTierNotFound
		}
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}

	r.cache.Set(cacheKey, &tier)

	return &tier, nil
}

// Upsert creates or replaces the tier for a scope and invalidates its cache
// entry
func (r *TierRepository) Upsert(ctx context.Context, tier *models.Tier) error {
	query := `
		INSERT INTO tiers (scope, name, monthly_allotment)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope) DO UPDATE
		SET name = EXCLUDED.name, monthly_allotment = EXCLUDED.monthly_allotment, updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.conn.QueryRowContext(
		ctx, query,
		tier.Scope, tier.Name, tier.MonthlyAllotment,
	).Scan(&tier.CreatedAt, &tier.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert tier: %w", err)
	}

	r.cache.Delete(strconv.Itoa(tier.Scope))

	return nil
}

// List retrieves all tiers ordered by scope
func (r *TierRepository) List(ctx context.Context) ([]*models.Tier, error) {
	query := `
		SELECT scope, name, monthly_allotment, created_at, updated_at
		FROM tiers
		ORDER BY scope
	`

	var tiers []*models.Tier
	err := r.db.conn.SelectContext(ctx, &tiers, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}

	return tiers, nil
}
