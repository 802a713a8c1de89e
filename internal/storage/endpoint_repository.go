package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
)

// EndpointRepository handles metered endpoint database operations with caching
type EndpointRepository struct {
	db    *DB
	cache *Cache[*models.Endpoint]
}

// NewEndpointRepository creates a new endpoint repository
func NewEndpointRepository(db *DB) *EndpointRepository {
	return &EndpointRepository{
		db:    db,
		cache: db.GetEndpointCache(),
	}
}

// GetByPath retrieves an endpoint by its request path (with caching)
func (r *EndpointRepository) GetByPath(ctx context.Context, path string) (*models.Endpoint, error) {
	if cached, found := r.cache.Get(path); found {
		return cached, nil
	}

	var endpoint models.Endpoint
	query := `
		SELECT id, path, cost, active, created_at, updated_at
		FROM endpoints
		WHERE path = $1
	`

	err := r.db.conn.GetContext(ctx, &endpoint, query, path)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	r.cache.Set(path, &endpoint)

	return &endpoint, nil
}

// GetByID retrieves an endpoint by ID
func (r *EndpointRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Endpoint, error) {
	var endpoint models.Endpoint
	query := `
		SELECT id, path, cost, active, created_at, updated_at
		FROM endpoints
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &endpoint, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	return &endpoint, nil
}

// Create creates a new metered endpoint
func (r *EndpointRepository) Create(ctx context.Context, endpoint *models.Endpoint) error {
	query := `
		INSERT INTO endpoints (id, path, cost, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	if endpoint.ID == uuid.Nil {
		endpoint.ID = uuid.New()
	}

	err := r.db.conn.QueryRowContext(
		ctx, query,
		endpoint.ID, endpoint.Path, endpoint.Cost, endpoint.Active,
	).Scan(&endpoint.ID, &endpoint.CreatedAt, &endpoint.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create endpoint: %w", err)
	}

	return nil
}

// Update updates an existing endpoint and invalidates its cache entry
func (r *EndpointRepository) Update(ctx context.Context, endpoint *models.Endpoint) error {
	// Fetch first: a path change must invalidate the old cache key.
	existing, err := r.GetByID(ctx, endpoint.ID)
	if err != nil {
		return err
	}

	query := `
		UPDATE endpoints
		SET path = $2, cost = $3, active = $4
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.conn.QueryRowContext(
		ctx, query,
		endpoint.ID, endpoint.Path, endpoint.Cost, endpoint.Active,
	).Scan(&endpoint.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrEndpointNotFound
		}
		return fmt.Errorf("failed to update endpoint: %w", err)
	}

	r.cache.Delete(existing.Path)
	r.cache.Delete(endpoint.Path)

	return nil
}

// Delete deletes an endpoint by ID
func (r *EndpointRepository) Delete(ctx context.Context, id uuid.UUID) error {
	endpoint, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	query := `DELETE FROM endpoints WHERE id = $1`

	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrEndpointNotFound
	}

	r.cache.Delete(endpoint.Path)

	return nil
}

// List retrieves all endpoints, optionally only active ones
func (r *EndpointRepository) List(ctx context.Context, activeOnly bool) ([]*models.Endpoint, error) {
	query := `
		SELECT id, path, cost, active, created_at, updated_at
		FROM endpoints
	`

	if activeOnly {
		query += " WHERE active = true"
	}

	query += " ORDER BY path"

	var endpoints []*models.Endpoint
	err := r.db.conn.SelectContext(ctx, &endpoints, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}

	return endpoints, nil
}
