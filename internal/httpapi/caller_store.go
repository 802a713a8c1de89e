package httpapi

import (
	"context"
	"errors"

	"meter_gateway/internal/auth"
	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// DatabaseCallerStore resolves API keys against the caller repository.
// Keys are stored hashed; lookup hashes the presented value.
type DatabaseCallerStore struct {
	callers *storage.CallerRepository
}

// NewDatabaseCallerStore creates a caller store backed by the database.
func NewDatabaseCallerStore(callers *storage.CallerRepository) *DatabaseCallerStore {
	return &DatabaseCallerStore{callers: callers}
}

// Lookup resolves a plaintext API key to its caller.
func (s *DatabaseCallerStore) Lookup(ctx context.Context, apiKey string) (*models.Caller, error) {
	caller, err := s.callers.GetByAPIKeyHash(ctx, utils.HashString(apiKey))
	if err != nil {
		if errors.Is(err, storage.ErrCallerNotFound) {
			return nil, auth.ErrUnknownAPIKey
		}
		return nil, err
	}
	return caller, nil
}
