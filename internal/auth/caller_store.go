package auth

import (
	"context"

	"meter_gateway/internal/models"
	"meter_gateway/internal/utils"
)

// InMemoryCallerStore is a map-backed store useful for early local testing
// and for handler tests that do not want a database.
type InMemoryCallerStore struct {
	// map of hash(API key) -> caller
	callers map[string]*models.Caller
}

func NewInMemoryCallerStore() *InMemoryCallerStore {
	return &InMemoryCallerStore{
		callers: make(map[string]*models.Caller),
	}
}

// Add registers a caller under its plaintext API key.
func (s *InMemoryCallerStore) Add(plaintextKey string, caller *models.Caller) {
	s.callers[utils.HashString(plaintextKey)] = caller
}

func (s *InMemoryCallerStore) Lookup(ctx context.Context, plaintextKey string) (*models.Caller, error) {
	caller, ok := s.callers[utils.HashString(plaintextKey)]
	if !ok {
		return nil, ErrUnknownAPIKey
	}
	return caller, nil
}
