package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AdminToken is a static service-account credential for the management API
// (automation, CI). Only the SHA-256 hash of the token is stored, so the
// token itself doubles as the lookup key; the plaintext is shown once at
// creation.
type AdminToken struct {
	ID          uuid.UUID      `db:"id"`
	ServiceName string         `db:"service_name"`
	TokenHash   string         `db:"token_hash"` // SHA-256
	Roles       pq.StringArray `db:"roles"`
	Enabled     bool           `db:"enabled"`
	ExpiresAt   *time.Time     `db:"expires_at"` // NULL = no expiry
	LastUsedAt  *time.Time     `db:"last_used_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// HasRole reports whether the token grants the given role.
func (t *AdminToken) HasRole(role string) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsExpired reports whether the token's optional expiry has passed.
func (t *AdminToken) IsExpired() bool {
	if t.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*t.ExpiresAt)
}

// IsValid reports whether the token may authenticate right now.
func (t *AdminToken) IsValid() bool {
	return t.Enabled && !t.IsExpired()
}
