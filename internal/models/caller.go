package models

import (
	"time"

	"github.com/google/uuid"
)

// Caller is an authenticated principal owning a monthly quota. Callers
// authenticate management routes with a long-lived API key; only the
// SHA-256 hash of that key is ever stored.
type Caller struct {
	ID                 uuid.UUID `db:"id"`
	Name               string    `db:"name"`
	APIKeyHash         string    `db:"api_key_hash"` // SHA-256 hash
	Scope              int       `db:"scope"`        // tier, resolves to a monthly allotment
	RateLimitPerMinute int       `db:"rate_limit_per_minute"` // 0 = unlimited
	Active             bool      `db:"active"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// IsActive reports whether the caller may be served at all. Inactive
// callers fail identity resolution even with a correct key.
func (c *Caller) IsActive() bool {
	return c.Active
}
