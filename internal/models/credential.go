package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential is an opaque bearer token obtained from the external identity
// provider. The value is provider-controlled: this system never inspects
// it, stores it AES-GCM encrypted, and looks it up by SHA-256 hash.
//
// Lifecycle: issued → valid → (refreshed → superseded) | expired.
// Refreshing inserts a NEW row whose LineageRef points at the predecessor;
// rows are never rewritten in place, so the chain back to the original
// issuance is always reconstructable.
type Credential struct {
	ID             uuid.UUID  `db:"id"`
	OwnerID        uuid.UUID  `db:"owner_id"`
	Scope          string     `db:"scope"`
	ValueEncrypted string     `db:"value_encrypted"`
	ValueHash      string     `db:"value_hash"` // SHA-256, unique lookup key
	IssuedAt       time.Time  `db:"issued_at"`
	ExpiresAt      time.Time  `db:"expires_at"`
	LineageRef     *uuid.UUID `db:"lineage_ref"` // NULL for original issuances
	CreatedAt      time.Time  `db:"created_at"`

	// Plaintext value, populated only when issuing or decrypting. Never
	// persisted and never logged.
	Value string `db:"-"`
}

// IsExpired is the cheap local expiry check. It is always consulted before
// any provider round trip: a locally expired credential is invalid without
// network involvement and can never be refreshed.
func (c *Credential) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// IsOriginal reports whether this credential started a lineage chain.
func (c *Credential) IsOriginal() bool {
	return c.LineageRef == nil
}
