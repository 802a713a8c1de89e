package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AdminUser is a human operator account for the management API. Passwords
// are stored as Argon2id hashes; a disabled account cannot log in even with
// a correct password.
type AdminUser struct {
	ID           uuid.UUID      `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"` // Argon2id
	Roles        pq.StringArray `db:"roles"`         // e.g. ["admin"], ["viewer"]
	Enabled      bool           `db:"enabled"`
	LastLoginAt  *time.Time     `db:"last_login_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// HasRole reports whether the user holds the given role.
func (u *AdminUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsValid reports whether the account may authenticate.
func (u *AdminUser) IsValid() bool {
	return u.Enabled
}
