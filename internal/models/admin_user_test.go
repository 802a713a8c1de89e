package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func testAdminUser(roles ...string) *AdminUser {
	return &AdminUser{
		ID:           uuid.New(),
		Email:        "ops@example.com",
		PasswordHash: "argon2-hash",
		Roles:        pq.StringArray(roles),
		Enabled:      true,
	}
}

func TestAdminUserHasRole(t *testing.T) {
	user := testAdminUser("admin", "viewer")

	assert.True(t, user.HasRole("admin"))
	assert.True(t, user.HasRole("viewer"))
	assert.False(t, user.HasRole("editor"))

	none := testAdminUser()
	assert.False(t, none.HasRole("admin"))
}

func TestAdminUserIsValid(t *testing.T) {
	user := testAdminUser("viewer")
	assert.True(t, user.IsValid())

	user.Enabled = false
	assert.False(t, user.IsValid(), "disabled account must not authenticate")
}

func TestAdminUserLastLoginStartsUnset(t *testing.T) {
	user := testAdminUser("viewer")
	assert.Nil(t, user.LastLoginAt)

	now := time.Now()
	user.LastLoginAt = &now
	assert.Equal(t, now.Unix(), user.LastLoginAt.Unix())
}
