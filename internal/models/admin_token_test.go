package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func testAdminToken(enabled bool, expiresAt *time.Time) *AdminToken {
	return &AdminToken{
		ID:          uuid.New(),
		ServiceName: "ci-pipeline",
		TokenHash:   "sha256-hash",
		Roles:       pq.StringArray{"viewer"},
		Enabled:     enabled,
		ExpiresAt:   expiresAt,
	}
}

func TestAdminTokenHasRole(t *testing.T) {
	token := testAdminToken(true, nil)
	token.Roles = pq.StringArray{"admin", "viewer"}

	assert.True(t, token.HasRole("admin"))
	assert.True(t, token.HasRole("viewer"))
	assert.False(t, token.HasRole("superadmin"))
}

func TestAdminTokenIsExpired(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	assert.False(t, testAdminToken(true, nil).IsExpired(), "nil expiry never expires")
	assert.True(t, testAdminToken(true, &past).IsExpired())
	assert.False(t, testAdminToken(true, &future).IsExpired())
}

func TestAdminTokenIsValid(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name      string
		enabled   bool
		expiresAt *time.Time
		want      bool
	}{
		{"enabled without expiry", true, nil, true},
		{"enabled with future expiry", true, &future, true},
		{"disabled", false, nil, false},
		{"expired", true, &past, false},
		{"disabled and expired", false, &past, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testAdminToken(tt.enabled, tt.expiresAt).IsValid())
		})
	}
}

func TestAdminTokenLastUsedStartsUnset(t *testing.T) {
	token := testAdminToken(true, nil)
	assert.Nil(t, token.LastUsedAt)

	now := time.Now()
	token.LastUsedAt = &now
	assert.Equal(t, now.Unix(), token.LastUsedAt.Unix())
}
