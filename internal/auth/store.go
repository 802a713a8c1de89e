package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
)

// ErrUnknownAPIKey is returned when no caller owns the presented API key.
var ErrUnknownAPIKey = errors.New("unknown API key")

// CallerStore resolves plaintext API keys into caller records.
type CallerStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*models.Caller, error)
}

// AdminStore resolves operator accounts and service tokens for the admin
// login flow.
type AdminStore interface {
	GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	GetAdminTokenByServiceName(ctx context.Context, serviceName string) (*models.AdminToken, error)
	UpdateAdminUserLastLogin(ctx context.Context, id uuid.UUID) error
	UpdateAdminTokenLastUsed(ctx context.Context, id uuid.UUID) error
}
