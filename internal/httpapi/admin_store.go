package httpapi

import (
	"context"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
)

// AdminStoreAdapter presents the admin user and token repositories as the
// single auth.AdminStore the login flows consume.
type AdminStoreAdapter struct {
	users  *storage.AdminUserRepository
	tokens *storage.AdminTokenRepository
}

func NewAdminStoreAdapter(users *storage.AdminUserRepository, tokens *storage.AdminTokenRepository) *AdminStoreAdapter {
	return &AdminStoreAdapter{
		users:  users,
		tokens: tokens,
	}
}

func (a *AdminStoreAdapter) GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	return a.users.GetByEmail(ctx, email)
}

func (a *AdminStoreAdapter) GetAdminTokenByServiceName(ctx context.Context, serviceName string) (*models.AdminToken, error) {
	return a.tokens.GetByServiceName(ctx, serviceName)
}

func (a *AdminStoreAdapter) UpdateAdminUserLastLogin(ctx context.Context, id uuid.UUID) error {
	return a.users.UpdateLastLogin(ctx, id)
}

func (a *AdminStoreAdapter) UpdateAdminTokenLastUsed(ctx context.Context, id uuid.UUID) error {
	return a.tokens.UpdateLastUsed(ctx, id)
}
