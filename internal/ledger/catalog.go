package ledger

import (
	"context"
	"errors"
	"fmt"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// TierStore resolves an integer scope to its tier row.
type TierStore interface {
	GetByScope(ctx context.Context, scope int) (*models.Tier, error)
}

// ScopeQuotaCatalog maps a caller's tier (integer scope) to its monthly
// allotment. The mapping is configuration: a scope without a tier row is an
// operator defect, not something a caller can fix, so misses surface as
// ConfigurationError and are logged loudly.
type ScopeQuotaCatalog struct {
	tiers  TierStore
	logger *utils.Logger
}

// NewScopeQuotaCatalog creates a catalog over the tier store.
func NewScopeQuotaCatalog(tiers TierStore) *ScopeQuotaCatalog {
	return &ScopeQuotaCatalog{
		tiers:  tiers,
		logger: utils.NewLogger("quota-catalog", utils.Info),
	}
}

// AllotmentFor returns the monthly allotment for a scope.
func (c *ScopeQuotaCatalog) AllotmentFor(ctx context.Context, scope int) (int64, error) {
	tier, err := c.tiers.GetByScope(ctx, scope)
	if err != nil {
		if errors.Is(err, storage.ErrTierNotFound) {
			c.logger.Error("No tier configured for scope", "scope", scope)
			return 0, apperrors.Newf(apperrors.KindConfiguration, "no tier configured for scope %d", scope)
		}
		return 0, apperrors.Wrap(apperrors.KindStorage, fmt.Sprintf("failed to resolve tier for scope %d", scope), err)
	}

	return tier.MonthlyAllotment, nil
}
