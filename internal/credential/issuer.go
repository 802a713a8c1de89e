package credential

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// Store is the persistence the issuer needs.
type Store interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByValue(ctx context.Context, value string) (*models.Credential, error)
	GetLatestByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Credential, error)
}

// Provider mints and probes opaque tokens.
type Provider interface {
	Exchange(ctx context.Context, scope string) (*TokenGrant, error)
	Probe(ctx context.Context, value string) (bool, error)
}

// Issuer owns the credential lifecycle: issued, valid, refreshed into a
// superseded/new pair, or expired. Every issuance is an insert; rows are
// never rewritten, so the lineage chain back to the original grant stays
// reconstructable from storage alone.
type Issuer struct {
	provider Provider
	store    Store
	logger   *utils.Logger

	now func() time.Time
}

// NewIssuer creates an issuer over the provider client and store.
func NewIssuer(provider Provider, store Store) *Issuer {
	return &Issuer{
		provider: provider,
		store:    store,
		logger:   utils.NewLogger("credential-issuer", utils.Info),
		now:      time.Now,
	}
}

// IssueToken performs a client-credentials exchange and persists the result
// for the owner with no lineage predecessor. The returned credential
// carries the plaintext value; the store keeps only the hash and an
// encrypted copy.
func (i *Issuer) IssueToken(ctx context.Context, ownerID uuid.UUID, scope string) (*models.Credential, error) {
	grant, err := i.provider.Exchange(ctx, scope)
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Scope:     scope,
		Value:     grant.AccessToken,
		IssuedAt:  i.now(),
		ExpiresAt: grant.ExpiresAt,
	}

	if err := i.store.Create(ctx, cred); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to persist credential", err)
	}

	i.logger.Info("Credential issued", "credential_id", cred.ID, "owner_id", ownerID, "expires_at", cred.ExpiresAt.Format(time.RFC3339))
	return cred, nil
}

// ValidateToken reports whether a token value is usable right now. The
// local expiry comparison runs first and short-circuits: a locally expired
// credential is invalid without any network involvement. Only unexpired
// values reach the provider probe.
func (i *Issuer) ValidateToken(ctx context.Context, value string) (bool, error) {
	cred, err := i.store.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return false, apperrors.New(apperrors.KindAuthentication, "unknown credential")
		}
		return false, apperrors.Wrap(apperrors.KindStorage, "failed to look up credential", err)
	}

	if i.expired(cred) {
		return false, nil
	}

	active, err := i.provider.Probe(ctx, value)
	if err != nil {
		return false, err
	}

	return active, nil
}

// RefreshToken exchanges a fresh token for the owner of an existing,
// unexpired credential and records the predecessor as lineage. An expired
// credential can never be refreshed; its owner must go through IssueToken.
// Concurrent refreshes of the same credential may each succeed; every
// issuance is its own persisted, logged row.
func (i *Issuer) RefreshToken(ctx context.Context, existingValue string) (*models.Credential, error) {
	existing, err := i.store.GetByValue(ctx, existingValue)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return nil, apperrors.New(apperrors.KindAuthentication, "unknown credential")
		}
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to look up credential", err)
	}

	if i.expired(existing) {
		return nil, apperrors.New(apperrors.KindPolicyViolation, "cannot refresh an expired credential")
	}

	grant, err := i.provider.Exchange(ctx, existing.Scope)
	if err != nil {
		return nil, err
	}

	lineage := existing.ID
	cred := &models.Credential{
		ID:         uuid.New(),
		OwnerID:    existing.OwnerID,
		Scope:      existing.Scope,
		Value:      grant.AccessToken,
		IssuedAt:   i.now(),
		ExpiresAt:  grant.ExpiresAt,
		LineageRef: &lineage,
	}

	if err := i.store.Create(ctx, cred); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to persist refreshed credential", err)
	}

	i.logger.Info("Credential refreshed", "credential_id", cred.ID, "lineage_ref", lineage, "owner_id", cred.OwnerID)
	return cred, nil
}

// Lookup resolves a presented bearer value into its stored credential for
// the request pipeline: known, locally unexpired, and confirmed active by
// the provider probe. Unusable values come back as AuthenticationError so
// the gateway can answer 401 without further branching.
func (i *Issuer) Lookup(ctx context.Context, value string) (*models.Credential, error) {
	cred, err := i.store.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return nil, apperrors.New(apperrors.KindAuthentication, "unknown credential")
		}
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to look up credential", err)
	}

	if i.expired(cred) {
		return nil, apperrors.New(apperrors.KindAuthentication, "credential expired")
	}

	active, err := i.provider.Probe(ctx, value)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperrors.New(apperrors.KindAuthentication, "credential rejected by provider")
	}

	return cred, nil
}

// CurrentFor returns the owner's most recent credential when it is still
// unexpired, with the value decrypted, so clients can re-fetch instead of
// re-issuing.
func (i *Issuer) CurrentFor(ctx context.Context, ownerID uuid.UUID) (*models.Credential, error) {
	cred, err := i.store.GetLatestByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return nil, apperrors.New(apperrors.KindAuthentication, "no credential issued")
		}
		return nil, apperrors.Wrap(apperrors.KindStorage, "failed to look up credential", err)
	}

	if i.expired(cred) {
		return nil, apperrors.New(apperrors.KindAuthentication, "latest credential expired")
	}

	return cred, nil
}

func (i *Issuer) expired(cred *models.Credential) bool {
	return i.now().After(cred.ExpiresAt)
}
