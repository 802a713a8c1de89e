package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
	"meter_gateway/internal/utils"
)

// CredentialRepository handles issued credential database operations. The
// plaintext credential value is never stored: lookups go through the SHA-256
// digest, and an AES-GCM encrypted copy allows the owner to re-fetch the
// value later.
type CredentialRepository struct {
	db  *DB
	enc *Encryption
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB, enc *Encryption) *CredentialRepository {
	return &CredentialRepository{
		db:  db,
		enc: enc,
	}
}

// Create persists a credential. The plaintext in cred.Value is hashed and
// encrypted here; cred.ValueHash and cred.ValueEncrypted are overwritten.
func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if cred.Value == "" {
		return fmt.Errorf("credential value is required")
	}

	encrypted, err := r.enc.EncryptString(cred.Value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential value: %w", err)
	}

	cred.ValueHash = utils.HashString(cred.Value)
	cred.ValueEncrypted = encrypted

	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}

	query := `
		INSERT INTO credentials (id, owner_id, scope, value_encrypted, value_hash, issued_at, expires_at, lineage_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = r.db.conn.QueryRowContext(
		ctx, query,
		cred.ID, cred.OwnerID, cred.Scope, cred.ValueEncrypted, cred.ValueHash,
		cred.IssuedAt, cred.ExpiresAt, cred.LineageRef,
	).Scan(&cred.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// GetByValue retrieves a credential by its plaintext value, via the digest
func (r *CredentialRepository) GetByValue(ctx context.Context, value string) (*models.Credential, error) {
	return r.GetByValueHash(ctx, utils.HashString(value))
}

// GetByValueHash retrieves a credential by the SHA-256 digest of its value.
// The plaintext is not decrypted; the presenter already holds it.
func (r *CredentialRepository) GetByValueHash(ctx context.Context, valueHash string) (*models.Credential, error) {
	var cred models.Credential
	query := `
		SELECT id, owner_id, scope, value_encrypted, value_hash, issued_at, expires_at, lineage_ref, created_at
		FROM credentials
		WHERE value_hash = $1
	`

	err := r.db.conn.GetContext(ctx, &cred, query, valueHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &cred, nil
}

// GetLatestByOwner retrieves the owner's unexpired credential with the most
// remaining lifetime and decrypts the stored value into cred.Value. Ordering
// by expiry rather than issuance means a short-lived credential issued after
// a longer-lived one does not hide the still-usable predecessor.
func (r *CredentialRepository) GetLatestByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Credential, error) {
	var cred models.Credential
	query := `
		SELECT id, owner_id, scope, value_encrypted, value_hash, issued_at, expires_at, lineage_ref, created_at
		FROM credentials
		WHERE owner_id = $1 AND expires_at > NOW()
		ORDER BY expires_at DESC
		LIMIT 1
	`

	err := r.db.conn.GetContext(ctx, &cred, query, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	value, err := r.enc.DecryptString(cred.ValueEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential value: %w", err)
	}
	cred.Value = value

	return &cred, nil
}

// ListByOwner retrieves the owner's credentials, newest first. Values are
// not decrypted.
func (r *CredentialRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Credential, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, scope, value_encrypted, value_hash, issued_at, expires_at, lineage_ref, created_at
		FROM credentials
		WHERE owner_id = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`

	var creds []*models.Credential
	err := r.db.conn.SelectContext(ctx, &creds, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	return creds, nil
}

// DeleteExpiredBefore removes credentials whose expiry is older than the
// cutoff and returns how many were deleted. The lineage chain behind any
// still-valid credential is retained whole: a refreshed credential's
// predecessors stay readable for audit reconstruction until the entire
// chain has expired, and the sweep never leaves a dangling lineage_ref.
func (r *CredentialRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		WITH RECURSIVE retained AS (
			SELECT id, lineage_ref FROM credentials WHERE expires_at >= NOW()
			UNION
			SELECT c.id, c.lineage_ref
			FROM credentials c
			JOIN retained r ON r.lineage_ref = c.id
		)
		DELETE FROM credentials
		WHERE expires_at < $1
		  AND id NOT IN (SELECT id FROM retained)
	`

	result, err := r.db.conn.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired credentials: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
