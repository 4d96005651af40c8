package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/internal/registry/store"
)

type apiKeysRepo struct {
	db *sql.DB
}

const apiKeyColumns = `id, name, hash, owner_address, permissions, is_active,
	expires_at, last_used_at, created_at, updated_at`

func (r *apiKeysRepo) CreateAPIKey(ctx context.Context, k domain.APIKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, hash, owner_address, permissions, is_active, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Name, k.Hash, k.OwnerAddress,
		strings.Join(k.Permissions, " "), k.IsActive, mapOptionalTime(k.ExpiresAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *apiKeysRepo) GetAPIKeyByID(ctx context.Context, id string) (domain.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE id = ?`, id)

	k, err := scanAPIKey(row)
	if err != nil {
		return domain.APIKey{}, mapNotFound(err)
	}
	return k, nil
}

func (r *apiKeysRepo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	return r.list(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		ORDER BY created_at DESC`)
}

func (r *apiKeysRepo) ListActiveAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	return r.list(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE is_active = 1
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC`, time.Now().UTC())
}

func (r *apiKeysRepo) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE api_keys
		SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *apiKeysRepo) TouchAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_keys
		SET last_used_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	return err
}

func (r *apiKeysRepo) list(ctx context.Context, query string, args ...any) ([]domain.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (domain.APIKey, error) {
	var (
		k           domain.APIKey
		permissions string
		expiresAt   sql.NullTime
		lastUsedAt  sql.NullTime
	)
	err := row.Scan(
		&k.ID, &k.Name, &k.Hash, &k.OwnerAddress, &permissions, &k.IsActive,
		&expiresAt, &lastUsedAt, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return domain.APIKey{}, err
	}

	if permissions != "" {
		k.Permissions = strings.Fields(permissions)
	}
	k.ExpiresAt = mapNullTimePtr(expiresAt)
	k.LastUsedAt = mapNullTimePtr(lastUsedAt)
	return k, nil
}
