package store

import (
	"context"
	"errors"

	"github.com/skillchain/registry/internal/registry/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable.
type Store interface {
	APIKeys() APIKeys

	ApplyMigrations() error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type APIKeys interface {
	// CreateAPIKey inserts a new key record (id is ULID; hash is bcrypt).
	CreateAPIKey(ctx context.Context, k domain.APIKey) error

	// GetAPIKeyByID fetches a single key, revoked or not.
	GetAPIKeyByID(ctx context.Context, id string) (domain.APIKey, error)

	// ListAPIKeys returns every key ordered by creation date (newest
	// first). Revoked and expired keys are included for audit listings.
	ListAPIKeys(ctx context.Context) ([]domain.APIKey, error)

	// ListActiveAPIKeys returns keys that may currently authenticate:
	// is_active and not past expires_at. This is the credential-cache
	// refill query.
	ListActiveAPIKeys(ctx context.Context) ([]domain.APIKey, error)

	// RevokeAPIKey flips is_active off and bumps updated_at. Revoking an
	// unknown id returns ErrNotFound.
	RevokeAPIKey(ctx context.Context, id string) error

	// TouchAPIKeyLastUsed stamps last_used_at. Best-effort bookkeeping;
	// callers may ignore the error.
	TouchAPIKeyLastUsed(ctx context.Context, id string) error
}
