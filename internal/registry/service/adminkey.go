package service

import (
	"context"
	"errors"
	"time"

	"github.com/skillchain/registry/internal/registry/cache"
	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/internal/registry/store"
	"github.com/skillchain/registry/pkg/cryptox"
	"github.com/skillchain/registry/pkg/idx"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"
)

var (
	ErrKeyMissing   = errors.New("api_key_missing")
	ErrKeyMalformed = errors.New("api_key_malformed")
	ErrKeyInvalid   = errors.New("api_key_invalid")
)

// touchTimeout bounds the fire-and-forget last-used stamp.
const touchTimeout = 5 * time.Second

// AdminKeyService authenticates X-API-Key requests and manages the key
// lifecycle. Authentication reads through the credential cache; mints and
// revocations write to the store and invalidate the cache.
type AdminKeyService struct {
	Store store.Store
	Cache *cache.KeySet
	Sink  *metricsx.Sink

	// LegacySecret is the deprecated shared admin secret. Empty disables
	// the fallback entirely.
	LegacySecret string
}

// Authenticate resolves a presented API key to an admin identity.
//
// Prefixed keys are matched against the active record set by bcrypt
// comparison; the first match wins. Keys without the prefix fall back to
// the legacy shared secret while it remains configured.
func (s *AdminKeyService) Authenticate(ctx context.Context, presented string) (domain.AdminIdentity, error) {
	log := slogx.FromContext(ctx)

	if presented == "" {
		s.Sink.AdminAuthFailure("missing")
		return domain.AdminIdentity{}, ErrKeyMissing
	}

	if !cryptox.HasAPIKeyPrefix(presented) {
		return s.authenticateLegacy(ctx, presented)
	}

	candidates, err := s.Cache.Active(ctx)
	if err != nil {
		s.Sink.AdminAuthFailure("store_unavailable")
		return domain.AdminIdentity{}, err
	}

	now := time.Now()
	for _, k := range candidates {
		if !k.Usable(now) {
			continue
		}
		if err := cryptox.VerifyAPIKey(presented, k.Hash); err == nil {
			s.touchLastUsed(ctx, k.ID)
			return domain.AdminIdentity{
				KeyID:        k.ID,
				KeyName:      k.Name,
				OwnerAddress: k.OwnerAddress,
				Permissions:  k.Permissions,
			}, nil
		}
	}

	s.Sink.AdminAuthFailure("no_match")
	log.Info("api key rejected, no matching record")
	return domain.AdminIdentity{}, ErrKeyInvalid
}

func (s *AdminKeyService) authenticateLegacy(ctx context.Context, presented string) (domain.AdminIdentity, error) {
	if s.LegacySecret == "" {
		s.Sink.AdminAuthFailure("malformed")
		return domain.AdminIdentity{}, ErrKeyMalformed
	}

	if !cryptox.ConstantTimeEquals(presented, s.LegacySecret) {
		s.Sink.AdminAuthFailure("legacy_mismatch")
		return domain.AdminIdentity{}, ErrKeyInvalid
	}

	s.Sink.LegacyAdminAuth()
	slogx.FromContext(ctx).Warn("admin authenticated via deprecated shared secret, migrate to prefixed api keys")
	return domain.AdminIdentity{KeyName: "legacy", Legacy: true}, nil
}

// touchLastUsed stamps the key's last_used_at off the request path. Losing
// a stamp is acceptable; blocking authentication on it is not.
func (s *AdminKeyService) touchLastUsed(ctx context.Context, id string) {
	log := slogx.FromContext(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()

		if err := s.Store.APIKeys().TouchAPIKeyLastUsed(ctx, id); err != nil {
			s.Sink.StoreError("sqlite", "touch_last_used")
			log.Warn("last-used stamp failed", "key_id", id, "error", err)
		}
	}()
}

// MintKey creates a new API key and returns the record together with the
// plaintext key. The plaintext is never stored and never shown again.
func (s *AdminKeyService) MintKey(
	ctx context.Context,
	name, ownerAddress string,
	permissions []string,
	expiresAt *time.Time,
) (domain.APIKey, string, error) {
	if name == "" {
		s.Sink.ValidationError("name", "required")
		return domain.APIKey{}, "", ErrKeyMalformed
	}

	plaintext, err := cryptox.GenerateAPIKey()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	hash, err := cryptox.HashAPIKey(plaintext)
	if err != nil {
		return domain.APIKey{}, "", err
	}

	k := domain.APIKey{
		ID:           idx.New().String(),
		Name:         name,
		Hash:         hash,
		OwnerAddress: ownerAddress,
		Permissions:  permissions,
		IsActive:     true,
		ExpiresAt:    expiresAt,
	}
	if err := s.Store.APIKeys().CreateAPIKey(ctx, k); err != nil {
		s.Sink.StoreError("sqlite", "create_api_key")
		return domain.APIKey{}, "", err
	}

	s.Cache.Invalidate(ctx)
	slogx.FromContext(ctx).Info("api key minted", "key_id", k.ID, "name", name)
	return k, plaintext, nil
}

// ListKeys returns every key record, newest first, for audit listings.
func (s *AdminKeyService) ListKeys(ctx context.Context) ([]domain.APIKey, error) {
	return s.Store.APIKeys().ListAPIKeys(ctx)
}

// RevokeKey deactivates a key. The local cache is invalidated immediately;
// other instances converge within the cache TTL.
func (s *AdminKeyService) RevokeKey(ctx context.Context, id string) error {
	if err := s.Store.APIKeys().RevokeAPIKey(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.Sink.StoreError("sqlite", "revoke_api_key")
		}
		return err
	}

	s.Cache.Invalidate(ctx)
	slogx.FromContext(ctx).Info("api key revoked", "key_id", id)
	return nil
}
