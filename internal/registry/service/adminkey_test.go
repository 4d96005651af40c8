package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/skillchain/registry/internal/registry/cache"
	"github.com/skillchain/registry/internal/registry/service"
	"github.com/skillchain/registry/internal/registry/store"
	"github.com/skillchain/registry/internal/registry/store/drivers/sqlite"
	"github.com/skillchain/registry/pkg/cryptox"
	"github.com/skillchain/registry/pkg/metricsx"
)

func newAdminKeyService(t *testing.T, legacySecret string) (*service.AdminKeyService, *metricsx.Sink) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := metricsx.NewSink(0)
	return &service.AdminKeyService{
		Store:        st,
		Cache:        cache.NewKeySet(rdb, st.APIKeys(), sink),
		Sink:         sink,
		LegacySecret: legacySecret,
	}, sink
}

func TestAdminKeyAuthenticate(t *testing.T) {
	svc, sink := newAdminKeyService(t, "")
	ctx := context.Background()

	k, plaintext, err := svc.MintKey(ctx, "ci-deploy", "0x1111111111111111111111111111111111111111",
		[]string{"keys:read"}, nil)
	require.NoError(t, err)
	require.True(t, cryptox.HasAPIKeyPrefix(plaintext))
	require.NotContains(t, k.Hash, plaintext)

	t.Run("valid key resolves an identity", func(t *testing.T) {
		id, err := svc.Authenticate(ctx, plaintext)
		require.NoError(t, err)
		require.Equal(t, k.ID, id.KeyID)
		require.Equal(t, "ci-deploy", id.KeyName)
		require.False(t, id.Legacy)
		require.True(t, id.Can("keys:read"))
		require.False(t, id.Can("keys:write"))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "")
		require.ErrorIs(t, err, service.ErrKeyMissing)
	})

	t.Run("prefixed but unknown key", func(t *testing.T) {
		unknown, err := cryptox.GenerateAPIKey()
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, unknown)
		require.ErrorIs(t, err, service.ErrKeyInvalid)

		snap := sink.Snapshot()
		require.GreaterOrEqual(t, snap[`registry_admin_auth_failures_total{reason="no_match"}`], 1.0)
	})

	t.Run("unprefixed key with no legacy secret configured", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "some-old-style-secret")
		require.ErrorIs(t, err, service.ErrKeyMalformed)
	})

	t.Run("revoked key stops matching", func(t *testing.T) {
		require.NoError(t, svc.RevokeKey(ctx, k.ID))

		_, err := svc.Authenticate(ctx, plaintext)
		require.ErrorIs(t, err, service.ErrKeyInvalid)
	})

	t.Run("revoking unknown id", func(t *testing.T) {
		err := svc.RevokeKey(ctx, "01J00000000000000000000000")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestAdminKeyLegacyFallback(t *testing.T) {
	svc, sink := newAdminKeyService(t, "legacy-shared-secret")
	ctx := context.Background()

	t.Run("matching legacy secret", func(t *testing.T) {
		id, err := svc.Authenticate(ctx, "legacy-shared-secret")
		require.NoError(t, err)
		require.True(t, id.Legacy)
		require.True(t, id.Can("anything"))

		snap := sink.Snapshot()
		require.Equal(t, 1.0, snap[`registry_legacy_admin_auth_total`])
	})

	t.Run("wrong legacy secret", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "wrong-secret")
		require.ErrorIs(t, err, service.ErrKeyInvalid)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "short")
		require.ErrorIs(t, err, service.ErrKeyInvalid)
	})
}

func TestAdminKeyExpiry(t *testing.T) {
	svc, _ := newAdminKeyService(t, "")
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	_, plaintext, err := svc.MintKey(ctx, "expired", "0x1111111111111111111111111111111111111111", nil, &past)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, plaintext)
	require.ErrorIs(t, err, service.ErrKeyInvalid)
}

func TestAdminKeyMintValidation(t *testing.T) {
	svc, _ := newAdminKeyService(t, "")

	_, _, err := svc.MintKey(context.Background(), "", "0x1111111111111111111111111111111111111111", nil, nil)
	require.ErrorIs(t, err, service.ErrKeyMalformed)
}

func TestAdminKeyList(t *testing.T) {
	svc, _ := newAdminKeyService(t, "")
	ctx := context.Background()

	_, _, err := svc.MintKey(ctx, "first", "0x1111111111111111111111111111111111111111", nil, nil)
	require.NoError(t, err)
	_, _, err = svc.MintKey(ctx, "second", "0x1111111111111111111111111111111111111111", nil, nil)
	require.NoError(t, err)

	keys, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	names := []string{keys[0].Name, keys[1].Name}
	require.ElementsMatch(t, []string{"first", "second"}, names)
	for _, k := range keys {
		require.NotEmpty(t, k.Hash)
	}
}
