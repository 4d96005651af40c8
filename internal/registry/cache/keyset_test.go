package cache_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/skillchain/registry/internal/registry/cache"
	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/pkg/metricsx"
)

// countingKeys records how often the relational store is consulted.
type countingKeys struct {
	fakeAPIKeys
	listActiveCalls int
}

func (c *countingKeys) ListActiveAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	c.listActiveCalls++
	return c.fakeAPIKeys.ListActiveAPIKeys(ctx)
}

func TestKeySetCacheAside(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backing := &countingKeys{fakeAPIKeys: fakeAPIKeys{keys: []domain.APIKey{
		{ID: "01J0000000000000000000TEST", Name: "ci", Hash: "$2a$10$x", IsActive: true},
	}}}
	ks := cache.NewKeySet(rdb, backing, metricsx.NewSink(0))
	ctx := context.Background()

	first, err := ks.Active(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, backing.listActiveCalls)

	// Second read is served from Redis.
	second, err := ks.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, backing.listActiveCalls)

	t.Run("ttl expiry refetches", func(t *testing.T) {
		mr.FastForward(cache.DefaultKeySetTTL)

		_, err := ks.Active(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, backing.listActiveCalls)
	})

	t.Run("invalidate refetches", func(t *testing.T) {
		ks.Invalidate(ctx)

		_, err := ks.Active(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, backing.listActiveCalls)
	})
}

func TestKeySetDegradesWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	backing := &countingKeys{fakeAPIKeys: fakeAPIKeys{keys: []domain.APIKey{
		{ID: "01J0000000000000000000TEST", Name: "ci", Hash: "$2a$10$x", IsActive: true},
	}}}
	sink := metricsx.NewSink(0)
	ks := cache.NewKeySet(rdb, backing, sink)

	keys, err := ks.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, 1, backing.listActiveCalls)

	snap := sink.Snapshot()
	require.Equal(t, 1.0, snap[`registry_credential_store_errors_total{kind="redis",operation="keyset_get"}`])
}

func TestKeySetEmptyEntryRefetches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// An empty cached set, for example written before the first key was
	// minted on another instance.
	require.NoError(t, mr.Set("registry:apikeys:active", "[]"))

	backing := &countingKeys{fakeAPIKeys: fakeAPIKeys{keys: []domain.APIKey{
		{ID: "01J0000000000000000000TEST", Name: "ci", Hash: "$2a$10$x", IsActive: true},
	}}}
	ks := cache.NewKeySet(rdb, backing, metricsx.NewSink(0))

	keys, err := ks.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, 1, backing.listActiveCalls)
}

func TestKeySetCorruptEntryIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, mr.Set("registry:apikeys:active", "not json"))

	backing := &countingKeys{fakeAPIKeys: fakeAPIKeys{keys: []domain.APIKey{
		{ID: "01J0000000000000000000TEST", Name: "ci", Hash: "$2a$10$x", IsActive: true},
	}}}
	ks := cache.NewKeySet(rdb, backing, metricsx.NewSink(0))

	keys, err := ks.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, 1, backing.listActiveCalls)
}
