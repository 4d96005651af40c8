package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/internal/registry/store"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"
)

// DefaultKeySetTTL bounds how stale the cached credential set can get.
// Revocations propagate to other instances within this window; the
// instance that performed the revocation invalidates immediately.
const DefaultKeySetTTL = 5 * time.Minute

const keySetKey = "registry:apikeys:active"

// KeySet is a Redis cache-aside view of the active API-key records. Every
// admin request needs the candidate set, so reads must not hit the
// relational store each time. A Redis outage degrades to direct store
// reads; it never blocks authentication.
type KeySet struct {
	rdb  redis.Cmdable
	keys store.APIKeys
	sink *metricsx.Sink

	// TTL overrides DefaultKeySetTTL when positive.
	TTL time.Duration
}

func NewKeySet(rdb redis.Cmdable, keys store.APIKeys, sink *metricsx.Sink) *KeySet {
	return &KeySet{rdb: rdb, keys: keys, sink: sink}
}

func (c *KeySet) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return DefaultKeySetTTL
}

// Active returns the usable key records, serving from Redis when possible
// and refilling from the store on miss. The refill write is best-effort.
func (c *KeySet) Active(ctx context.Context) ([]domain.APIKey, error) {
	payload, err := c.rdb.Get(ctx, keySetKey).Bytes()
	switch {
	case err == nil:
		var keys []domain.APIKey
		if jsonErr := json.Unmarshal(payload, &keys); jsonErr == nil {
			// A cached empty set is not trusted as a verdict: refetch so a
			// just-minted first key is seen immediately.
			if len(keys) > 0 {
				return keys, nil
			}
		} else {
			// A corrupt entry is treated as a miss and overwritten below.
			c.sink.StoreError("redis", "keyset_decode")
		}
	case errors.Is(err, redis.Nil):
		// cache miss
	default:
		c.sink.StoreError("redis", "keyset_get")
		slogx.FromContext(ctx).Warn("credential cache unreachable, reading store directly", "error", err)
		return c.keys.ListActiveAPIKeys(ctx)
	}

	keys, err := c.keys.ListActiveAPIKeys(ctx)
	if err != nil {
		c.sink.StoreError("sqlite", "keyset_refill")
		return nil, err
	}

	if payload, err := json.Marshal(keys); err == nil {
		if err := c.rdb.Set(ctx, keySetKey, payload, c.ttl()).Err(); err != nil {
			c.sink.StoreError("redis", "keyset_set")
		}
	}
	return keys, nil
}

// Invalidate drops the cached set so the next read refetches. Called after
// key mints and revocations on this instance.
func (c *KeySet) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, keySetKey).Err(); err != nil {
		c.sink.StoreError("redis", "keyset_del")
		slogx.FromContext(ctx).Warn("credential cache invalidation failed", "error", err)
	}
}
