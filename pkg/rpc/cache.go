package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coocood/freecache"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

// CachedClient caches point queries evaluated at a block hash. State at a given hash never
// changes, so entries only leave the cache through eviction. Queries without a hash, the chain
// head and block fetches always go to the wrapped client.
type CachedClient struct {
	next   Client
	cache  *freecache.Cache
	logger *zap.Logger
}

var _ Client = (*CachedClient)(nil)

// NewCachedClient wraps next with a cache of sizeMB megabytes. freecache enforces a 512KB
// floor.
func NewCachedClient(next Client, sizeMB int, logger *zap.Logger) *CachedClient {
	if sizeMB <= 0 {
		sizeMB = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedClient{
		next:   next,
		cache:  freecache.NewCache(sizeMB * 1024 * 1024),
		logger: logger,
	}
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int64
}

func (c *CachedClient) Stats() CacheStats {
	return CacheStats{Hits: c.cache.HitCount(), Misses: c.cache.MissCount(), Entries: c.cache.EntryCount()}
}

// cached serves key from the cache or stores the result of load. Values that do not fit the
// cache (freecache.ErrLargeEntry) are returned uncached.
func cached[T any](c *CachedClient, at, key string, load func() (T, error)) (T, error) {
	if at == "" {
		return load()
	}
	k := []byte(at + "|" + key)
	if raw, err := c.cache.Get(k); err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.cache.Del(k)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.cache.Set(k, raw, 0); err != nil && !errors.Is(err, freecache.ErrLargeEntry) {
		c.logger.Debug("rpc cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

type optionalEra struct {
	Era uint32
	OK  bool
}

type optionalIdentity struct {
	Info json.RawMessage
	OK   bool
}

func (c *CachedClient) ChainHead(ctx context.Context) (uint64, error) {
	return c.next.ChainHead(ctx)
}

func (c *CachedClient) BlockByNumber(ctx context.Context, number uint64) (*ledger.Block, error) {
	return c.next.BlockByNumber(ctx, number)
}

func (c *CachedClient) CurrentEra(ctx context.Context, at string) (uint32, bool, error) {
	v, err := cached(c, at, "currentEra", func() (optionalEra, error) {
		era, ok, err := c.next.CurrentEra(ctx, at)
		return optionalEra{Era: era, OK: ok}, err
	})
	return v.Era, v.OK, err
}

func (c *CachedClient) ActiveEra(ctx context.Context, at string) (uint32, bool, error) {
	v, err := cached(c, at, "activeEra", func() (optionalEra, error) {
		era, ok, err := c.next.ActiveEra(ctx, at)
		return optionalEra{Era: era, OK: ok}, err
	})
	return v.Era, v.OK, err
}

func (c *CachedClient) HistoryDepth(ctx context.Context, at string) (uint32, error) {
	return cached(c, at, "historyDepth", func() (uint32, error) {
		return c.next.HistoryDepth(ctx, at)
	})
}

func (c *CachedClient) AccountNonce(ctx context.Context, at, account string) (uint64, error) {
	return cached(c, at, "nonce|"+account, func() (uint64, error) {
		return c.next.AccountNonce(ctx, at, account)
	})
}

func (c *CachedClient) IdentityOf(ctx context.Context, at, account string) (json.RawMessage, bool, error) {
	v, err := cached(c, at, "identity|"+account, func() (optionalIdentity, error) {
		info, ok, err := c.next.IdentityOf(ctx, at, account)
		return optionalIdentity{Info: info, OK: ok}, err
	})
	return v.Info, v.OK, err
}

// ErasStakers is not cached: it is read once per era and is usually larger than a cache entry.
func (c *CachedClient) ErasStakers(ctx context.Context, at string, era uint32) ([]ValidatorExposure, error) {
	return c.next.ErasStakers(ctx, at, era)
}

func (c *CachedClient) ErasRewardPoints(ctx context.Context, at string, era uint32) (*RewardPoints, error) {
	return cached(c, at, fmt.Sprintf("rewardPoints|%d", era), func() (*RewardPoints, error) {
		return c.next.ErasRewardPoints(ctx, at, era)
	})
}

func (c *CachedClient) SessionValidators(ctx context.Context, at string) ([]string, error) {
	return cached(c, at, "sessionValidators", func() ([]string, error) {
		return c.next.SessionValidators(ctx, at)
	})
}

func (c *CachedClient) QueryFeeInfo(ctx context.Context, txHex, blockHash string) (*uint256.Int, error) {
	return cached(c, blockHash, "fee|"+txHex, func() (*uint256.Int, error) {
		return c.next.QueryFeeInfo(ctx, txHex, blockHash)
	})
}
