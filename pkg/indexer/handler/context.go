// Package handler maps decoded blocks onto staking, payout and history entities.
package handler

import (
	"context"
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/metrics"
	"github.com/canopy-network/payoutx/pkg/redis"
	"github.com/canopy-network/payoutx/pkg/rpc"
)

// Context carries the collaborators every handler needs. Build it once per chain and reuse it for
// every block; blocks must be delivered one at a time.
type Context struct {
	Logger    *zap.Logger
	Chain     string
	Store     db.Store
	RPC       rpc.Client
	Publisher redis.Publisher
	Metrics   *metrics.IndexerMetrics
	Rewards   config.RewardsConfig

	// Table overrides DefaultTable when set.
	Table Table
	// Parallelism bounds the save pool. Zero uses twice the CPU count.
	Parallelism int

	initOnce sync.Once
	pool     pond.Pool
}

func (c *Context) init() {
	c.initOnce.Do(func() {
		if c.Logger == nil {
			c.Logger = zap.NewNop()
		}
		if c.Publisher == nil {
			c.Publisher = redis.NopPublisher{}
		}
		if c.Table == nil {
			c.Table = DefaultTable()
		}
		if c.Rewards.Anchor == "" {
			c.Rewards.Anchor = config.AnchorCurrentEra
		}
		workers := c.Parallelism
		if workers <= 0 {
			workers = runtime.NumCPU() * 2
		}
		c.pool = pond.NewPool(workers)
	})
}

// group returns a task group on the shared pool. Tasks submitted to one group must write
// disjoint keys.
func (c *Context) group(ctx context.Context) pond.TaskGroup {
	c.init()
	return c.pool.NewGroupContext(ctx)
}

// Close stops the save pool after running tasks finish.
func (c *Context) Close() {
	c.init()
	c.pool.StopAndWait()
}

func (c *Context) publish(ctx context.Context, n redis.Notification) {
	n.Chain = c.Chain
	c.Publisher.Publish(ctx, n)
}
