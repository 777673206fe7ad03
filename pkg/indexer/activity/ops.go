package activity

import (
	"context"

	"github.com/canopy-network/payoutx/pkg/indexer/types"
)

// GetChainHead returns the latest finalized height.
func (c *Context) GetChainHead(ctx context.Context, in types.ChainInput) (uint64, error) {
	if err := c.checkChain(in.Chain); err != nil {
		return 0, err
	}
	return c.RPC.ChainHead(ctx)
}

// GetLastIndexed returns the last indexed height, zero when nothing was indexed.
func (c *Context) GetLastIndexed(ctx context.Context, in types.ChainInput) (uint64, error) {
	if err := c.checkChain(in.Chain); err != nil {
		return 0, err
	}
	return c.Store.LastIndexed(ctx, c.Chain)
}
