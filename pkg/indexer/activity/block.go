package activity

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/indexer/handler"
	"github.com/canopy-network/payoutx/pkg/indexer/types"
)

// IndexBlock fetches the decoded block at in.Height, runs every handler over it and moves the
// checkpoint. Reconciliation failures are returned as non-retryable errors.
func (c *Context) IndexBlock(ctx context.Context, in types.IndexBlockInput) (types.IndexBlockOutput, error) {
	start := time.Now()
	if err := c.checkChain(in.Chain); err != nil {
		return types.IndexBlockOutput{Height: in.Height}, err
	}

	b, err := c.RPC.BlockByNumber(ctx, in.Height)
	if err != nil {
		return types.IndexBlockOutput{Height: in.Height}, fmt.Errorf("fetch block %d: %w", in.Height, err)
	}

	if err := c.Handler.ProcessBlock(ctx, b); err != nil {
		if rerr, ok := handler.AsReconciliation(err); ok {
			c.Logger.Error("block violates ledger invariants",
				zap.Uint64("block", b.Number),
				zap.String("entity", rerr.Entity),
				zap.String("key", rerr.Key),
				zap.String("reason", rerr.Reason))
			return types.IndexBlockOutput{Height: in.Height}, temporal.NewNonRetryableApplicationError(rerr.Error(), ErrTypeReconciliation, rerr)
		}
		return types.IndexBlockOutput{Height: in.Height}, fmt.Errorf("process block %d: %w", in.Height, err)
	}

	if err := c.Store.RecordIndexed(ctx, c.Chain, b.Number); err != nil {
		return types.IndexBlockOutput{Height: in.Height}, fmt.Errorf("record indexed %d: %w", b.Number, err)
	}

	elapsed := time.Since(start)
	c.Metrics.ObserveBlock(elapsed.Seconds(), b.Number)
	return types.IndexBlockOutput{
		Height:       b.Number,
		Transactions: len(b.Transactions),
		Events:       len(b.Events),
		DurationMs:   float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}

func (c *Context) checkChain(chain string) error {
	if chain != c.Chain {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("worker indexes %q, not %q", c.Chain, chain), "unknown_chain", nil)
	}
	return nil
}
