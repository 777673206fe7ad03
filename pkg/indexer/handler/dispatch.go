package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

// HandlerFunc handles one event of the block being indexed.
type HandlerFunc func(c *Context, ctx context.Context, b *ledger.Block, e ledger.Event) error

// Table maps "module/method" event keys to handlers run in list order.
type Table map[string][]HandlerFunc

// DefaultTable wires every event the indexer understands.
func DefaultTable() Table {
	return Table{
		"session/NewSession": {(*Context).HandleNewSession},

		"staking/EraPayout": {(*Context).HandleEraPayout},
		"staking/EraPaid":   {(*Context).HandleEraPayout},
		"staking/Reward":    {(*Context).HandleReward},
		"staking/Rewarded":  {(*Context).HandleReward},

		"balances/Transfer": {(*Context).HandleTransfer},

		"identity/IdentitySet":     {(*Context).HandleIdentity},
		"identity/IdentityCleared": {(*Context).HandleIdentity},
		"identity/IdentityKilled":  {(*Context).HandleIdentity},
		"identity/JudgementGiven":  {(*Context).HandleIdentity},

		"identity/SubIdentityAdded":   {(*Context).HandleSubIdentity},
		"identity/SubIdentityRemoved": {(*Context).HandleSubIdentity},
		"identity/SubIdentityRevoked": {(*Context).HandleSubIdentity},
	}
}

// ProcessBlock runs OnBlock, then OnTransaction for every transaction, then OnEvent for every
// event, in block order. It stops at the first error.
func (c *Context) ProcessBlock(ctx context.Context, b *ledger.Block) error {
	c.init()
	if err := c.OnBlock(ctx, b); err != nil {
		return err
	}
	for i := range b.Transactions {
		if err := c.OnTransaction(ctx, b, &b.Transactions[i]); err != nil {
			return err
		}
	}
	for _, e := range b.Events {
		if err := c.OnEvent(ctx, b, e); err != nil {
			return err
		}
	}
	return nil
}

// OnEvent dispatches e to its handlers. Events without handlers are ignored.
func (c *Context) OnEvent(ctx context.Context, b *ledger.Block, e ledger.Event) error {
	c.init()
	key := e.Key()
	handlers := c.Table[key]
	if len(handlers) == 0 {
		return nil
	}
	c.Metrics.ObserveEvent(key)
	for _, h := range handlers {
		if err := h(c, ctx, b, e); err != nil {
			if re, ok := AsReconciliation(err); ok {
				c.Metrics.ObserveReconciliationError(re.Entity)
				c.Logger.Error("reconciliation error",
					zap.Uint64("block", b.Number),
					zap.String("event", e.ID(b.Number)),
					zap.String("entity", re.Entity),
					zap.String("key", re.Key),
					zap.String("reason", re.Reason))
				return err
			}
			return fmt.Errorf("event %s %s: %w", e.ID(b.Number), key, err)
		}
	}
	return nil
}
