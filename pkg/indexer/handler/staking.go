package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
	"github.com/canopy-network/payoutx/pkg/ledger"
	"github.com/canopy-network/payoutx/pkg/ledger/call"
	"github.com/canopy-network/payoutx/pkg/metrics"
	"github.com/canopy-network/payoutx/pkg/redis"
)

// HandleEraPayout splits the era's validator payout over the reward points snapshot and writes
// one unclaimed ValidatorPayout per rewarded account. The era must already be recorded.
func (c *Context) HandleEraPayout(ctx context.Context, b *ledger.Block, e ledger.Event) error {
	index, err := ledger.ArgUint(e.Data, 0)
	if err != nil {
		return fmt.Errorf("era payout index: %w", err)
	}
	era := uint32(index)
	total, err := ledger.ArgBalance(e.Data, 1)
	if err != nil {
		return fmt.Errorf("era payout amount: %w", err)
	}

	if _, err := c.Store.GetEra(ctx, era); err != nil {
		if db.IsNotFound(err) {
			return reconcileErr(b.Number, "Era", staking.EraID(era), "era payout for an era that was never started")
		}
		return fmt.Errorf("load era %d: %w", era, err)
	}

	points, err := c.RPC.ErasRewardPoints(ctx, b.Hash, era)
	if err != nil {
		return fmt.Errorf("reward points era %d: %w", era, err)
	}
	if points.Total == 0 {
		c.Logger.Warn("era payout without reward points",
			zap.Uint32("era", era),
			zap.Uint64("block", b.Number))
		return nil
	}

	group := c.group(ctx)
	for _, ip := range points.Individual {
		group.SubmitErr(func() error {
			gctx := group.Context()
			// Early eras rewarded accounts missing from the exposure snapshot.
			if _, err := c.TouchAccount(gctx, b, ip.Account); err != nil {
				return err
			}
			amount, _ := staking.PayoutAmount(total, points.Total, ip.Points)
			if err := c.Store.SaveValidatorPayout(gctx, staking.NewValidatorPayout(era, ip.Account, amount)); err != nil {
				return fmt.Errorf("save payout %d/%s: %w", era, ip.Account, err)
			}
			c.Metrics.ObservePayoutCreated()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	c.Logger.Info("era payout recorded",
		zap.Uint32("era", era),
		zap.String("total", total.Dec()),
		zap.Int("validators", len(points.Individual)))
	c.publish(ctx, redis.Notification{
		Topic:  redis.TopicPayoutCreated,
		Height: b.Number,
		Key:    staking.EraID(era),
	})
	return nil
}

// HandleReward attributes a reward event to the payouts it settles. Rewards inside a signed
// transaction settle the payoutStakers calls of that transaction. Rewards without a signer, either
// outside any transaction or inside an unsigned one, are the runtime paying out the era that just
// left the claim window.
func (c *Context) HandleReward(ctx context.Context, b *ledger.Block, e ledger.Event) error {
	who, err := ledger.ArgString(e.Data, 0)
	if err != nil {
		return fmt.Errorf("reward account: %w", err)
	}

	tx, ok := b.Transaction(e)
	if !ok || !tx.Signed || tx.Signer == "" {
		return c.claimDueEra(ctx, b, who)
	}
	if !tx.Success {
		return nil
	}

	root, err := call.Decode(tx.Call)
	if err != nil {
		return reconcileErr(b.Number, "Extrinsic", tx.ID(b.Number), "decode reward call: %v", err)
	}

	var claims []call.PayoutStakers
	switch v := root.(type) {
	case call.PayoutStakers:
		claims = []call.PayoutStakers{v}
	case call.TimestampSet:
		return nil
	case call.Invalid:
		c.Logger.Warn("reward call has unreadable arguments",
			zap.String("extrinsic", tx.ID(b.Number)),
			zap.Error(v.Err))
		return nil
	default:
		if !call.IsWrapper(root) {
			return reconcileErr(b.Number, "Extrinsic", tx.ID(b.Number), "unexpected reward call %s.%s", root.Module(), root.Method())
		}
		claims, err = call.Payouts(root, call.NewContext(b.EventsOf(tx.Index)))
		if err != nil {
			return reconcileErr(b.Number, "Extrinsic", tx.ID(b.Number), "resolve reward call: %v", err)
		}
	}

	for _, claim := range claims {
		if err := c.claimPayout(ctx, b, claim.Era, claim.Stash, tx.Signer); err != nil {
			return err
		}
	}
	return nil
}

// claimPayout marks the (era, validator) payout claimed. A validator that was exposed but earned
// no points has no payout row; it gets a zero payout that is claimed from the start.
func (c *Context) claimPayout(ctx context.Context, b *ledger.Block, era uint32, validator, claimer string) error {
	id := staking.PayoutID(era, validator)
	payout, err := c.Store.GetValidatorPayout(ctx, id)
	path := metrics.ClaimExplicit
	switch {
	case err == nil:
		if !payout.MarkClaimed(claimer, b.Number) {
			return nil
		}
	case db.IsNotFound(err):
		if _, err := c.Store.GetEraValidator(ctx, staking.EraValidatorID(era, validator)); err != nil {
			if db.IsNotFound(err) {
				return reconcileErr(b.Number, "ValidatorPayout", id,
					"claim for validator %s in era %d with neither payout nor exposure", validator, era)
			}
			return fmt.Errorf("load era validator %d/%s: %w", era, validator, err)
		}
		payout = staking.NewValidatorPayout(era, validator, nil)
		payout.MarkClaimed(claimer, b.Number)
		path = metrics.ClaimFallback
	default:
		return fmt.Errorf("load payout %d/%s: %w", era, validator, err)
	}

	if err := c.Store.SaveValidatorPayout(ctx, payout); err != nil {
		return fmt.Errorf("save payout %d/%s: %w", era, validator, err)
	}
	c.claimed(ctx, b, payout, path)
	return nil
}

// claimDueEra settles the payout of the era leaving the claim window:
// anchor era - history depth + offset. Missing or settled payouts are not an error.
func (c *Context) claimDueEra(ctx context.Context, b *ledger.Block, who string) error {
	due, ok, err := c.dueEra(ctx, b)
	if err != nil || !ok {
		return err
	}
	payout, err := c.Store.GetValidatorPayout(ctx, staking.PayoutID(due, who))
	if db.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payout %d/%s: %w", due, who, err)
	}
	if !payout.MarkClaimed("", b.Number) {
		return nil
	}
	if err := c.Store.SaveValidatorPayout(ctx, payout); err != nil {
		return fmt.Errorf("save payout %d/%s: %w", due, who, err)
	}
	c.claimed(ctx, b, payout, metrics.ClaimImplicit)
	return nil
}

func (c *Context) dueEra(ctx context.Context, b *ledger.Block) (uint32, bool, error) {
	var (
		anchor uint32
		ok     bool
		err    error
	)
	if c.Rewards.Anchor == config.AnchorActiveEra {
		anchor, ok, err = c.RPC.ActiveEra(ctx, b.Hash)
	} else {
		anchor, ok, err = c.RPC.CurrentEra(ctx, b.Hash)
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s era at %d: %w", c.Rewards.Anchor, b.Number, err)
	}
	if !ok {
		return 0, false, nil
	}
	depth, err := c.RPC.HistoryDepth(ctx, b.Hash)
	if err != nil {
		return 0, false, fmt.Errorf("history depth at %d: %w", b.Number, err)
	}
	due := int64(anchor) - int64(depth) + int64(c.Rewards.Offset)
	if due < 0 {
		return 0, false, nil
	}
	return uint32(due), true, nil
}

func (c *Context) claimed(ctx context.Context, b *ledger.Block, p *staking.ValidatorPayout, path string) {
	c.Metrics.ObservePayoutClaimed(path)
	data, err := json.Marshal(p)
	if err != nil {
		c.Logger.Warn("encode claimed payout", zap.String("payout", p.ID), zap.Error(err))
		return
	}
	c.publish(ctx, redis.Notification{
		Topic:  redis.TopicPayoutClaimed,
		Height: b.Number,
		Key:    p.ID,
		Data:   data,
	})
}
