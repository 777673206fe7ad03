package handler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
	"github.com/canopy-network/payoutx/pkg/ledger"
	"github.com/canopy-network/payoutx/pkg/rpc"
	"github.com/canopy-network/payoutx/pkg/utils"
)

// HandleNewSession records the session, closes the previous one and, on the first session of a
// new active era, records the era and snapshots its validator exposures.
func (c *Context) HandleNewSession(ctx context.Context, b *ledger.Block, e ledger.Event) error {
	index, err := ledger.ArgUint(e.Data, 0)
	if err != nil {
		return fmt.Errorf("session index: %w", err)
	}
	if err := c.openSession(ctx, uint32(index), b.Number); err != nil {
		return err
	}

	era, ok, err := c.RPC.ActiveEra(ctx, b.Hash)
	if err != nil {
		return fmt.Errorf("active era at %d: %w", b.Number, err)
	}
	if !ok {
		return nil
	}
	_, err = c.Store.GetEra(ctx, era)
	if err == nil {
		return nil
	}
	if !db.IsNotFound(err) {
		return fmt.Errorf("load era %d: %w", era, err)
	}

	// The era row is written after the snapshot: a failed snapshot leaves no era behind, so the
	// retried block snapshots again.
	if err := c.snapshotValidators(ctx, b, era); err != nil {
		return err
	}
	return c.openEra(ctx, era, b.Number)
}

func (c *Context) openSession(ctx context.Context, index uint32, start uint64) error {
	if err := c.Store.SaveSession(ctx, &staking.Session{ID: index, StartBlock: start}); err != nil {
		return fmt.Errorf("save session %d: %w", index, err)
	}
	if index == 0 {
		return nil
	}
	prev, err := c.Store.GetSession(ctx, index-1)
	if db.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session %d: %w", index-1, err)
	}
	if !prev.Close(start) {
		return nil
	}
	if err := c.Store.SaveSession(ctx, prev); err != nil {
		return fmt.Errorf("close session %d: %w", prev.ID, err)
	}
	return nil
}

func (c *Context) openEra(ctx context.Context, index uint32, start uint64) error {
	if err := c.Store.SaveEra(ctx, &staking.Era{ID: index, StartBlock: start}); err != nil {
		return fmt.Errorf("save era %d: %w", index, err)
	}
	c.Logger.Info("era started", zap.Uint32("era", index), zap.Uint64("block", start))
	if index == 0 {
		return nil
	}
	prev, err := c.Store.GetEra(ctx, index-1)
	if db.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load era %d: %w", index-1, err)
	}
	if !prev.Close(start) {
		return nil
	}
	if err := c.Store.SaveEra(ctx, prev); err != nil {
		return fmt.Errorf("close era %d: %w", prev.ID, err)
	}
	return nil
}

// snapshotValidators writes one EraValidator per exposure and one NominatorValidator per backing
// nominator. Accounts are touched first, once each, so that no two pool tasks write the same key.
func (c *Context) snapshotValidators(ctx context.Context, b *ledger.Block, era uint32) error {
	exposures, err := c.RPC.ErasStakers(ctx, b.Hash, era)
	if err != nil {
		return fmt.Errorf("eras stakers %d: %w", era, err)
	}

	accounts := make([]string, 0, len(exposures))
	for _, exposure := range exposures {
		accounts = append(accounts, exposure.Validator)
		for _, o := range exposure.Others {
			accounts = append(accounts, o.Who)
		}
	}
	touch := c.group(ctx)
	for _, id := range utils.Dedup(accounts) {
		touch.SubmitErr(func() error {
			_, err := c.TouchAccount(touch.Context(), b, id)
			return err
		})
	}
	if err := touch.Wait(); err != nil {
		return fmt.Errorf("snapshot era %d accounts: %w", era, err)
	}

	group := c.group(ctx)
	for _, exposure := range exposures {
		group.SubmitErr(func() error {
			return c.saveExposure(group.Context(), era, exposure)
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("snapshot era %d: %w", era, err)
	}
	c.Logger.Info("validator exposures recorded",
		zap.Uint32("era", era),
		zap.Int("validators", len(exposures)))
	return nil
}

func (c *Context) saveExposure(ctx context.Context, era uint32, exposure rpc.ValidatorExposure) error {
	others := make([]staking.Exposure, 0, len(exposure.Others))
	for _, o := range exposure.Others {
		others = append(others, staking.Exposure{Who: o.Who, Value: o.Value})
	}
	ev := staking.NewEraValidator(era, exposure.Validator, exposure.Total, exposure.Own, others)
	if err := c.Store.SaveEraValidator(ctx, ev); err != nil {
		return fmt.Errorf("save era validator %s: %w", exposure.Validator, err)
	}

	for _, o := range exposure.Others {
		if err := c.saveNomination(ctx, era, o.Who, exposure.Validator); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.Logger.Error("failed to save nominator validator",
				zap.Uint32("era", era),
				zap.String("nominator", o.Who),
				zap.String("validator", exposure.Validator),
				zap.Error(err))
		}
	}
	return nil
}

func (c *Context) saveNomination(ctx context.Context, era uint32, nominator, validator string) error {
	id := staking.NominatorValidatorID(era, nominator, validator)
	_, _, err := db.GetOrCreate(ctx,
		func(ctx context.Context) (*staking.NominatorValidator, error) { return c.Store.GetNominatorValidator(ctx, id) },
		func() *staking.NominatorValidator { return staking.NewNominatorValidator(era, nominator, validator) },
		c.Store.SaveNominatorValidator,
	)
	return err
}
