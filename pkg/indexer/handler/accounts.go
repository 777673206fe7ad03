package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
	"github.com/canopy-network/payoutx/pkg/ledger"
)

// TouchAccount loads or creates the account and re-reads its nonce from chain state at b. The
// nonce is never trusted from the store.
func (c *Context) TouchAccount(ctx context.Context, b *ledger.Block, id string) (*staking.Account, error) {
	c.init()
	account, _, err := db.GetOrCreate(ctx,
		func(ctx context.Context) (*staking.Account, error) { return c.Store.GetAccount(ctx, id) },
		func() *staking.Account { return c.newAccount(id) },
		func(context.Context, *staking.Account) error { return nil },
	)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}

	nonce, err := c.RPC.AccountNonce(ctx, b.Hash, id)
	if err != nil {
		return nil, fmt.Errorf("nonce %s: %w", id, err)
	}
	account.NextNonce = nonce
	account.UpdatedAt = b.Timestamp
	if err := c.Store.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("save account %s: %w", id, err)
	}
	return account, nil
}

func (c *Context) newAccount(id string) *staking.Account {
	pub, err := ledger.PublicKeyHex(id)
	if err != nil {
		c.Logger.Warn("account id is not a valid ss58 address", zap.String("account", id), zap.Error(err))
	}
	return &staking.Account{ID: id, PubKey: pub}
}

// RefreshIdentity touches the account and appends the chain identity when one is registered.
func (c *Context) RefreshIdentity(ctx context.Context, b *ledger.Block, id string) error {
	account, err := c.TouchAccount(ctx, b, id)
	if err != nil {
		return err
	}
	info, ok, err := c.RPC.IdentityOf(ctx, b.Hash, id)
	if err != nil {
		return fmt.Errorf("identity %s: %w", id, err)
	}
	if !ok {
		return nil
	}
	if !account.AppendIdentity(b.Number, info) {
		return nil
	}
	if err := c.Store.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("save identity %s: %w", id, err)
	}
	return nil
}

// HandleIdentity refreshes the account named by the first event argument.
func (c *Context) HandleIdentity(ctx context.Context, b *ledger.Block, e ledger.Event) error {
	who, err := ledger.ArgString(e.Data, 0)
	if err != nil {
		return fmt.Errorf("identity event account: %w", err)
	}
	return c.RefreshIdentity(ctx, b, who)
}

// HandleSubIdentity refreshes the sub account and then its main account.
func (c *Context) HandleSubIdentity(ctx context.Context, b *ledger.Block, e ledger.Event) error {
	sub, err := ledger.ArgString(e.Data, 0)
	if err != nil {
		return fmt.Errorf("sub identity account: %w", err)
	}
	parent, err := ledger.ArgString(e.Data, 1)
	if err != nil {
		return fmt.Errorf("sub identity main account: %w", err)
	}
	if err := c.RefreshIdentity(ctx, b, sub); err != nil {
		return err
	}
	return c.RefreshIdentity(ctx, b, parent)
}

// OnBlock refreshes the block author, taken from the session validator set.
func (c *Context) OnBlock(ctx context.Context, b *ledger.Block) error {
	c.init()
	if b.AuthorIndex == nil {
		return nil
	}
	validators, err := c.RPC.SessionValidators(ctx, b.Hash)
	if err != nil {
		return fmt.Errorf("session validators at %d: %w", b.Number, err)
	}
	idx := int(*b.AuthorIndex)
	if idx >= len(validators) {
		c.Logger.Warn("block author index outside validator set",
			zap.Uint64("block", b.Number),
			zap.Int("authorIndex", idx),
			zap.Int("validators", len(validators)))
		return nil
	}
	return c.RefreshIdentity(ctx, b, validators[idx])
}
