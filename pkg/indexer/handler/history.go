package handler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db/models/staking"
	"github.com/canopy-network/payoutx/pkg/ledger"
	"github.com/canopy-network/payoutx/pkg/ledger/call"
)

// OnTransaction writes the history of a signed transaction. A failed transaction carrying
// transfers yields one failed transfer per side; every other signed transaction yields one
// extrinsic row for its signer. Successful transfers are recorded from their events instead.
func (c *Context) OnTransaction(ctx context.Context, b *ledger.Block, tx *ledger.Transaction) error {
	c.init()
	if !tx.Signed || tx.Signer == "" {
		return nil
	}
	if !tx.Success {
		transfers := c.failedTransfers(b, tx)
		if len(transfers) > 0 {
			return c.saveFailedTransfers(ctx, b, tx, transfers)
		}
	}
	return c.saveExtrinsic(ctx, b, tx)
}

// failedTransfers resolves the transfers a failed transaction attempted. An undecodable call tree
// contributes no transfers.
func (c *Context) failedTransfers(b *ledger.Block, tx *ledger.Transaction) []call.Transfer {
	root, err := call.Decode(tx.Call)
	if err == nil {
		var transfers []call.Transfer
		transfers, err = call.Transfers(root, call.NewContext(b.EventsOf(tx.Index)))
		if err == nil {
			return transfers
		}
	}
	level := c.Logger.Debug
	if errors.Is(err, call.ErrMalformedInvocationTree) {
		level = c.Logger.Warn
	}
	level("failed transaction call not resolvable",
		zap.Uint64("block", b.Number),
		zap.String("extrinsic", tx.ID(b.Number)),
		zap.Error(err))
	return nil
}

func (c *Context) saveFailedTransfers(ctx context.Context, b *ledger.Block, tx *ledger.Transaction, transfers []call.Transfer) error {
	fee, err := c.fee(ctx, b, tx)
	if err != nil {
		return err
	}
	base := tx.ID(b.Number)
	rows := make([]*staking.HistoryElement, 0, 2*len(transfers))
	for i, t := range transfers {
		transfer := &staking.HistoryTransfer{
			Amount:   t.Value.Dec(),
			From:     tx.Signer,
			To:       t.Dest,
			Fee:      fee,
			EventIdx: staking.NoEvent,
			Success:  false,
		}
		id := base
		if len(transfers) > 1 {
			id = fmt.Sprintf("%s-%d", base, i)
		}
		rows = append(rows,
			transferRow(id, staking.SideFrom, tx.Signer, b, tx, transfer),
			transferRow(id, staking.SideTo, t.Dest, b, tx, transfer),
		)
	}
	return c.saveHistory(ctx, rows...)
}

func (c *Context) saveExtrinsic(ctx context.Context, b *ledger.Block, tx *ledger.Transaction) error {
	module, method, err := call.Name(tx.Call)
	if err != nil {
		c.Logger.Warn("transaction call has no name",
			zap.String("extrinsic", tx.ID(b.Number)),
			zap.Error(err))
	}
	fee, err := c.fee(ctx, b, tx)
	if err != nil {
		return err
	}
	idx := tx.Index
	row := &staking.HistoryElement{
		ID:            tx.ID(b.Number),
		Address:       tx.Signer,
		BlockNumber:   b.Number,
		ExtrinsicHash: tx.Hash,
		ExtrinsicIdx:  &idx,
		Timestamp:     b.Timestamp,
		Extrinsic: &staking.HistoryExtrinsic{
			Hash:    tx.Hash,
			Module:  module,
			Call:    method,
			Success: tx.Success,
			Fee:     fee,
		},
	}
	return c.saveHistory(ctx, row)
}
