package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db/models/staking"
	"github.com/canopy-network/payoutx/pkg/ledger"
	"github.com/canopy-network/payoutx/pkg/redis"
)

// HandleTransfer writes the sender and receiver history rows of a successful transfer. Failed
// transfers never emit this event; OnTransaction covers them.
func (c *Context) HandleTransfer(ctx context.Context, b *ledger.Block, e ledger.Event) error {
	from, err := ledger.ArgString(e.Data, 0)
	if err != nil {
		return fmt.Errorf("transfer from: %w", err)
	}
	to, err := ledger.ArgString(e.Data, 1)
	if err != nil {
		return fmt.Errorf("transfer to: %w", err)
	}
	amount, err := ledger.ArgBalance(e.Data, 2)
	if err != nil {
		return fmt.Errorf("transfer amount: %w", err)
	}

	fee := "0"
	tx, hasTx := b.Transaction(e)
	if hasTx {
		if fee, err = c.fee(ctx, b, tx); err != nil {
			return err
		}
	}

	transfer := &staking.HistoryTransfer{
		Amount:   amount.Dec(),
		From:     from,
		To:       to,
		Fee:      fee,
		EventIdx: int64(e.Index),
		Success:  true,
	}
	base := e.ID(b.Number)
	rows := []*staking.HistoryElement{
		transferRow(base, staking.SideFrom, from, b, tx, transfer),
		transferRow(base, staking.SideTo, to, b, tx, transfer),
	}
	if err := c.saveHistory(ctx, rows...); err != nil {
		return err
	}

	data, err := json.Marshal(transfer)
	if err != nil {
		c.Logger.Warn("encode transfer", zap.String("event", base), zap.Error(err))
		return nil
	}
	c.publish(ctx, redis.Notification{Topic: redis.TopicTransfer, Height: b.Number, Key: base, Data: data})
	return nil
}

// transferRow builds one side of a transfer. tx may be nil for system transfers.
func transferRow(base, side, address string, b *ledger.Block, tx *ledger.Transaction, t *staking.HistoryTransfer) *staking.HistoryElement {
	row := &staking.HistoryElement{
		ID:          base + "-" + side,
		Address:     address,
		BlockNumber: b.Number,
		Timestamp:   b.Timestamp,
		Transfer:    t,
	}
	if tx != nil {
		idx := tx.Index
		row.ExtrinsicHash = tx.Hash
		row.ExtrinsicIdx = &idx
	}
	return row
}

// saveHistory writes rows concurrently. Row ids are unique per call.
func (c *Context) saveHistory(ctx context.Context, rows ...*staking.HistoryElement) error {
	group := c.group(ctx)
	for _, row := range rows {
		group.SubmitErr(func() error {
			if err := c.Store.SaveHistoryElement(group.Context(), row); err != nil {
				return fmt.Errorf("save history %s: %w", row.ID, err)
			}
			c.Metrics.ObserveHistoryRow(row.Kind())
			return nil
		})
	}
	return group.Wait()
}

func (c *Context) fee(ctx context.Context, b *ledger.Block, tx *ledger.Transaction) (string, error) {
	fee, err := c.RPC.QueryFeeInfo(ctx, tx.Hex, b.Hash)
	if err != nil {
		return "", fmt.Errorf("fee of %s: %w", tx.ID(b.Number), err)
	}
	return fee.Dec(), nil
}
