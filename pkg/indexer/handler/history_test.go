package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
	"github.com/canopy-network/payoutx/pkg/redis"
)

func TestTransferEventWritesBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rpc.On("QueryFeeInfo", mock.Anything, mock.Anything).Return(uint256.NewInt(1250), nil)

	b := newBlock(321)
	idx := addTx(b, alice, true, transferCall(bob, 5))
	addEvent(b, txIndex(idx), "system", "ExtrinsicSuccess", nil)
	addEvent(b, txIndex(idx), "balances", "Withdraw", nil)
	addEvent(b, txIndex(idx), "balances", "Deposit", nil)
	e := addEvent(b, txIndex(idx), "balances", "Transfer", args(t, alice, bob, "5"))
	require.Equal(t, uint32(3), e.Index)

	require.NoError(t, f.hc.OnEvent(ctx, b, e))

	for side, address := range map[string]string{staking.SideFrom: alice, staking.SideTo: bob} {
		row, err := f.store.GetHistoryElement(ctx, fmt.Sprintf("321-3-%s", side))
		require.NoError(t, err, side)
		assert.Equal(t, address, row.Address)
		assert.Equal(t, b.Transactions[0].Hash, row.ExtrinsicHash)
		require.NotNil(t, row.Transfer)
		assert.Equal(t, int64(3), row.Transfer.EventIdx)
		assert.True(t, row.Transfer.Success)
		assert.Equal(t, "5", row.Transfer.Amount)
		assert.Equal(t, "1250", row.Transfer.Fee)
		assert.Equal(t, alice, row.Transfer.From)
		assert.Equal(t, bob, row.Transfer.To)
	}
	assert.Equal(t, []string{redis.TopicTransfer}, f.pub.topics())
}

func TestSystemTransferHasNoFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := newBlock(5)
	e := addEvent(b, nil, "balances", "Transfer", args(t, alice, bob, 7))

	require.NoError(t, f.hc.OnEvent(ctx, b, e))
	row, err := f.store.GetHistoryElement(ctx, "5-0-to")
	require.NoError(t, err)
	assert.Equal(t, "0", row.Transfer.Fee)
	assert.Empty(t, row.ExtrinsicHash)
	assert.Nil(t, row.ExtrinsicIdx)
	f.rpc.AssertNotCalled(t, "QueryFeeInfo", mock.Anything, mock.Anything)
}

func TestFailedBatchAllRecordsEveryTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rpc.On("QueryFeeInfo", mock.Anything, mock.Anything).Return(uint256.NewInt(10), nil)

	b := newBlock(40)
	addTx(b, "", true, `{"module":"timestamp","method":"set","args":[1]}`)
	addTx(b, alice, false, batchCall("batchAll", transferCall(bob, 5), transferCall(charlie, 7)))
	require.NoError(t, f.hc.OnTransaction(ctx, b, &b.Transactions[1]))

	tos := map[string]string{}
	for i := 0; i < 2; i++ {
		from, err := f.store.GetHistoryElement(ctx, fmt.Sprintf("40-1-%d-from", i))
		require.NoError(t, err)
		to, err := f.store.GetHistoryElement(ctx, fmt.Sprintf("40-1-%d-to", i))
		require.NoError(t, err)

		assert.Equal(t, alice, from.Address)
		for _, row := range []*staking.HistoryElement{from, to} {
			require.NotNil(t, row.Transfer)
			assert.False(t, row.Transfer.Success)
			assert.Equal(t, staking.NoEvent, row.Transfer.EventIdx)
			assert.Equal(t, alice, row.Transfer.From)
			assert.Equal(t, "10", row.Transfer.Fee)
		}
		tos[to.Address] = to.Transfer.Amount
	}
	assert.Equal(t, map[string]string{bob: "5", charlie: "7"}, tos)

	_, err := f.store.GetHistoryElement(ctx, "40-1")
	assert.True(t, db.IsNotFound(err), "failed transfers replace the extrinsic row")
	assert.Equal(t, 4, f.store.Counts()["history_elements"])
}

func TestFailedSingleTransferKeepsPlainIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rpc.On("QueryFeeInfo", mock.Anything, mock.Anything).Return(uint256.NewInt(10), nil)

	b := newBlock(41)
	addTx(b, alice, false, `{"module":"utility","method":"asDerivative","args":[0,`+transferCall(bob, 3)+`]}`)
	require.NoError(t, f.hc.OnTransaction(ctx, b, &b.Transactions[0]))

	row, err := f.store.GetHistoryElement(ctx, "41-0-to")
	require.NoError(t, err)
	assert.Equal(t, bob, row.Address)
	assert.Equal(t, "3", row.Transfer.Amount)
}

func TestFailedBatchSkipsUnreadableTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rpc.On("QueryFeeInfo", mock.Anything, mock.Anything).Return(uint256.NewInt(10), nil)

	b := newBlock(600)
	indexDest := `{"module":"balances","method":"transfer","args":[{"index":3},"7"]}`
	addTx(b, alice, false, batchCall("batchAll", transferCall(bob, 5), indexDest))
	require.NoError(t, f.hc.OnTransaction(ctx, b, &b.Transactions[0]))

	to, err := f.store.GetHistoryElement(ctx, "600-0-to")
	require.NoError(t, err)
	assert.Equal(t, bob, to.Address)
	require.NotNil(t, to.Transfer)
	assert.False(t, to.Transfer.Success)
	assert.Equal(t, "5", to.Transfer.Amount)

	_, err = f.store.GetHistoryElement(ctx, "600-0")
	assert.True(t, db.IsNotFound(err))
	assert.Equal(t, 2, f.store.Counts()["history_elements"])
}

func TestSignedTransactionsGetExtrinsicRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rpc.On("QueryFeeInfo", mock.Anything, mock.Anything).Return(uint256.NewInt(99), nil)

	b := newBlock(60)
	addTx(b, "", true, `{"module":"timestamp","method":"set","args":[1]}`)
	addTx(b, alice, true, transferCall(bob, 1))
	addTx(b, bob, false, `{"module":"staking","method":"bond","args":[1]}`)
	for i := range b.Transactions {
		require.NoError(t, f.hc.OnTransaction(ctx, b, &b.Transactions[i]))
	}

	_, err := f.store.GetHistoryElement(ctx, "60-0")
	assert.True(t, db.IsNotFound(err), "unsigned transactions have no history")

	ok, err := f.store.GetHistoryElement(ctx, "60-1")
	require.NoError(t, err)
	assert.Equal(t, alice, ok.Address)
	require.NotNil(t, ok.Extrinsic)
	assert.Equal(t, staking.HistoryExtrinsic{Hash: b.Transactions[1].Hash, Module: "balances", Call: "transfer", Success: true, Fee: "99"}, *ok.Extrinsic)

	failed, err := f.store.GetHistoryElement(ctx, "60-2")
	require.NoError(t, err)
	assert.Equal(t, bob, failed.Address)
	assert.False(t, failed.Extrinsic.Success)
	assert.Equal(t, "bond", failed.Extrinsic.Call)
}

func TestIdentityRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	info := json.RawMessage(`{"info":{"display":{"raw":"alice"}}}`)
	f.rpc.On("IdentityOf", mock.Anything, alice).Return(info, true, nil)
	f.rpc.On("IdentityOf", mock.Anything, bob).Return(nil, false, nil)

	b := newBlock(70)
	require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "identity", "SubIdentityAdded", args(t, bob, alice, "1"))))
	require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "identity", "IdentitySet", args(t, alice))))

	a, err := f.store.GetAccount(ctx, alice)
	require.NoError(t, err)
	require.Len(t, a.Identity, 1)
	assert.JSONEq(t, string(info), string(a.Identity[0].Info))
	assert.Equal(t, uint64(70), a.Identity[0].Block)

	sub, err := f.store.GetAccount(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, sub.Identity)
}

func TestProcessBlockRefreshesAuthorAndRunsInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rpc.On("SessionValidators", mock.Anything).Return([]string{bob, charlie}, nil)
	f.rpc.On("IdentityOf", mock.Anything, charlie).Return(json.RawMessage(`{"display":"c"}`), true, nil)
	f.rpc.On("QueryFeeInfo", mock.Anything, mock.Anything).Return(uint256.NewInt(1), nil)
	f.rpc.On("ActiveEra", mock.Anything).Return(uint32(0), false, nil)

	b := newBlock(88)
	b.AuthorIndex = txIndex(1)
	idx := addTx(b, alice, true, transferCall(bob, 2))
	addEvent(b, txIndex(idx), "balances", "Transfer", args(t, alice, bob, "2"))
	addEvent(b, nil, "session", "NewSession", args(t, 3))
	addEvent(b, nil, "treasury", "Deposit", args(t, "1"))

	require.NoError(t, f.hc.ProcessBlock(ctx, b))

	author, err := f.store.GetAccount(ctx, charlie)
	require.NoError(t, err)
	require.Len(t, author.Identity, 1)

	counts := f.store.Counts()
	assert.Equal(t, 3, counts["history_elements"])
	assert.Equal(t, 1, counts["sessions"])
}
