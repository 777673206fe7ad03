package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raws(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestArgDecoding(t *testing.T) {
	data := raws(`"5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"`, `12`, `"340282366920938463463374607431768211455"`, `"0x00ff"`, `"1,000"`)

	who, err := ArgString(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", who)

	era, err := ArgUint(data, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), era)

	maxU128, err := ArgBalance(data, 2)
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", maxU128.Dec())

	hexBal, err := ArgBalance(data, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(255), hexBal.Uint64())

	human, err := ArgBalance(data, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), human.Uint64())

	s, err := ArgString(data, 1)
	require.NoError(t, err)
	assert.Equal(t, "12", s)
}

func TestArgOutOfRange(t *testing.T) {
	_, err := ArgUint(raws(`1`), 3)
	require.Error(t, err)
	_, err = ArgBalance(raws(`"abc"`), 0)
	require.Error(t, err)
}

func TestBlockLookups(t *testing.T) {
	zero, one := uint32(0), uint32(1)
	b := &Block{
		Number:       7,
		Transactions: []Transaction{{Index: 0, Hash: "0xa"}, {Index: 1, Hash: "0xb"}},
		Events: []Event{
			{Index: 0, Module: "system", Method: "ExtrinsicSuccess", TxIndex: &zero},
			{Index: 1, Module: "balances", Method: "Transfer", TxIndex: &one},
			{Index: 2, Module: "system", Method: "ExtrinsicSuccess", TxIndex: &one},
			{Index: 3, Module: "staking", Method: "EraPaid"},
		},
	}

	tx, ok := b.Transaction(b.Events[1])
	require.True(t, ok)
	assert.Equal(t, "0xb", tx.Hash)

	_, ok = b.Transaction(b.Events[3])
	assert.False(t, ok)

	assert.Len(t, b.EventsOf(1), 2)
	assert.Equal(t, "balances/Transfer", b.Events[1].Key())
	assert.Equal(t, "7-3", b.Events[3].ID(b.Number))
	assert.Equal(t, "7-1", tx.ID(b.Number))
}
