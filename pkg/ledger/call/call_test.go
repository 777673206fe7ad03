package call

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

const (
	alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
)

func transferJSON(dest string, value int) string {
	return fmt.Sprintf(`{"module":"balances","method":"transferKeepAlive","args":[%q,"%d"]}`, dest, value)
}

func payoutJSON(stash string, era int) string {
	return fmt.Sprintf(`{"module":"staking","method":"payoutStakers","args":[%q,%d]}`, stash, era)
}

func batchJSON(method string, calls ...string) string {
	return fmt.Sprintf(`{"module":"utility","method":%q,"args":[[%s]]}`, method, strings.Join(calls, ","))
}

func proxyJSON(inner string) string {
	return fmt.Sprintf(`{"module":"proxy","method":"proxy","args":[%q,null,%s]}`, alice, inner)
}

func derivativeJSON(inner string) string {
	return fmt.Sprintf(`{"module":"utility","method":"asDerivative","args":[1,%s]}`, inner)
}

func mustDecode(t *testing.T, raw string) Invocation {
	t.Helper()
	inv, err := Decode(json.RawMessage(raw))
	require.NoError(t, err)
	return inv
}

func interrupted(at int) Context {
	return NewContext([]ledger.Event{{
		Module: "utility",
		Method: "BatchInterrupted",
		Data:   []json.RawMessage{json.RawMessage(fmt.Sprint(at)), json.RawMessage(`{"module":1}`)},
	}})
}

func TestDecodeVariants(t *testing.T) {
	inv := mustDecode(t, transferJSON(bob, 10))
	tr, ok := inv.(Transfer)
	require.True(t, ok)
	assert.Equal(t, bob, tr.Dest)
	assert.Equal(t, uint64(10), tr.Value.Uint64())
	assert.Equal(t, "balances", tr.Module())
	assert.Equal(t, "transferKeepAlive", tr.Method())

	inv = mustDecode(t, payoutJSON(alice, 7))
	assert.Equal(t, PayoutStakers{Stash: alice, Era: 7}, inv)

	inv = mustDecode(t, `{"module":"utility","method":"batch_all","args":[[]]}`)
	assert.IsType(t, BatchAll{}, inv)

	inv = mustDecode(t, `{"module":"balances","method":"transfer_allow_death","args":[{"id":"`+bob+`"},"0x10"]}`)
	tr = inv.(Transfer)
	assert.Equal(t, bob, tr.Dest)
	assert.Equal(t, uint64(16), tr.Value.Uint64())

	inv = mustDecode(t, `{"module":"timestamp","method":"set","args":[1700000000000]}`)
	assert.Equal(t, TimestampSet{Now: 1700000000000}, inv)

	inv = mustDecode(t, `{"module":"system","method":"remark","args":["0x00"]}`)
	assert.Equal(t, Unknown{Mod: "system", Meth: "remark"}, inv)
	assert.False(t, IsWrapper(inv))
}

func TestDecodeUnreadableArgumentsYieldInvalid(t *testing.T) {
	cases := map[string]string{
		"missing value":  `{"module":"balances","method":"transfer","args":["` + bob + `"]}`,
		"index dest":     `{"module":"balances","method":"transfer","args":[{"index":3},"7"]}`,
		"raw dest":       `{"module":"balances","method":"transferKeepAlive","args":[{"raw":"0x01"},"7"]}`,
		"payout era":     `{"module":"staking","method":"payoutStakers","args":["` + alice + `","x"]}`,
		"batch not list": `{"module":"utility","method":"batch","args":["nope"]}`,
		"batch no calls": `{"module":"utility","method":"batchAll","args":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			inv := mustDecode(t, raw)
			bad, ok := inv.(Invalid)
			require.True(t, ok, "got %#v", inv)
			assert.Error(t, bad.Err)
			assert.False(t, IsWrapper(inv))
			assert.False(t, IsTransfer(inv))
		})
	}

	_, err := Decode(json.RawMessage(`{"args":[]}`))
	require.Error(t, err)
	_, err = Decode(json.RawMessage(batchJSON("batch", `{"module":1}`)))
	require.Error(t, err)
}

func TestInvalidSiblingKeepsTheRest(t *testing.T) {
	raw := batchJSON("batchAll",
		payoutJSON(alice, 9),
		`{"module":"balances","method":"transfer","args":[{"index":3},"7"]}`,
		transferJSON(bob, 5),
	)
	inv := mustDecode(t, raw)

	payouts, err := Payouts(inv, Context{})
	require.NoError(t, err)
	assert.Equal(t, []PayoutStakers{{Stash: alice, Era: 9}}, payouts)

	transfers, err := Transfers(inv, Context{})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, bob, transfers[0].Dest)

	// A proxy whose real account is unreadable still resolves its call.
	proxied := mustDecode(t, `{"module":"proxy","method":"proxy","args":[{"index":1},null,`+transferJSON(bob, 2)+`]}`)
	transfers, err = Transfers(proxied, Context{})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
}

func TestResolveThroughWrappers(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"plain", transferJSON(bob, 5)},
		{"batch", batchJSON("batch", transferJSON(bob, 5))},
		{"batchAll", batchJSON("batchAll", transferJSON(bob, 5))},
		{"proxy", proxyJSON(transferJSON(bob, 5))},
		{"derivative", derivativeJSON(transferJSON(bob, 5))},
		{"proxy in batch in derivative", derivativeJSON(batchJSON("batch", proxyJSON(transferJSON(bob, 5))))},
		{"announced", fmt.Sprintf(`{"module":"proxy","method":"proxyAnnounced","args":[%q,%q,"Any",%s]}`, bob, alice, transferJSON(bob, 5))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transfers(mustDecode(t, tc.raw), Context{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, bob, got[0].Dest)
			assert.Equal(t, uint64(5), got[0].Value.Uint64())
		})
	}
}

func TestResolveDeepNesting(t *testing.T) {
	raw := payoutJSON(alice, 3)
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			raw = batchJSON("batchAll", raw)
		} else {
			raw = proxyJSON(raw)
		}
	}
	got, err := Payouts(mustDecode(t, raw), Context{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(3), got[0].Era)
}

func TestResolveKeepsOrderAndPath(t *testing.T) {
	raw := batchJSON("batchAll",
		payoutJSON(alice, 1),
		transferJSON(bob, 1),
		batchJSON("batch", payoutJSON(bob, 2), payoutJSON(alice, 3)),
	)
	targets, err := Resolve(mustDecode(t, raw), Context{}, IsPayoutStakers)
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, []int{0}, targets[0].Path)
	assert.Equal(t, []int{2, 0}, targets[1].Path)
	assert.Equal(t, []int{2, 1}, targets[2].Path)
	assert.Equal(t, uint32(3), targets[2].Call.(PayoutStakers).Era)
}

func TestResolveInterruptedBatch(t *testing.T) {
	raw := batchJSON("batch", payoutJSON(alice, 1), payoutJSON(alice, 2), payoutJSON(alice, 3))
	inv := mustDecode(t, raw)

	got, err := Payouts(inv, interrupted(2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Era)
	assert.Equal(t, uint32(2), got[1].Era)

	got, err = Payouts(inv, interrupted(0))
	require.NoError(t, err)
	assert.Empty(t, got)

	// Out of range indexes leave the batch untouched.
	got, err = Payouts(inv, interrupted(9))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestResolveInterruptDoesNotTruncateBatchAll(t *testing.T) {
	raw := batchJSON("batchAll", transferJSON(bob, 1), transferJSON(bob, 2))
	got, err := Transfers(mustDecode(t, raw), interrupted(1))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDepthGuard(t *testing.T) {
	raw := transferJSON(bob, 1)
	for i := 0; i <= MaxDepth; i++ {
		raw = batchJSON("batch", raw)
	}
	_, err := Decode(json.RawMessage(raw))
	require.ErrorIs(t, err, ErrMalformedInvocationTree)

	// Programmatically built trees are guarded by Resolve as well.
	var inv Invocation = Transfer{Name: "transfer", Dest: bob}
	for i := 0; i <= MaxDepth; i++ {
		inv = AsDerivative{Call: inv}
	}
	_, err = Transfers(inv, Context{})
	require.ErrorIs(t, err, ErrMalformedInvocationTree)
}

func batchEvents(ends ...int) Context {
	events := make([]ledger.Event, 0, len(ends))
	for _, at := range ends {
		if at < 0 {
			events = append(events, ledger.Event{Module: "utility", Method: "BatchCompleted"})
			continue
		}
		events = append(events, ledger.Event{
			Module: "utility",
			Method: "BatchInterrupted",
			Data:   []json.RawMessage{json.RawMessage(fmt.Sprint(at)), json.RawMessage(`{}`)},
		})
	}
	return NewContext(events)
}

func stashes(t *testing.T, inv Invocation, ctx Context) []string {
	t.Helper()
	got, err := Payouts(inv, ctx)
	require.NoError(t, err)
	out := make([]string, 0, len(got))
	for _, p := range got {
		out = append(out, p.Stash)
	}
	return out
}

func TestResolveNestedBatchInterruptions(t *testing.T) {
	const charlie = "5FLSigC9HGRKVhB9FiEo4Y3koPsNmBmLJbpXg2mp1hXcS59Y"

	t.Run("inner interruption leaves the outer batch running", func(t *testing.T) {
		inv := mustDecode(t, batchJSON("batch",
			batchJSON("batch", payoutJSON(alice, 1), payoutJSON(bob, 1)),
			payoutJSON(charlie, 1),
		))
		assert.Equal(t, []string{alice, charlie}, stashes(t, inv, batchEvents(1)))
		assert.Equal(t, []string{alice, charlie}, stashes(t, inv, batchEvents(1, -1)))
	})

	t.Run("outer interruption after a completed inner batch", func(t *testing.T) {
		inv := mustDecode(t, batchJSON("batch",
			payoutJSON(alice, 1),
			batchJSON("batch", payoutJSON(bob, 1)),
			payoutJSON(charlie, 1),
		))
		assert.Equal(t, []string{alice, bob}, stashes(t, inv, batchEvents(-1, 2)))
	})

	t.Run("inner batch behind a proxy", func(t *testing.T) {
		inv := mustDecode(t, batchJSON("batch",
			proxyJSON(batchJSON("batch", payoutJSON(alice, 1), payoutJSON(bob, 1))),
			payoutJSON(charlie, 1),
		))
		assert.Equal(t, []string{charlie}, stashes(t, inv, batchEvents(0)))
	})

	t.Run("unparseable interruption is ignored", func(t *testing.T) {
		inv := mustDecode(t, batchJSON("batch", payoutJSON(alice, 1), payoutJSON(bob, 1)))
		ctx := NewContext([]ledger.Event{{Module: "utility", Method: "BatchInterrupted", Data: []json.RawMessage{json.RawMessage(`"x"`)}}})
		assert.Equal(t, []string{alice, bob}, stashes(t, inv, ctx))
	})
}

func TestName(t *testing.T) {
	module, method, err := Name(json.RawMessage(batchJSON("force_batch", transferJSON(bob, 1))))
	require.NoError(t, err)
	assert.Equal(t, "utility", module)
	assert.Equal(t, "force_batch", method)

	_, _, err = Name(json.RawMessage(`[1]`))
	require.Error(t, err)
}
