package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/canopy-network/payoutx/pkg/db/memory"
	"github.com/canopy-network/payoutx/pkg/ledger"
	"github.com/canopy-network/payoutx/pkg/redis"
	"github.com/canopy-network/payoutx/pkg/rpc"
)

const (
	alice   = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob     = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	charlie = "5FLSigC9HGRKVhB9FiEo4Y3koPsNmBmLJbpXg2mp1hXcS59Y"
)

type mockRPC struct {
	mock.Mock
}

var _ rpc.Client = (*mockRPC)(nil)

func (m *mockRPC) ChainHead(context.Context) (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockRPC) BlockByNumber(_ context.Context, number uint64) (*ledger.Block, error) {
	args := m.Called(number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Block), args.Error(1)
}

func (m *mockRPC) CurrentEra(_ context.Context, at string) (uint32, bool, error) {
	args := m.Called(at)
	return args.Get(0).(uint32), args.Bool(1), args.Error(2)
}

func (m *mockRPC) ActiveEra(_ context.Context, at string) (uint32, bool, error) {
	args := m.Called(at)
	return args.Get(0).(uint32), args.Bool(1), args.Error(2)
}

func (m *mockRPC) HistoryDepth(_ context.Context, at string) (uint32, error) {
	args := m.Called(at)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *mockRPC) AccountNonce(_ context.Context, at, account string) (uint64, error) {
	args := m.Called(at, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockRPC) IdentityOf(_ context.Context, at, account string) (json.RawMessage, bool, error) {
	args := m.Called(at, account)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(json.RawMessage), args.Bool(1), args.Error(2)
}

func (m *mockRPC) ErasStakers(_ context.Context, at string, era uint32) ([]rpc.ValidatorExposure, error) {
	args := m.Called(at, era)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rpc.ValidatorExposure), args.Error(1)
}

func (m *mockRPC) ErasRewardPoints(_ context.Context, at string, era uint32) (*rpc.RewardPoints, error) {
	args := m.Called(at, era)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rpc.RewardPoints), args.Error(1)
}

func (m *mockRPC) SessionValidators(_ context.Context, at string) ([]string, error) {
	args := m.Called(at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRPC) QueryFeeInfo(_ context.Context, txHex, blockHash string) (*uint256.Int, error) {
	args := m.Called(txHex, blockHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uint256.Int), args.Error(1)
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []redis.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n redis.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, n := range p.sent {
		out = append(out, n.Topic)
	}
	return out
}

type fixture struct {
	hc    *Context
	store *memory.Store
	rpc   *mockRPC
	pub   *recordingPublisher
}

// newFixture answers every nonce query with 1; tests add the rest.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), rpc: &mockRPC{}, pub: &recordingPublisher{}}
	f.rpc.On("AccountNonce", mock.Anything, mock.Anything).Return(uint64(1), nil)
	f.hc = &Context{
		Logger:      zaptest.NewLogger(t),
		Chain:       "polkadot",
		Store:       f.store,
		RPC:         f.rpc,
		Publisher:   f.pub,
		Parallelism: 4,
	}
	t.Cleanup(f.hc.Close)
	return f
}

func newBlock(number uint64) *ledger.Block {
	return &ledger.Block{
		Number:    number,
		Hash:      fmt.Sprintf("0x%064x", number),
		Timestamp: time.Unix(1700000000+int64(number)*6, 0).UTC(),
	}
}

func args(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		out = append(out, raw)
	}
	return out
}

func txIndex(i uint32) *uint32 { return &i }

// addTx appends a transaction with the given call and returns its index.
func addTx(b *ledger.Block, signer string, success bool, callJSON string) uint32 {
	idx := uint32(len(b.Transactions))
	b.Transactions = append(b.Transactions, ledger.Transaction{
		Index:   idx,
		Hash:    fmt.Sprintf("0xtx%d-%d", b.Number, idx),
		Hex:     fmt.Sprintf("0xhex%d-%d", b.Number, idx),
		Signed:  signer != "",
		Signer:  signer,
		Success: success,
		Call:    json.RawMessage(callJSON),
	})
	return idx
}

func addEvent(b *ledger.Block, tx *uint32, module, method string, data []json.RawMessage) ledger.Event {
	e := ledger.Event{
		Index:   uint32(len(b.Events)),
		Module:  module,
		Method:  method,
		Data:    data,
		TxIndex: tx,
	}
	b.Events = append(b.Events, e)
	return e
}

func payoutCall(stash string, era int) string {
	return fmt.Sprintf(`{"module":"staking","method":"payoutStakers","args":[%q,%d]}`, stash, era)
}

func transferCall(dest string, value int) string {
	return fmt.Sprintf(`{"module":"balances","method":"transfer","args":[{"id":%q},"%d"]}`, dest, value)
}

func batchCall(method string, calls ...string) string {
	joined := ""
	for i, c := range calls {
		if i > 0 {
			joined += ","
		}
		joined += c
	}
	return fmt.Sprintf(`{"module":"utility","method":%q,"args":[[%s]]}`, method, joined)
}
