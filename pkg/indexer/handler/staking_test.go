package handler

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
	"github.com/canopy-network/payoutx/pkg/ledger"
	"github.com/canopy-network/payoutx/pkg/redis"
	"github.com/canopy-network/payoutx/pkg/rpc"
)

func TestEraPayoutRequiresRecordedEra(t *testing.T) {
	f := newFixture(t)
	b := newBlock(1000)
	err := f.hc.OnEvent(context.Background(), b, addEvent(b, nil, "staking", "EraPaid", args(t, 12, "1000", "0")))

	re, ok := AsReconciliation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "Era", re.Entity)
	assert.Equal(t, "12", re.Key)
	assert.Equal(t, uint64(1000), re.Block)
	f.rpc.AssertNotCalled(t, "ErasRewardPoints", mock.Anything, mock.Anything)
}

func TestEraPayoutSplitsRewardPoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveEra(ctx, &staking.Era{ID: 12, StartBlock: 1}))
	f.rpc.On("ErasRewardPoints", mock.Anything, uint32(12)).Return(&rpc.RewardPoints{
		Total: 100,
		Individual: []rpc.IndividualPoints{
			{Account: alice, Points: 37},
			{Account: bob, Points: 62},
			{Account: charlie, Points: 1},
		},
	}, nil)

	b := newBlock(1000)
	require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "staking", "EraPayout", args(t, 12, "999", "1"))))

	want := map[string]string{alice: "333", bob: "558", charlie: "9"}
	for who, amount := range want {
		p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(12, who))
		require.NoError(t, err)
		assert.Equal(t, amount, p.TotalPayout.Dec(), who)
		assert.False(t, p.IsClaimed)
		assert.Equal(t, uint32(12), p.Era)
		assert.Equal(t, who, p.Validator)
	}
	assert.Equal(t, []string{redis.TopicPayoutCreated}, f.pub.topics())
	assert.Equal(t, "polkadot", f.pub.sent[0].Chain)
}

func TestEraPayoutWithoutPointsWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveEra(ctx, &staking.Era{ID: 2}))
	f.rpc.On("ErasRewardPoints", mock.Anything, uint32(2)).Return(&rpc.RewardPoints{}, nil)

	b := newBlock(10)
	require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "staking", "EraPayout", args(t, 2, "1000"))))
	assert.Equal(t, 0, f.store.Counts()["validator_payouts"])
}

func rewardBlock(t *testing.T, number uint64, signer string, success bool, callJSON string) (*ledger.Block, ledger.Event) {
	b := newBlock(number)
	idx := addTx(b, signer, success, callJSON)
	e := addEvent(b, txIndex(idx), "staking", "Rewarded", args(t, alice, "100"))
	return b, e
}

func TestRewardExplicitClaimIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(7, alice, uint256.NewInt(500))))

	b, e := rewardBlock(t, 2000, bob, true, payoutCall(alice, 7))
	require.NoError(t, f.hc.OnEvent(ctx, b, e))
	once, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(7, alice))
	require.NoError(t, err)
	assert.True(t, once.IsClaimed)
	assert.Equal(t, bob, once.ClaimerID)
	require.NotNil(t, once.ClaimedAtBlock)
	assert.Equal(t, uint64(2000), *once.ClaimedAtBlock)

	require.NoError(t, f.hc.OnEvent(ctx, b, e))
	later := newBlock(2100)
	idx := addTx(later, charlie, true, payoutCall(alice, 7))
	require.NoError(t, f.hc.OnEvent(ctx, later, addEvent(later, txIndex(idx), "staking", "Reward", args(t, alice, "1"))))

	twice, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(7, alice))
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Len(t, f.pub.sent, 1)
}

func TestRewardFallsBackToExposure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveEraValidator(ctx, staking.NewEraValidator(0, alice, uint256.NewInt(1), uint256.NewInt(1), nil)))

	b, e := rewardBlock(t, 30, bob, true, payoutCall(alice, 0))
	require.NoError(t, f.hc.OnEvent(ctx, b, e))

	p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(0, alice))
	require.NoError(t, err)
	assert.True(t, p.IsClaimed)
	assert.Equal(t, "0", p.TotalPayout.Dec())
	assert.Equal(t, bob, p.ClaimerID)
	assert.Equal(t, uint64(30), *p.ClaimedAtBlock)
}

func TestRewardWithoutPayoutOrExposureFails(t *testing.T) {
	f := newFixture(t)
	b, e := rewardBlock(t, 30, bob, true, payoutCall(alice, 4))
	err := f.hc.OnEvent(context.Background(), b, e)
	re, ok := AsReconciliation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "ValidatorPayout", re.Entity)
	assert.Equal(t, staking.PayoutID(4, alice), re.Key)
}

func TestRewardCallShapes(t *testing.T) {
	ctx := context.Background()

	t.Run("timestamp set is ignored", func(t *testing.T) {
		f := newFixture(t)
		b, e := rewardBlock(t, 1, bob, true, `{"module":"timestamp","method":"set","args":[1700000000000]}`)
		require.NoError(t, f.hc.OnEvent(ctx, b, e))
	})

	t.Run("failed transaction is ignored", func(t *testing.T) {
		f := newFixture(t)
		b, e := rewardBlock(t, 1, bob, false, `{"module":"system","method":"remark","args":["0x"]}`)
		require.NoError(t, f.hc.OnEvent(ctx, b, e))
	})

	t.Run("unknown call is a reconciliation error", func(t *testing.T) {
		f := newFixture(t)
		b, e := rewardBlock(t, 1, bob, true, `{"module":"system","method":"remark","args":["0x"]}`)
		re, ok := AsReconciliation(f.hc.OnEvent(ctx, b, e))
		require.True(t, ok)
		assert.Equal(t, "Extrinsic", re.Entity)
		assert.Contains(t, re.Reason, "system.remark")
	})

	t.Run("proxied batch claims every payout", func(t *testing.T) {
		f := newFixture(t)
		for _, v := range []string{alice, charlie} {
			require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(9, v, uint256.NewInt(5))))
		}
		inner := batchCall("batch_all", payoutCall(alice, 9), payoutCall(charlie, 9))
		proxied := `{"module":"proxy","method":"proxy","args":["` + bob + `",null,` + inner + `]}`
		b, e := rewardBlock(t, 77, bob, true, proxied)
		require.NoError(t, f.hc.OnEvent(ctx, b, e))
		for _, v := range []string{alice, charlie} {
			p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(9, v))
			require.NoError(t, err)
			assert.True(t, p.IsClaimed, v)
		}
	})
}

func TestRewardInterruptedBatchClaimsExecutedPrefix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, v := range []string{alice, bob, charlie} {
		require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(9, v, uint256.NewInt(5))))
	}
	b := newBlock(500)
	idx := addTx(b, bob, true, batchCall("batch", payoutCall(alice, 9), payoutCall(bob, 9), payoutCall(charlie, 9)))
	e := addEvent(b, txIndex(idx), "staking", "Rewarded", args(t, alice, "5"))
	addEvent(b, txIndex(idx), "utility", "BatchInterrupted", args(t, 2, map[string]any{"module": "staking"}))

	require.NoError(t, f.hc.OnEvent(ctx, b, e))
	for v, claimed := range map[string]bool{alice: true, bob: true, charlie: false} {
		p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(9, v))
		require.NoError(t, err)
		assert.Equal(t, claimed, p.IsClaimed, v)
	}
}

func TestRewardNestedBatchInterruptsOnlyInnerBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, v := range []string{alice, bob, charlie} {
		require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(9, v, uint256.NewInt(5))))
	}
	b := newBlock(501)
	inner := batchCall("batch", payoutCall(alice, 9), payoutCall(bob, 9))
	idx := addTx(b, bob, true, batchCall("batch", inner, payoutCall(charlie, 9)))
	e := addEvent(b, txIndex(idx), "staking", "Rewarded", args(t, alice, "5"))
	addEvent(b, txIndex(idx), "utility", "BatchInterrupted", args(t, 1, map[string]any{"module": "staking"}))
	addEvent(b, txIndex(idx), "staking", "Rewarded", args(t, charlie, "5"))
	addEvent(b, txIndex(idx), "utility", "BatchCompleted", nil)

	require.NoError(t, f.hc.OnEvent(ctx, b, e))
	for v, claimed := range map[string]bool{alice: true, bob: false, charlie: true} {
		p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(9, v))
		require.NoError(t, err)
		assert.Equal(t, claimed, p.IsClaimed, v)
	}
}

func TestRewardIgnoresUnreadableSiblingCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(9, alice, uint256.NewInt(5))))

	indexDest := `{"module":"balances","method":"transfer","args":[{"index":3},"7"]}`
	b, e := rewardBlock(t, 500, bob, true, batchCall("batchAll", payoutCall(alice, 9), indexDest))
	require.NoError(t, f.hc.OnEvent(ctx, b, e))

	p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(9, alice))
	require.NoError(t, err)
	assert.True(t, p.IsClaimed)
	assert.Equal(t, bob, p.ClaimerID)

	// A lone claim with unreadable arguments settles nothing and does not stop indexing.
	f = newFixture(t)
	b, e = rewardBlock(t, 501, bob, true, `{"module":"staking","method":"payoutStakers","args":["`+alice+`","x"]}`)
	require.NoError(t, f.hc.OnEvent(ctx, b, e))
	assert.Equal(t, 0, f.store.Counts()["validator_payouts"])
}

func TestRewardInUnsignedTransactionIsImplicit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(6, alice, uint256.NewInt(5))))
	f.rpc.On("CurrentEra", mock.Anything).Return(uint32(90), true, nil)
	f.rpc.On("HistoryDepth", mock.Anything).Return(uint32(84), nil)

	b, e := rewardBlock(t, 900, "", true, `{"module":"parachainsInherent","method":"enter","args":[{}]}`)
	require.NoError(t, f.hc.OnEvent(ctx, b, e))

	p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(6, alice))
	require.NoError(t, err)
	assert.True(t, p.IsClaimed)
	assert.Empty(t, p.ClaimerID)
	assert.Equal(t, uint64(900), *p.ClaimedAtBlock)
}

func TestImplicitClaimUsesClaimWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("current era anchor", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(6, alice, uint256.NewInt(5))))
		f.rpc.On("CurrentEra", mock.Anything).Return(uint32(90), true, nil)
		f.rpc.On("HistoryDepth", mock.Anything).Return(uint32(84), nil)

		b := newBlock(900)
		require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "staking", "Rewarded", args(t, alice, "5"))))

		p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(6, alice))
		require.NoError(t, err)
		assert.True(t, p.IsClaimed)
		assert.Empty(t, p.ClaimerID)
		assert.Equal(t, uint64(900), *p.ClaimedAtBlock)
		assert.Equal(t, []string{redis.TopicPayoutClaimed}, f.pub.topics())
	})

	t.Run("active era anchor with offset", func(t *testing.T) {
		f := newFixture(t)
		f.hc.Rewards = config.RewardsConfig{Anchor: config.AnchorActiveEra, Offset: 1}
		require.NoError(t, f.store.SaveValidatorPayout(ctx, staking.NewValidatorPayout(6, alice, uint256.NewInt(5))))
		f.rpc.On("ActiveEra", mock.Anything).Return(uint32(89), true, nil)
		f.rpc.On("HistoryDepth", mock.Anything).Return(uint32(84), nil)

		b := newBlock(900)
		require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "staking", "Rewarded", args(t, alice, "5"))))
		p, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(6, alice))
		require.NoError(t, err)
		assert.True(t, p.IsClaimed)
		f.rpc.AssertNotCalled(t, "CurrentEra", mock.Anything)
	})

	t.Run("missing payout is not an error", func(t *testing.T) {
		f := newFixture(t)
		f.rpc.On("CurrentEra", mock.Anything).Return(uint32(90), true, nil)
		f.rpc.On("HistoryDepth", mock.Anything).Return(uint32(84), nil)

		b := newBlock(900)
		require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "staking", "Rewarded", args(t, alice, "5"))))
		_, err := f.store.GetValidatorPayout(ctx, staking.PayoutID(6, alice))
		assert.True(t, db.IsNotFound(err))
	})

	t.Run("window before genesis", func(t *testing.T) {
		f := newFixture(t)
		f.rpc.On("CurrentEra", mock.Anything).Return(uint32(3), true, nil)
		f.rpc.On("HistoryDepth", mock.Anything).Return(uint32(84), nil)

		b := newBlock(900)
		require.NoError(t, f.hc.OnEvent(ctx, b, addEvent(b, nil, "staking", "Rewarded", args(t, alice, "5"))))
	})
}
