package rpc

import (
	"context"
	"encoding/json"

	"github.com/holiman/uint256"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

// Client is the read-only chain-state surface used by the mapping handlers, plus the decoded
// block source and fee collaborator. Point queries are evaluated at the block hash `at`; an
// empty `at` means the best block.
type Client interface {
	ChainHead(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*ledger.Block, error)

	// CurrentEra and ActiveEra report ok=false when the chain has no era yet.
	CurrentEra(ctx context.Context, at string) (era uint32, ok bool, err error)
	ActiveEra(ctx context.Context, at string) (era uint32, ok bool, err error)
	HistoryDepth(ctx context.Context, at string) (uint32, error)
	AccountNonce(ctx context.Context, at, account string) (uint64, error)
	// IdentityOf reports ok=false when the account has no identity record, or the runtime has no
	// identity pallet.
	IdentityOf(ctx context.Context, at, account string) (info json.RawMessage, ok bool, err error)

	ErasStakers(ctx context.Context, at string, era uint32) ([]ValidatorExposure, error)
	ErasRewardPoints(ctx context.Context, at string, era uint32) (*RewardPoints, error)
	SessionValidators(ctx context.Context, at string) ([]string, error)

	// QueryFeeInfo returns the partial fee paid by the transaction encoded as txHex.
	QueryFeeInfo(ctx context.Context, txHex, blockHash string) (*uint256.Int, error)
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) Client {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}
