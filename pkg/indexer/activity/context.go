package activity

import (
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/indexer/handler"
	"github.com/canopy-network/payoutx/pkg/metrics"
	"github.com/canopy-network/payoutx/pkg/rpc"
)

// ErrTypeReconciliation is the application error type of blocks that violate a ledger invariant.
// Temporal never retries it; the workflow fails at that block.
const ErrTypeReconciliation = "reconciliation_error"

type Context struct {
	Logger  *zap.Logger
	Chain   string
	Handler *handler.Context
	RPC     rpc.Client
	Store   db.CheckpointStore
	Metrics *metrics.IndexerMetrics
}
