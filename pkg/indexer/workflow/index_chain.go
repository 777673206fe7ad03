package workflow

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/canopy-network/payoutx/pkg/indexer/activity"
	"github.com/canopy-network/payoutx/pkg/indexer/types"
)

const IndexChainWorkflowName = "IndexChainWorkflow"

// IndexChainWorkflow indexes one chain strictly in height order. Block n+1 is never started
// before block n completed, because every handler may read entities the previous block wrote.
// A failing block is retried until it succeeds, except for reconciliation errors, which fail
// the workflow at that height; the next run resumes from the same checkpoint.
func (wc *Context) IndexChainWorkflow(ctx workflow.Context, in types.IndexChainInput) error {
	logger := workflow.GetLogger(ctx)
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        0, // unlimited
			NonRetryableErrorTypes: []string{activity.ErrTypeReconciliation},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	chain := types.ChainInput{Chain: in.Chain}

	next := in.Next
	if next == 0 {
		var last uint64
		if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.GetLastIndexed, chain).Get(ctx, &last); err != nil {
			return err
		}
		next = last + 1
		if in.StartBlock > next {
			next = in.StartBlock
		}
	}

	logger.Info("IndexChain starting", "chain", in.Chain, "next", next, "until", in.Until)

	steps := 0
	for {
		if in.Until > 0 && next > in.Until {
			logger.Info("IndexChain reached target", "chain", in.Chain, "until", in.Until)
			return nil
		}
		if steps >= wc.continueAfter() {
			logger.Info("IndexChain continuing as new", "chain", in.Chain, "next", next)
			return workflow.NewContinueAsNewError(ctx, wc.IndexChainWorkflow, types.IndexChainInput{
				Chain:      in.Chain,
				StartBlock: in.StartBlock,
				Next:       next,
				Until:      in.Until,
			})
		}

		var head uint64
		if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.GetChainHead, chain).Get(ctx, &head); err != nil {
			return err
		}
		steps++

		if next > head {
			if err := workflow.Sleep(ctx, wc.pollInterval()); err != nil {
				return err
			}
			continue
		}

		for ; next <= head && steps < wc.continueAfter(); next++ {
			if in.Until > 0 && next > in.Until {
				break
			}
			var out types.IndexBlockOutput
			input := types.IndexBlockInput{Chain: in.Chain, Height: next}
			if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.IndexBlock, input).Get(ctx, &out); err != nil {
				logger.Error("IndexChain stopped", "chain", in.Chain, "height", next, "error", err)
				return err
			}
			steps++
		}
	}
}
