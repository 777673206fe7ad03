package indexer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/indexer/types"
	"github.com/canopy-network/payoutx/pkg/indexer/workflow"
	"github.com/canopy-network/payoutx/pkg/temporal"
)

// WorkflowStarter is the part of client.Client the scheduler needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// SetupScheduler registers the cron job that keeps the chain workflow running. spec has a
// seconds field.
func (a *App) SetupScheduler(ctx context.Context, spec string, starter WorkflowStarter) error {
	logger := cronLogger{a.Logger.Named("cron").Sugar()}
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := a.Cron.AddFunc(spec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := a.EnsureWorkflow(rctx, starter); err != nil {
			a.Logger.Warn("unable to start the chain workflow", zap.Error(err))
		}
	})
	return err
}

// EnsureWorkflow starts IndexChainWorkflow unless it is already running.
func (a *App) EnsureWorkflow(ctx context.Context, starter WorkflowStarter) error {
	chain := a.Config.Chain.Name
	opts := client.StartWorkflowOptions{
		ID:                                       a.TemporalClient.GetIndexChainWorkflowID(chain),
		TaskQueue:                                a.TemporalClient.GetIndexerQueue(chain),
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	in := types.IndexChainInput{Chain: chain, StartBlock: a.Config.Chain.StartBlock}
	run, err := starter.ExecuteWorkflow(ctx, opts, workflow.IndexChainWorkflowName, in)
	if err != nil {
		if temporal.IsAlreadyStarted(err) {
			a.Logger.Debug("chain workflow already running", zap.String("workflowId", opts.ID))
			return nil
		}
		return err
	}
	a.Logger.Info("chain workflow started",
		zap.String("workflowId", run.GetID()),
		zap.String("runId", run.GetRunID()),
		zap.Uint64("startBlock", in.StartBlock))
	return nil
}

func (a *App) StartCron() {
	if a.Cron == nil {
		return
	}
	a.Cron.Start()
	a.Logger.Info("Cron started", zap.String("cronSpec", a.Config.Scheduler.Spec))
}

func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// cronLogger routes robfig/cron logging through zap.
type cronLogger struct{ *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
