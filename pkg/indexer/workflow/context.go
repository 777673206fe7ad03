package workflow

import (
	"time"

	"github.com/canopy-network/payoutx/pkg/indexer/activity"
)

type Context struct {
	ActivityContext *activity.Context

	// ContinueAsNewAfter bounds the activities one run schedules before it continues as new.
	ContinueAsNewAfter int
	// PollInterval is the wait between head checks once the workflow caught up.
	PollInterval time.Duration
}

const (
	defaultContinueAsNewAfter = 500
	defaultPollInterval       = 6 * time.Second
)

func (wc *Context) continueAfter() int {
	if wc.ContinueAsNewAfter > 0 {
		return wc.ContinueAsNewAfter
	}
	return defaultContinueAsNewAfter
}

func (wc *Context) pollInterval() time.Duration {
	if wc.PollInterval > 0 {
		return wc.PollInterval
	}
	return defaultPollInterval
}
