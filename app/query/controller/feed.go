package controller

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/canopy-network/payoutx/pkg/redis"
)

// replayLimit caps how many stream entries one subscribe request can replay.
const replayLimit = 500

// Feed is the source of published notifications behind /ws.
type Feed interface {
	// Subscribe opens a pattern subscription. msgs is closed when the subscription drops; stop
	// releases it.
	Subscribe(ctx context.Context, pattern string) (msgs <-chan *goredis.Message, stop func() error, err error)
	// Replay returns entries of the stream backing channel published after the stream ID since.
	Replay(ctx context.Context, channel, since string) ([]redis.Message, error)
}

type redisFeed struct {
	client *redis.Client
}

// NewRedisFeed serves live notifications from Pub/Sub and replays from the capped streams.
func NewRedisFeed(client *redis.Client) Feed {
	return &redisFeed{client: client}
}

func (f *redisFeed) Subscribe(ctx context.Context, pattern string) (<-chan *goredis.Message, func() error, error) {
	pubsub := f.client.PSubscribe(ctx, pattern)

	// Wait for confirmation of subscription with timeout
	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()

	if _, err := pubsub.Receive(receiveCtx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}
	return pubsub.Channel(), pubsub.Close, nil
}

func (f *redisFeed) Replay(ctx context.Context, channel, since string) ([]redis.Message, error) {
	return f.client.ReadSince(ctx, channel, since, replayLimit)
}
