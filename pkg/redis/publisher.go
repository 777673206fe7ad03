package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Topics published for each chain.
const (
	TopicPayoutCreated = "payout.created"
	TopicPayoutClaimed = "payout.claimed"
	TopicTransfer      = "transfer"
	TopicBlockIndexed  = "block.indexed"
)

// Channel returns "<prefix>:<chain>:<topic>". The same name is used for the Pub/Sub channel and
// the stream that backs it.
func Channel(prefix, chain, topic string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, chain, topic)
}

// Notification is the JSON payload published for an indexed entity.
type Notification struct {
	Chain  string          `json:"chain"`
	Topic  string          `json:"topic"`
	Height uint64          `json:"height"`
	Key    string          `json:"key,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sentAt"`
}

// Publisher delivers notifications. Implementations are best effort and never fail the caller.
type Publisher interface {
	Publish(ctx context.Context, n Notification)
}

// NopPublisher drops every notification. It is used when Redis is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Notification) {}

// ChannelPublisher fans each notification out to Pub/Sub and to a capped stream so late
// subscribers can resume from a stream ID.
type ChannelPublisher struct {
	client *Client
	prefix string
}

var _ Publisher = (*ChannelPublisher)(nil)

func NewChannelPublisher(client *Client, prefix string) *ChannelPublisher {
	if prefix == "" {
		prefix = "payoutx"
	}
	return &ChannelPublisher{client: client, prefix: prefix}
}

func (p *ChannelPublisher) Publish(ctx context.Context, n Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		p.client.logger.Warn("Failed to encode notification", zap.String("topic", n.Topic), zap.Error(err))
		return
	}
	channel := Channel(p.prefix, n.Chain, n.Topic)
	p.client.Publish(ctx, channel, payload)
	p.client.XAdd(ctx, channel, map[string]interface{}{
		"height": n.Height,
		"data":   string(payload),
	})
}
