package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/redis"
)

const wildcard = "*"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var knownTopics = map[string]bool{
	redis.TopicPayoutCreated: true,
	redis.TopicPayoutClaimed: true,
	redis.TopicTransfer:      true,
	redis.TopicBlockIndexed:  true,
	wildcard:                 true,
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Chain  string `json:"chain"`  // chain name, or "*" (default) for all chains
	Topic  string `json:"topic"`  // notification topic, or "*" (default) for all topics
	// Since replays the stream for one chain and topic after this stream ID ("0" for all retained entries).
	Since string `json:"since,omitempty"`
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // a topic, or "subscribed", "unsubscribed", "info", "error"
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload"` // Event-specific data
}

// clientSubscriptions tracks the chain and topic pairs a client is subscribed to.
type clientSubscriptions struct {
	mu   sync.RWMutex
	keys map[string]bool // chain|topic
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{keys: make(map[string]bool)}
}

func subKey(chain, topic string) string { return chain + "|" + topic }

func (cs *clientSubscriptions) subscribe(chain, topic string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.keys[subKey(chain, topic)] = true
}

func (cs *clientSubscriptions) unsubscribe(chain, topic string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.keys, subKey(chain, topic))
}

// isSubscribed matches exact pairs and wildcards on either side.
func (cs *clientSubscriptions) isSubscribed(chain, topic string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.keys[subKey(chain, topic)] ||
		cs.keys[subKey(wildcard, topic)] ||
		cs.keys[subKey(chain, wildcard)] ||
		cs.keys[subKey(wildcard, wildcard)]
}

func (c *Controller) channelPrefix() string {
	if c.Prefix == "" {
		return "payoutx"
	}
	return c.Prefix
}

// HandleWebSocket upgrades HTTP connection to WebSocket and relays indexed notifications.
//
// Protocol:
// Client sends: {"action": "subscribe", "chain": "polkadot", "topic": "payout.claimed"}
// Client sends: {"action": "subscribe", "chain": "polkadot", "topic": "transfer", "since": "0"}
// Client sends: {"action": "unsubscribe", "chain": "polkadot", "topic": "payout.claimed"}
//
// Server sends:
// - {"type": "payout.claimed", "id": "<stream id, replays only>", "payload": {...}}
// - {"type": "subscribed", "payload": {"chain": "polkadot", "topic": "payout.claimed"}}
// - {"type": "unsubscribed", "payload": {...}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.Feed == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	remote := r.RemoteAddr
	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", remote))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newClientSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	c.guarded(&wg, "subscriber", remote, cancel, func() { c.subscribeToFeed(ctx, send, subs) })
	c.guarded(&wg, "ping ticker", remote, cancel, func() { c.sendPings(ctx, conn) })

	var writer sync.WaitGroup
	c.guarded(&writer, "message writer", remote, cancel, func() { c.writeMessages(conn, send) })

	// Blocks until the connection closes.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	cancel()
	wg.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", remote))
}

// guarded runs fn on its own goroutine. A panic is logged and shuts the connection down.
func (c *Controller) guarded(wg *sync.WaitGroup, name, remote string, cancel context.CancelFunc, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in websocket goroutine",
					zap.String("goroutine", name),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", remote))
				cancel()
			}
		}()
		fn()
	}()
}

// subscribeToFeed subscribes to "<prefix>:*:*" and forwards what the client subscribed to.
// A dropped subscription is retried with exponential backoff and jitter; the client is told
// about every retry.
func (c *Controller) subscribeToFeed(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	pattern := redis.Channel(c.channelPrefix(), wildcard, wildcard)

	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	attemptNum := 0

	for {
		if ctx.Err() != nil {
			return
		}
		attemptNum++

		subscriptionErr := c.attemptSubscription(ctx, pattern, send, subs, attemptNum)
		if ctx.Err() != nil {
			return
		}

		if subscriptionErr != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(subscriptionErr),
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		}

		if !trySend(ctx, send, ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attemptNum,
				"recoverable": true,
			},
		}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

// attemptSubscription runs one subscription until it drops. It returns the setup error, nil when
// the channel closed, or the context error.
func (c *Controller) attemptSubscription(
	ctx context.Context,
	pattern string,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
	attemptNum int,
) error {
	msgs, stop, err := c.Feed.Subscribe(ctx, pattern)
	if err != nil {
		return err
	}
	defer func() {
		if err := stop(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	c.App.Logger.Debug("Subscribed to notification pattern",
		zap.String("pattern", pattern),
		zap.Int("attempt", attemptNum))

	if !trySend(ctx, send, ServerMessage{
		Type:    "info",
		Payload: map[string]interface{}{"message": "Redis connection established", "attempt": attemptNum},
	}) {
		return ctx.Err()
	}

	return c.processMessages(ctx, msgs, send, subs)
}

// processMessages forwards subscribed notifications until msgs closes or ctx is cancelled.
func (c *Controller) processMessages(
	ctx context.Context,
	msgs <-chan *goredis.Message,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				return nil
			}

			chain, topic, ok := ParseChannel(msg.Channel)
			if !ok {
				c.App.Logger.Warn("Unexpected notification channel", zap.String("channel", msg.Channel))
				continue
			}
			if !subs.isSubscribed(chain, topic) {
				continue
			}

			var n redis.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			if !trySend(ctx, send, ServerMessage{Type: topic, Payload: n}) {
				return ctx.Err()
			}
		}
	}
}

// replay sends the stream entries for one chain and topic after since, in stream order.
func (c *Controller) replay(ctx context.Context, chain, topic, since string, send chan<- ServerMessage) error {
	entries, err := c.Feed.Replay(ctx, redis.Channel(c.channelPrefix(), chain, topic), since)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		n, err := entry.Notification()
		if err != nil {
			c.App.Logger.Warn("Skipping undecodable stream entry", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		if !trySend(ctx, send, ServerMessage{Type: topic, ID: entry.ID, Payload: n}) {
			return ctx.Err()
		}
	}
	return nil
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// CalculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	// Add jitter: random value between -jitterFactor and +jitterFactor
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}
	return nextWithJitter
}

// ParseChannel splits "<prefix>:<chain>:<topic>".
func ParseChannel(channel string) (chain, topic string, ok bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
// The client will automatically respond with pong frames, which resets the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes messages from the send channel to the WebSocket connection. It keeps
// draining after a write error so producers never block.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	failed := false
	for msg := range send {
		if failed {
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			failed = true
		}
	}
}

// readClientMessages handles subscription requests until the connection closes.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	const readTimeout = 60 * time.Second

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if ctx.Err() != nil {
			return
		}

		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.App.Logger.Debug("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
			cancel()
			return
		}

		if reply, ok := c.handleClientMessage(ctx, msg, subs, send); ok {
			if !trySend(ctx, send, reply) {
				return
			}
		}
	}
}

func clientError(format string, args ...any) ServerMessage {
	return ServerMessage{Type: "error", Payload: map[string]string{"message": fmt.Sprintf(format, args...)}}
}

// handleClientMessage applies one request. Replayed entries are queued after the acknowledgement.
func (c *Controller) handleClientMessage(ctx context.Context, msg ClientMessage, subs *clientSubscriptions, send chan<- ServerMessage) (ServerMessage, bool) {
	if msg.Chain == "" {
		msg.Chain = wildcard
	}
	if msg.Topic == "" {
		msg.Topic = wildcard
	}
	if !knownTopics[msg.Topic] {
		return clientError("unknown topic: %s", msg.Topic), true
	}
	ack := map[string]string{"chain": msg.Chain, "topic": msg.Topic}

	switch msg.Action {
	case "subscribe":
		if msg.Since != "" && (msg.Chain == wildcard || msg.Topic == wildcard) {
			return clientError("since requires a concrete chain and topic"), true
		}
		subs.subscribe(msg.Chain, msg.Topic)
		c.App.Logger.Debug("Client subscribed", zap.String("chain", msg.Chain), zap.String("topic", msg.Topic))
		if !trySend(ctx, send, ServerMessage{Type: "subscribed", Payload: ack}) {
			return ServerMessage{}, false
		}
		if msg.Since != "" {
			if err := c.replay(ctx, msg.Chain, msg.Topic, msg.Since, send); err != nil {
				c.App.Logger.Warn("Stream replay failed", zap.String("since", msg.Since), zap.Error(err))
				return clientError("replay failed"), true
			}
		}
		return ServerMessage{}, false

	case "unsubscribe":
		subs.unsubscribe(msg.Chain, msg.Topic)
		c.App.Logger.Debug("Client unsubscribed", zap.String("chain", msg.Chain), zap.String("topic", msg.Topic))
		return ServerMessage{Type: "unsubscribed", Payload: ack}, true

	default:
		return clientError("unknown action: %s", msg.Action), true
	}
}
