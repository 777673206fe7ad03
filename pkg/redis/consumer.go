package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Message represents a single stream entry with parsed fields.
type Message struct {
	// ID is the Redis stream entry ID (e.g., "1234567890123-0").
	ID string

	// Stream is the stream name this message came from.
	Stream string

	// Values contains the entry fields as key-value pairs.
	Values map[string]interface{}
}

func toMessages(streams []redis.XStream) []Message {
	var messages []Message
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			messages = append(messages, Message{
				ID:     xmsg.ID,
				Stream: stream.Stream,
				Values: xmsg.Values,
			})
		}
	}
	return messages
}

// GetData is a helper to extract the "data" field from a message.
// Returns nil if not found.
func (m *Message) GetData() []byte {
	if data, ok := m.Values["data"].(string); ok {
		return []byte(data)
	}
	if data, ok := m.Values["data"].([]byte); ok {
		return data
	}
	return nil
}

// Notification decodes the "data" field.
func (m *Message) Notification() (Notification, error) {
	var n Notification
	data := m.GetData()
	if data == nil {
		return n, errors.New("message has no data field")
	}
	err := json.Unmarshal(data, &n)
	return n, err
}

// ReadSince returns up to count entries of stream after the given ID without blocking.
func (c *Client) ReadSince(ctx context.Context, stream, since string, count int64) ([]Message, error) {
	if since == "" {
		since = "0"
	}
	streams, err := c.XRead(ctx, stream, since, count, -1)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return toMessages(streams), nil
}
