// Package mirror keeps a low-latency copy of recent messages in Redis
// Streams, one stream per conversation. The relational store stays
// authoritative; records carry the authoritative message id so the two can
// be reconciled.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// Record is one stream entry.
type Record struct {
	// ID is the entry id Redis assigned on XADD.
	ID            string
	MessageID     string
	SenderID      string
	Text          string
	Attachments   []models.Attachment
	CreatedAt     time.Time
	DeliveryState models.DeliveryState
	Read          bool
}

// streamClient is the part of redis.Cmdable the mirror uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

type RedisMirror struct {
	client streamClient
	maxLen int64
}

// NewRedisMirror trims each stream to roughly maxLen entries; zero disables
// trimming.
func NewRedisMirror(client streamClient, maxLen int64) *RedisMirror {
	return &RedisMirror{client: client, maxLen: maxLen}
}

func StreamKey(conversationID string) string {
	return "chat:conversations:" + conversationID + ":messages"
}

// Append writes msg to its conversation stream and returns the entry id.
func (m *RedisMirror) Append(ctx context.Context, msg *models.Message) (string, error) {
	atts := msg.Attachments
	if atts == nil {
		atts = []models.Attachment{}
	}
	encoded, err := json.Marshal(atts)
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: StreamKey(msg.ConversationID),
		ID:     "*",
		Values: []any{
			"message_id", msg.ID,
			"sender_id", msg.SenderID,
			"text", msg.Text,
			"attachments", string(encoded),
			"created_at", msg.CreatedAt.UTC().Format(time.RFC3339Nano),
			"delivery_state", string(msg.DeliveryState),
			"read", strconv.FormatBool(msg.Read),
		},
	}
	if m.maxLen > 0 {
		args.MaxLen = m.maxLen
		args.Approx = true
	}

	id, err := m.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// Recent returns up to limit records, newest first.
func (m *RedisMirror) Recent(ctx context.Context, conversationID string, limit int64) ([]Record, error) {
	entries, err := m.client.XRevRangeN(ctx, StreamKey(conversationID), "+", "-", limit).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xrevrange: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, decode(e))
	}
	return out, nil
}

// decode is lenient: a field that does not parse is left at its zero value.
func decode(e redis.XMessage) Record {
	r := Record{
		ID:            e.ID,
		MessageID:     field(e.Values, "message_id"),
		SenderID:      field(e.Values, "sender_id"),
		Text:          field(e.Values, "text"),
		DeliveryState: models.DeliveryState(field(e.Values, "delivery_state")),
	}
	if ts, err := time.Parse(time.RFC3339Nano, field(e.Values, "created_at")); err == nil {
		r.CreatedAt = ts
	}
	if b, err := strconv.ParseBool(field(e.Values, "read")); err == nil {
		r.Read = b
	}
	if raw := field(e.Values, "attachments"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &r.Attachments)
	}
	return r
}

func field(values map[string]any, key string) string {
	switch v := values[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
