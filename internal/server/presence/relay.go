package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/redis/go-redis/v9"
)

const DefaultRelayChannel = "carenest:presence"

// RedisRelay fans broadcasts out over Redis pub/sub so every instance
// delivers to its own sockets.
type RedisRelay struct {
	channel   string
	publish   func(ctx context.Context, channel string, payload []byte) error
	subscribe func(ctx context.Context, channel string) (<-chan *redis.Message, func() error)
	logger    logging.Logger
}

func NewRedisRelay(client *redis.Client, channel string, logger logging.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		channel: channel,
		publish: func(ctx context.Context, channel string, payload []byte) error {
			return client.Publish(ctx, channel, payload).Err()
		},
		subscribe: func(ctx context.Context, channel string) (<-chan *redis.Message, func() error) {
			ps := client.Subscribe(ctx, channel)
			return ps.Channel(), ps.Close
		},
		logger: logger.With("module", "presence_relay"),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, b Broadcast) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := r.publish(ctx, r.channel, payload); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Subscribe blocks, handing every decoded broadcast to deliver, until ctx
// is done or the subscription closes.
func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(Broadcast)) error {
	ch, closeFn := r.subscribe(ctx, r.channel)
	defer func() { _ = closeFn() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var b Broadcast
			if err := json.Unmarshal([]byte(msg.Payload), &b); err != nil {
				r.logger.Warn(ctx, "bad relay payload", "error", err)
				continue
			}
			deliver(b)
		}
	}
}
