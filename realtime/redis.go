package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel shared by all processes.
const DefaultChannel = "ux-interviewer:realtime"

// RedisBroker fans envelopes out through Redis pub/sub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  *zap.SugaredLogger
}

// NewRedisBroker creates a broker from a redis:// URL. It does not connect;
// call Ping to verify the server is reachable.
func NewRedisBroker(redisURL, channel string, logger *zap.SugaredLogger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid message queue URL: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		client:  redis.NewClient(opts),
		channel: channel,
		logger:  logger,
	}, nil
}

// Ping tests the Redis connection
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sends payload to the shared channel.
func (b *RedisBroker) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe listens on the shared channel until ctx is done.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	out := make(chan []byte, sendChannelSize)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	b.logger.Infow("Subscribed to message queue", "channel", b.channel)
	return out, nil
}

// Close closes the Redis connection
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
