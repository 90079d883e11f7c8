package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel is the Redis channel used when none is configured.
const DefaultRelayChannel = "leasing.bookings"

// redisPublisher is satisfied by *redis.Client and redis.UniversalClient.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisRelay forwards topic events to a Redis pub/sub channel so dashboards
// served by other processes see them.
type RedisRelay struct {
	client  redisPublisher
	channel string
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("notify: parse redis url: %w", err)
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("notify: ping redis: %w", err)
	}
	return client, nil
}

// NewRedisRelay creates a relay publishing on channel.
func NewRedisRelay(client redisPublisher, channel string, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_relay", "channel", channel),
		timeout: 2 * time.Second,
	}
}

// Run subscribes to topic and relays events until ctx is cancelled. Publish
// failures are logged and the event is dropped.
func (r *RedisRelay) Run(ctx context.Context, topic *Topic) {
	sub := topic.Subscribe(256)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			if dropped := sub.Dropped(); dropped > 0 {
				r.logger.Warn("relay dropped events", "count", dropped)
			}
			return
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			if err := r.relay(ctx, event); err != nil {
				r.logger.WarnContext(ctx, "relay publish failed", "event_id", event.ID, "type", event.Type, "error", err)
			}
		}
	}
}

func (r *RedisRelay) relay(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, payload).Err()
}
