// Package events carries recording status changes across process boundaries.
// The worker daemon publishes to Redis pub/sub; the websocket gateway
// subscribes and fans out to connected clients. Events are fire-and-forget
// signals, not state: the recording store stays the source of truth and a
// missed event is recovered by re-reading it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"recast/internal/config"
	"recast/internal/recording"
)

// Pub/sub channel names shared by publisher and gateway.
const (
	UpdateChannel = "recast:status:update"
	ErrorChannel  = "recast:status:error"
)

// StatusEvent is one cross-process status notification.
type StatusEvent struct {
	RecordingID string           `json:"recording_id"`
	Status      recording.Status `json:"status"`
	Step        recording.Step   `json:"step"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Publisher delivers status events. Implementations must not block pipeline
// progress on delivery problems.
type Publisher interface {
	PublishUpdate(ctx context.Context, event StatusEvent) error
	PublishError(ctx context.Context, event StatusEvent) error
	Close() error
}

// RedisPublisher publishes events over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg *config.Config) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	return &RedisPublisher{client: client}, nil
}

// PublishUpdate sends a status event on the update channel.
func (p *RedisPublisher) PublishUpdate(ctx context.Context, event StatusEvent) error {
	return p.publish(ctx, UpdateChannel, event)
}

// PublishError sends a failure event on the error channel.
func (p *RedisPublisher) PublishError(ctx context.Context, event StatusEvent) error {
	return p.publish(ctx, ErrorChannel, event)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, event StatusEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NoopPublisher drops every event. Used when no Redis address is configured
// and in tests that don't observe the broadcast side.
type NoopPublisher struct{}

func (NoopPublisher) PublishUpdate(context.Context, StatusEvent) error { return nil }
func (NoopPublisher) PublishError(context.Context, StatusEvent) error  { return nil }
func (NoopPublisher) Close() error                                     { return nil }

// NewPublisher picks the Redis publisher when an address is configured and
// the noop publisher otherwise.
func NewPublisher(ctx context.Context, cfg *config.Config) (Publisher, error) {
	if cfg.Redis.Addr == "" {
		return NoopPublisher{}, nil
	}
	return NewRedisPublisher(ctx, cfg)
}
