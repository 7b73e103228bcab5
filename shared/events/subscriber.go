package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, event Event) error

// SubscriberConfig binds a consumer group member to one stream. Zero values
// take the package defaults.
type SubscriberConfig struct {
	Group    string
	Consumer string
	Stream   string
	Handler  Handler

	BatchSize     int64
	BlockDuration time.Duration
	// ReclaimAfter is how long a delivered message may stay unacknowledged
	// before another member of the group takes it over. Negative disables it.
	ReclaimAfter time.Duration
}

// Subscriber consumes a Redis stream through a consumer group. A message is
// acknowledged only after its handler returns nil.
type Subscriber struct {
	client redis.UniversalClient
	cfg    SubscriberConfig
	logger *zap.Logger
}

func NewSubscriber(client redis.UniversalClient, cfg SubscriberConfig, logger *zap.Logger) *Subscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 5 * time.Second
	}
	if cfg.ReclaimAfter == 0 {
		cfg.ReclaimAfter = time.Minute
	}
	return &Subscriber{
		client: client,
		cfg:    cfg,
		logger: logger.With(
			zap.String("stream", cfg.Stream),
			zap.String("group", cfg.Group),
			zap.String("consumer", cfg.Consumer),
		),
	}
}

// Start blocks until ctx is cancelled, creating the group on first use.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}
	s.logger.Info("subscriber started")

	for ctx.Err() == nil {
		if err := s.ReadOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	s.logger.Info("subscriber stopping")
	return ctx.Err()
}

func (s *Subscriber) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ReadOnce handles stale pending messages, then one batch of new ones.
// Messages whose handler fails stay pending.
func (s *Subscriber) ReadOnce(ctx context.Context) error {
	if s.cfg.ReclaimAfter > 0 {
		if err := s.reclaim(ctx); err != nil {
			s.logger.Warn("pending reclaim failed", zap.Error(err))
		}
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.BlockDuration,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.dispatch(ctx, stream.Messages)
	}
	return nil
}

func (s *Subscriber) reclaim(ctx context.Context) error {
	messages, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		MinIdle:  s.cfg.ReclaimAfter,
		Start:    "0-0",
		Count:    s.cfg.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(messages) > 0 {
		s.logger.Info("reclaimed pending messages", zap.Int("count", len(messages)))
	}
	s.dispatch(ctx, messages)
	return nil
}

func (s *Subscriber) dispatch(ctx context.Context, messages []redis.XMessage) {
	for _, msg := range messages {
		event, err := decodeMessage(msg)
		if err == nil {
			err = s.cfg.Handler(ctx, event)
		}
		if err != nil {
			s.logger.Warn("event handling failed", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID).Err(); err != nil {
			s.logger.Warn("failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
}

func decodeMessage(msg redis.XMessage) (Event, error) {
	var event Event
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return event, fmt.Errorf("message %s has no event field", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
