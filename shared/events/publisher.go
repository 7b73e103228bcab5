package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// maxStreamLen caps each stream so Redis memory stays bounded.
const maxStreamLen = 100000

type Publisher struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client, now: time.Now}
}

// Publish wraps data in an Event envelope and appends it to stream.
func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	payload, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: p.now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{"event": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", eventType, stream, err)
	}
	return nil
}
