package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const TypeUserDeleted = "user.deleted"

// Event is the flat field set written to the identity stream.
type Event struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	OccurredAt string `json:"occurred_at"`
}

func (e Event) values() map[string]interface{} {
	return map[string]interface{}{
		"type":        e.Type,
		"user_id":     e.UserID,
		"occurred_at": e.OccurredAt,
	}
}

type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

func NewPublisher(client *redis.Client, stream string, now func() time.Time) *Publisher {
	if now == nil {
		now = time.Now
	}
	return &Publisher{client: client, stream: stream, maxLen: 100_000, now: now}
}

func (p *Publisher) PublishUserDeleted(ctx context.Context, userID string) error {
	return p.publish(ctx, Event{
		Type:       TypeUserDeleted,
		UserID:     userID,
		OccurredAt: p.now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(ctx context.Context, event Event) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: event.values(),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", event.Type, err)
	}
	return nil
}
