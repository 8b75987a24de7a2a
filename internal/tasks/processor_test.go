package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakePurger struct {
	deleteByOwner func(ctx context.Context, ownerID string) (int64, error)
}

func (f *fakePurger) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	return f.deleteByOwner(ctx, ownerID)
}

var _ PostPurger = (*fakePurger)(nil)

func TestHandleUserDeleted(t *testing.T) {
	var got string
	p := NewProcessor(&fakePurger{deleteByOwner: func(_ context.Context, ownerID string) (int64, error) {
		got = ownerID
		return 3, nil
	}}, nil, zerolog.Nop())

	err := p.Handle(context.Background(), redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"type": "user.deleted", "user_id": "u-42", "occurred_at": "2024-05-01T00:00:00Z"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got != "u-42" {
		t.Fatalf("purged owner = %q, want u-42", got)
	}
}

func TestHandlePurgeFailureIsRetried(t *testing.T) {
	p := NewProcessor(&fakePurger{deleteByOwner: func(context.Context, string) (int64, error) {
		return 0, errors.New("connection refused")
	}}, nil, zerolog.Nop())

	err := p.Handle(context.Background(), redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"type": "user.deleted", "user_id": "u-1"},
	})
	if err == nil {
		t.Fatal("expected error so the message stays pending")
	}
}

func TestHandleUnknownTypeIsDropped(t *testing.T) {
	p := NewProcessor(&fakePurger{deleteByOwner: func(context.Context, string) (int64, error) {
		t.Fatal("purger must not be called")
		return 0, nil
	}}, nil, zerolog.Nop())

	err := p.Handle(context.Background(), redis.XMessage{
		ID:     "2-0",
		Values: map[string]interface{}{"type": "user.renamed", "user_id": "u-1"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
}
