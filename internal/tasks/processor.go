package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/events"
	"github.com/ekrsw/microservice/internal/metrics"
)

type PostPurger interface {
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Processor applies identity events to the posts store.
type Processor struct {
	posts   PostPurger
	metrics metrics.Recorder
	logger  zerolog.Logger
}

func NewProcessor(posts PostPurger, recorder metrics.Recorder, logger zerolog.Logger) *Processor {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Processor{
		posts:   posts,
		metrics: recorder,
		logger:  logger,
	}
}

// Handle returns an error only for failures worth retrying; malformed and
// unknown events are logged and dropped.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var event events.Event
	if err := decodePayload(msg.Values, &event); err != nil {
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable event")
		p.metrics.RecordEventProcessed("invalid", metrics.OutcomeFailure)
		return nil
	}

	var err error
	switch event.Type {
	case events.TypeUserDeleted:
		err = p.handleUserDeleted(ctx, event)
	default:
		p.logger.Warn().Str("type", event.Type).Str("message_id", msg.ID).Msg("unknown event type")
		return nil
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	p.metrics.RecordEventProcessed(event.Type, outcome)
	return err
}

func decodePayload(values map[string]interface{}, out *events.Event) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleUserDeleted(ctx context.Context, event events.Event) error {
	if event.UserID == "" {
		return errors.New("user.deleted without user_id")
	}
	n, err := p.posts.DeleteByOwner(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("purge posts of %s: %w", event.UserID, err)
	}
	p.logger.Info().Str("user_id", event.UserID).Int64("posts_deleted", n).Msg("user.deleted applied")
	return nil
}
