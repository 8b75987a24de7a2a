package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/metrics"
)

type SessionPruner interface {
	PruneIndexes(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	pruner   SessionPruner
	schedule string
	metrics  metrics.Recorder
	log      zerolog.Logger
}

func NewScheduler(pruner SessionPruner, schedule string, recorder metrics.Recorder, log zerolog.Logger) *Scheduler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		pruner:   pruner,
		schedule: schedule,
		metrics:  recorder,
		log:      log,
	}
}

// Start registers the maintenance jobs. An empty schedule disables pruning.
func (s *Scheduler) Start() error {
	if s.pruner == nil || s.schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.pruneSessions); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for a running job to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) pruneSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.pruner.PruneIndexes(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("prune session indexes failed")
		return
	}
	s.metrics.RecordSessionsPruned(n)
	s.log.Info().Int("pruned", n).Msg("session indexes pruned")
}
