package events

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/events/bus"
)

// RunCounts is a point-in-time tally of run lifecycle events.
type RunCounts struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Abandoned int64 `json:"abandoned"`
}

// RunStats subscribes to the run lifecycle subjects, counts outcomes and logs
// every finished run. A nil *RunStats reports zero counts.
type RunStats struct {
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64

	sub    bus.Subscription
	logger *logger.Logger
}

// WatchRuns subscribes to <prefix>.run.* on eventBus.
func WatchRuns(eventBus bus.EventBus, prefix string, log *logger.Logger) (*RunStats, error) {
	s := &RunStats{logger: log.WithFields(zap.String("component", "run-stats"))}
	subject := Subject(prefix, "run.*")
	sub, err := eventBus.Subscribe(subject, s.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.sub = sub
	return s, nil
}

func (s *RunStats) handle(_ context.Context, e *bus.Event) error {
	log := s.logger.WithRunID(e.RunID)
	switch e.Type {
	case RunStarted:
		s.started.Add(1)
		return nil
	case RunCompleted:
		s.completed.Add(1)
		log.Info("Run completed", zap.Int("events", e.Int("events")))
	case RunFailed:
		s.failed.Add(1)
		log.Warn("Run failed", zap.Int("events", e.Int("events")), zap.String("error", e.Str("error")))
	case RunAbandoned:
		s.abandoned.Add(1)
		log.Warn("Run abandoned", zap.Int("events", e.Int("events")), zap.String("error", e.Str("error")))
	default:
		log.Debug("Ignoring unknown run event", zap.String("type", e.Type))
	}
	return nil
}

// Snapshot returns the current counts.
func (s *RunStats) Snapshot() RunCounts {
	if s == nil {
		return RunCounts{}
	}
	return RunCounts{
		Started:   s.started.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Abandoned: s.abandoned.Load(),
	}
}

// Stop removes the subscription.
func (s *RunStats) Stop() error {
	if s == nil || s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
