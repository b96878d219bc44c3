// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"school-notify/internal/common/config"
	"school-notify/internal/common/logger"
	"school-notify/internal/engine"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultBatchSize    = 50
)

// Scheduler polls for scheduled notifications whose time has arrived and
// for pre-sent notifications past their expiry, and drives both through the
// engine. One instance per process; due rows are claimed by the status flip
// to sending before dispatch starts.
type Scheduler struct {
	engine   *engine.Engine
	interval time.Duration
	batch    int
	logger   logger.Logger
	done     chan struct{}
}

func New(eng *engine.Engine, cfg config.SchedulerConfig, log logger.Logger) *Scheduler {
	interval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = defaultPollInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Scheduler{
		engine:   eng,
		interval: interval,
		batch:    batch,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
		done:     make(chan struct{}),
	}
}

// Run polls until ctx is cancelled. It blocks; start it in its own
// goroutine and use Wait for shutdown.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	s.logger.Info("scheduler started", map[string]interface{}{
		"pollInterval": s.interval.String(),
		"batchSize":    s.batch,
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", nil)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Wait blocks until a cancelled Run has returned, including any dispatch
// that was mid-flight when the context was cancelled.
func (s *Scheduler) Wait() {
	<-s.done
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	if expired := s.engine.ExpireDue(ctx, now, s.batch); expired > 0 {
		s.logger.Info("notifications expired", map[string]interface{}{"count": expired})
	}

	if dispatched := s.engine.DispatchDue(ctx, now, s.batch); dispatched > 0 {
		s.logger.Info("scheduled notifications dispatched", map[string]interface{}{"count": dispatched})
	}
}
