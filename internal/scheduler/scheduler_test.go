// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"testing"
	"time"

	"school-notify/internal/common/config"
	"school-notify/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.SchedulerConfig
		wantInterval time.Duration
		wantBatch    int
	}{
		{
			name:         "zero config falls back",
			cfg:          config.SchedulerConfig{},
			wantInterval: defaultPollInterval,
			wantBatch:    defaultBatchSize,
		},
		{
			name:         "configured values kept",
			cfg:          config.SchedulerConfig{PollIntervalMs: 5000, BatchSize: 10},
			wantInterval: 5 * time.Second,
			wantBatch:    10,
		},
		{
			name:         "negative values fall back",
			cfg:          config.SchedulerConfig{PollIntervalMs: -1, BatchSize: -1},
			wantInterval: defaultPollInterval,
			wantBatch:    defaultBatchSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, tt.cfg, logger.NewTestLogger(t))
			assert.Equal(t, tt.wantInterval, s.interval)
			assert.Equal(t, tt.wantBatch, s.batch)
		})
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	// interval long enough that no tick fires before cancellation
	s := New(nil, config.SchedulerConfig{PollIntervalMs: 60_000}, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
