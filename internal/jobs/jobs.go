// Package jobs runs periodic maintenance on a cron schedule
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/lakestack/hometrace/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner repairs appointments that predate the preferred-date rules
type Cleaner interface {
	CleanupLegacy(ctx context.Context) (models.CleanupResult, error)
}

// Scheduler wraps a cron runner
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func New(loc *time.Location, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		log:  log.Named("jobs"),
	}
}

// Add registers fn under a standard five-field cron spec
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, s.wrap(name, fn, timeout))
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) wrap(name string, fn func(ctx context.Context) error, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Info("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

// CleanupJob adapts a Cleaner to Add
func CleanupJob(c Cleaner) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := c.CleanupLegacy(ctx)
		return err
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs or until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("jobs still running at shutdown")
	}
}
