package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// DefaultSweepSchedule removes expired tokens once an hour.
const DefaultSweepSchedule = "@every 1h"

// Sweeper periodically deletes expired tokens. Lookups already reject them;
// sweeping only keeps the table small.
type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     metrics.Recorder
	logger      logging.Logger
	now         func() time.Time

	cron *cron.Cron
}

func NewSweeper(db *sql.DB, m repomanager.RepositoryManager, rec metrics.Recorder, l logging.Logger) *Sweeper {
	return &Sweeper{
		db:          db,
		repomanager: m,
		metrics:     rec,
		logger:      l.With("module", "sweeper"),
		now:         time.Now,
		cron:        cron.New(),
	}
}

// Sweep deletes every token expired at the current time.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Tokens(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storeError(err)
	}
	s.metrics.TokensSwept(n)
	return n, nil
}

// Run schedules Sweep and blocks until ctx is done. An invalid schedule is
// reported before anything starts.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	_, err := s.cron.AddFunc(schedule, func() {
		n, err := s.Sweep(ctx)
		if err != nil {
			s.logger.Error(ctx, "token sweep failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info(ctx, "expired tokens removed", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info(ctx, "token sweeper started", "schedule", schedule)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
