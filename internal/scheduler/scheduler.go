// Package scheduler runs the periodic KPI snapshot batch.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/counselops/lexbill/internal/clock"
	"github.com/counselops/lexbill/internal/config"
	kpidomain "github.com/counselops/lexbill/internal/kpi/domain"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	KpiSvc kpidomain.Service
}

type Scheduler struct {
	interval time.Duration
	log      *zap.Logger
	clock    clock.Clock
	kpiSvc   kpidomain.Service
}

// New builds the snapshot scheduler. A zero interval (unset or unparsable
// config) disables it.
func New(p Params) *Scheduler {
	var interval time.Duration
	if p.Config.SnapshotInterval != "" {
		parsed, err := time.ParseDuration(p.Config.SnapshotInterval)
		if err != nil {
			p.Log.Warn("invalid snapshot interval, scheduler disabled",
				zap.String("value", p.Config.SnapshotInterval), zap.Error(err))
		} else {
			interval = parsed
		}
	}
	return &Scheduler{
		interval: interval,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		kpiSvc:   p.KpiSvc,
	}
}

// Enabled reports whether the scheduler will run.
func (s *Scheduler) Enabled() bool { return s.interval > 0 }

// RunForever ticks until the context is canceled. Every snapshot upsert is
// idempotent, so a run interrupted by shutdown is simply completed by the
// next one.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce regenerates snapshots for the current and previous month. The
// previous month is included so payments that land after month end still
// settle into the closed month's numbers.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.clock.Now()
	months := []string{
		now.AddDate(0, -1, 0).Format("2006-01"),
		now.Format("2006-01"),
	}

	for _, month := range months {
		count, err := s.kpiSvc.GenerateSnapshots(ctx, month)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("snapshot batch failed",
				zap.String("month", month), zap.Int("completed", count), zap.Error(err))
			continue
		}
		s.log.Info("snapshot batch complete",
			zap.String("month", month), zap.Int("count", count))
	}
}
