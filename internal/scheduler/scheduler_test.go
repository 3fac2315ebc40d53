package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/counselops/lexbill/internal/clock"
	"github.com/counselops/lexbill/internal/config"
	kpidomain "github.com/counselops/lexbill/internal/kpi/domain"
)

type fakeKpiService struct {
	mu     sync.Mutex
	months []string
}

func (f *fakeKpiService) GenerateSnapshots(ctx context.Context, month string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.months = append(f.months, month)
	return 1, nil
}

func (f *fakeKpiService) Summary(ctx context.Context, req kpidomain.SummaryRequest) (kpidomain.Summary, error) {
	return kpidomain.Summary{}, nil
}

func (f *fakeKpiService) Trend(ctx context.Context, req kpidomain.TrendRequest) ([]kpidomain.TrendPoint, error) {
	return nil, nil
}

func (f *fakeKpiService) ComputeAndUpsert(ctx context.Context, scope kpidomain.Scope, scopeID snowflake.ID, month string) (kpidomain.Snapshot, error) {
	return kpidomain.Snapshot{}, nil
}

func (f *fakeKpiService) ListSnapshots(ctx context.Context, req kpidomain.ListSnapshotsRequest) ([]kpidomain.Snapshot, error) {
	return nil, nil
}

func (f *fakeKpiService) GetSnapshot(ctx context.Context, scope kpidomain.Scope, scopeID snowflake.ID, month string) (kpidomain.Snapshot, error) {
	return kpidomain.Snapshot{}, nil
}

func (f *fakeKpiService) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.months...)
}

func newScheduler(t *testing.T, interval string, svc kpidomain.Service) (*Scheduler, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFakeClock(time.Date(2026, 8, 10, 3, 0, 0, 0, time.UTC))
	sched := New(Params{
		Config: config.Config{SnapshotInterval: interval},
		Log:    zap.NewNop(),
		Clock:  fake,
		KpiSvc: svc,
	})
	return sched, fake
}

func TestRunOnce_CoversCurrentAndPreviousMonth(t *testing.T) {
	svc := &fakeKpiService{}
	sched, _ := newScheduler(t, "1h", svc)
	require.True(t, sched.Enabled())

	sched.RunOnce(context.Background())
	assert.Equal(t, []string{"2026-07", "2026-08"}, svc.seen())
}

func TestNew_InvalidIntervalDisables(t *testing.T) {
	sched, _ := newScheduler(t, "often", &fakeKpiService{})
	assert.False(t, sched.Enabled())

	sched, _ = newScheduler(t, "", &fakeKpiService{})
	assert.False(t, sched.Enabled())
}
