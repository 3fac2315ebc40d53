package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/counselops/lexbill/internal/clock"
	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	"github.com/counselops/lexbill/internal/kpi/domain"
	"github.com/counselops/lexbill/internal/observability/metrics"
	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
	"github.com/counselops/lexbill/pkg/db/option"
	"github.com/counselops/lexbill/pkg/repository"
)

const monthLayout = "2006-01"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	metrics   *metrics.Metrics
	snapshots repository.Repository[domain.Snapshot]
	entries   repository.Repository[timedomain.TimeEntry]
	invoices  repository.Repository[invoicedomain.Invoice]
	lines     repository.Repository[invoicedomain.Line]
	payments  repository.Repository[paymentdomain.Payment]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("kpi.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		metrics:   p.Metrics,
		snapshots: repository.ProvideStore[domain.Snapshot](p.DB),
		entries:   repository.ProvideStore[timedomain.TimeEntry](p.DB),
		invoices:  repository.ProvideStore[invoicedomain.Invoice](p.DB),
		lines:     repository.ProvideStore[invoicedomain.Line](p.DB),
		payments:  repository.ProvideStore[paymentdomain.Payment](p.DB),
	}
}

func (s *Service) Summary(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	scope, scopeID, err := resolveScope(req.Scope, req.ScopeID)
	if err != nil {
		return domain.Summary{}, err
	}
	w, err := s.window(req)
	if err != nil {
		return domain.Summary{}, err
	}

	ds, err := s.loadDataset(ctx, scope, scopeID, w.To)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("%w: %v", domain.ErrUnresolvableScope, err)
	}

	summary := domain.ComputeSummary(scope, scopeID, w, ds)
	summary.ScopeID = req.ScopeID
	return summary, nil
}

// Trend computes one summary per month over the inclusive month range. A
// month whose rollup fails resolves to zero values rather than failing the
// whole series.
func (s *Service) Trend(ctx context.Context, req domain.TrendRequest) ([]domain.TrendPoint, error) {
	scope, scopeID, err := resolveScope(req.Scope, req.ScopeID)
	if err != nil {
		return nil, err
	}
	from, err := time.Parse(monthLayout, req.FromMonth)
	if err != nil {
		return nil, domain.ErrInvalidMonth
	}
	to, err := time.Parse(monthLayout, req.ToMonth)
	if err != nil {
		return nil, domain.ErrInvalidMonth
	}

	var points []domain.TrendPoint
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		month := m.Format(monthLayout)
		w := domain.Window{From: m, To: m.AddDate(0, 1, 0)}

		summary := domain.Summary{Scope: scope, ScopeID: req.ScopeID, From: w.From, To: w.To}
		ds, err := s.loadDataset(ctx, scope, scopeID, w.To)
		if err != nil {
			s.log.Warn("trend month fell back to zero values",
				zap.String("month", month), zap.Error(err))
		} else {
			summary = domain.ComputeSummary(scope, scopeID, w, ds)
			summary.ScopeID = req.ScopeID
		}
		points = append(points, domain.TrendPoint{Month: month, Summary: summary})
	}
	return points, nil
}

// ComputeAndUpsert materializes one (scope, scopeID, month) snapshot. The
// upsert is keyed on those three columns, so recomputation overwrites the
// prior values instead of duplicating the row.
func (s *Service) ComputeAndUpsert(ctx context.Context, scope domain.Scope, scopeID snowflake.ID, month string) (domain.Snapshot, error) {
	if !scope.Valid() {
		return domain.Snapshot{}, domain.ErrInvalidScope
	}
	if scope != domain.ScopeFirm && scopeID == 0 {
		return domain.Snapshot{}, domain.ErrScopeIDRequired
	}
	start, err := time.Parse(monthLayout, month)
	if err != nil {
		return domain.Snapshot{}, domain.ErrInvalidMonth
	}
	w := domain.Window{From: start, To: start.AddDate(0, 1, 0)}

	ds, err := s.loadDataset(ctx, scope, scopeID, w.To)
	if err != nil {
		return domain.Snapshot{}, err
	}
	summary := domain.ComputeSummary(scope, scopeID, w, ds)

	snap := domain.Snapshot{
		ID:          s.genID.Generate(),
		Scope:       scope,
		ScopeID:     scopeID,
		Month:       month,
		Utilization: summary.Utilization,
		Realization: summary.Realization,
		WIP:         summary.WIP,
		AR:          summary.AR,
		Revenue:     summary.Revenue,
		Invoiced:    summary.Invoiced,
		ComputedAt:  s.clock.Now(),
		CreatedAt:   s.clock.Now(),
		UpdatedAt:   s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}, {Name: "scope_id"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"utilization", "realization", "wip", "ar", "revenue", "invoiced",
			"computed_at", "updated_at",
		}),
	}).Create(&snap).Error
	if err != nil {
		return domain.Snapshot{}, err
	}

	if s.metrics != nil {
		s.metrics.SnapshotsUpserted.Inc()
	}
	return snap, nil
}

// GenerateSnapshots upserts the firm snapshot plus one per user, client and
// case seen in the ledgers for the given month. Each upsert is independently
// idempotent, so an aborted run leaves no inconsistency and the next run
// finishes the job.
func (s *Service) GenerateSnapshots(ctx context.Context, month string) (int, error) {
	if _, err := time.Parse(monthLayout, month); err != nil {
		return 0, domain.ErrInvalidMonth
	}

	targets := []struct {
		scope domain.Scope
		ids   []snowflake.ID
	}{
		{scope: domain.ScopeFirm, ids: []snowflake.ID{0}},
	}

	userIDs, err := s.distinctIDs(ctx, &timedomain.TimeEntry{}, "user_id")
	if err != nil {
		return 0, err
	}
	targets = append(targets, struct {
		scope domain.Scope
		ids   []snowflake.ID
	}{domain.ScopeUser, userIDs})

	clientIDs, err := s.distinctIDs(ctx, &invoicedomain.Invoice{}, "client_id")
	if err != nil {
		return 0, err
	}
	targets = append(targets, struct {
		scope domain.Scope
		ids   []snowflake.ID
	}{domain.ScopeClient, clientIDs})

	caseIDs, err := s.distinctIDs(ctx, &timedomain.TimeEntry{}, "case_id")
	if err != nil {
		return 0, err
	}
	targets = append(targets, struct {
		scope domain.Scope
		ids   []snowflake.ID
	}{domain.ScopeCase, caseIDs})

	count := 0
	for _, t := range targets {
		for _, id := range t.ids {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			if _, err := s.ComputeAndUpsert(ctx, t.scope, id, month); err != nil {
				return count, fmt.Errorf("snapshot %s/%d: %w", t.scope, id, err)
			}
			count++
		}
	}

	s.log.Info("kpi snapshots generated", zap.String("month", month), zap.Int("count", count))
	return count, nil
}

func (s *Service) ListSnapshots(ctx context.Context, req domain.ListSnapshotsRequest) ([]domain.Snapshot, error) {
	opts := []option.QueryOption{option.WithOrder("month DESC, scope ASC")}
	if req.Scope != nil {
		opts = append(opts, option.Where("scope = ?", *req.Scope))
	}
	if req.ScopeID != nil {
		opts = append(opts, option.Where("scope_id = ?", *req.ScopeID))
	}
	if req.Month != nil {
		opts = append(opts, option.Where("month = ?", *req.Month))
	}

	found, err := s.snapshots.Find(ctx, &domain.Snapshot{}, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(found))
	for _, snap := range found {
		out = append(out, *snap)
	}
	return out, nil
}

func (s *Service) GetSnapshot(ctx context.Context, scope domain.Scope, scopeID snowflake.ID, month string) (domain.Snapshot, error) {
	snap, err := s.snapshots.FindOne(ctx,
		&domain.Snapshot{},
		option.Where("scope = ? AND scope_id = ? AND month = ?", scope, scopeID, month),
	)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if snap == nil {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	return *snap, nil
}

// loadDataset fetches the three ledgers narrowed to the scope where the store
// can do it with a plain filter, leaving the rest to the in-memory reduction.
func (s *Service) loadDataset(ctx context.Context, scope domain.Scope, scopeID snowflake.ID, to time.Time) (domain.Dataset, error) {
	var ds domain.Dataset

	entryOpts := []option.QueryOption{option.Where("date < ?", to)}
	switch scope {
	case domain.ScopeUser:
		entryOpts = append(entryOpts, option.Where("user_id = ?", scopeID))
	case domain.ScopeClient:
		entryOpts = append(entryOpts, option.Where("client_id = ?", scopeID))
	case domain.ScopeCase:
		entryOpts = append(entryOpts, option.Where("case_id = ?", scopeID))
	}
	entries, err := s.entries.Find(ctx, &timedomain.TimeEntry{}, entryOpts...)
	if err != nil {
		return ds, err
	}
	for _, e := range entries {
		ds.Entries = append(ds.Entries, *e)
	}

	invOpts := []option.QueryOption{
		option.Where("issue_date <= ?", to),
		option.Where("status <> ?", invoicedomain.StatusVoid),
	}
	switch scope {
	case domain.ScopeClient:
		invOpts = append(invOpts, option.Where("client_id = ?", scopeID))
	case domain.ScopeCase:
		invOpts = append(invOpts, option.Where("case_id = ?", scopeID))
	}
	invoices, err := s.invoices.Find(ctx, &invoicedomain.Invoice{}, invOpts...)
	if err != nil {
		return ds, err
	}
	invoiceIDs := make([]snowflake.ID, 0, len(invoices))
	for _, inv := range invoices {
		ds.Invoices = append(ds.Invoices, *inv)
		invoiceIDs = append(invoiceIDs, inv.ID)
	}
	if len(invoiceIDs) == 0 {
		return ds, nil
	}

	lines, err := s.lines.Find(ctx, &invoicedomain.Line{},
		option.Where("invoice_id IN ?", invoiceIDs))
	if err != nil {
		return ds, err
	}
	var entryIDs []snowflake.ID
	for _, l := range lines {
		ds.Lines = append(ds.Lines, *l)
		if l.TimeEntryID != nil {
			entryIDs = append(entryIDs, *l.TimeEntryID)
		}
	}

	payments, err := s.payments.Find(ctx, &paymentdomain.Payment{},
		option.Where("invoice_id IN ?", invoiceIDs))
	if err != nil {
		return ds, err
	}
	for _, p := range payments {
		ds.Payments = append(ds.Payments, *p)
	}

	if scope == domain.ScopeUser && len(entryIDs) > 0 {
		owners, err := s.entries.Find(ctx, &timedomain.TimeEntry{},
			option.Where("id IN ?", entryIDs))
		if err != nil {
			return ds, err
		}
		ds.EntryOwner = make(map[snowflake.ID]snowflake.ID, len(owners))
		for _, e := range owners {
			ds.EntryOwner[e.ID] = e.UserID
		}
	}
	return ds, nil
}

func (s *Service) distinctIDs(ctx context.Context, model any, column string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Model(model).Distinct(column).Pluck(column, &ids).Error
	return ids, err
}

func (s *Service) window(req domain.SummaryRequest) (domain.Window, error) {
	if req.Month != nil {
		start, err := time.Parse(monthLayout, *req.Month)
		if err != nil {
			return domain.Window{}, domain.ErrInvalidMonth
		}
		return domain.Window{From: start, To: start.AddDate(0, 1, 0)}, nil
	}

	now := s.clock.Now()
	w := domain.Window{
		From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		To:   now,
	}
	if req.From != nil {
		w.From = *req.From
	}
	if req.To != nil {
		w.To = *req.To
	}
	return w, nil
}

func resolveScope(scope domain.Scope, scopeID *snowflake.ID) (domain.Scope, snowflake.ID, error) {
	if scope == "" {
		scope = domain.ScopeFirm
	}
	if !scope.Valid() {
		return "", 0, domain.ErrInvalidScope
	}
	if scope == domain.ScopeFirm {
		return scope, 0, nil
	}
	if scopeID == nil || *scopeID == 0 {
		return "", 0, domain.ErrScopeIDRequired
	}
	return scope, *scopeID, nil
}
