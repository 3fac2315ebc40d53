package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/counselops/lexbill/internal/clock"
	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
	"github.com/counselops/lexbill/internal/state"
	timeentrydomain "github.com/counselops/lexbill/internal/timeentry/domain"
	"github.com/counselops/lexbill/pkg/db/option"
	"github.com/counselops/lexbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	RateCardSvc ratecarddomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	rateCardSvc ratecarddomain.Service
	repo        repository.Repository[timeentrydomain.TimeEntry]
}

func NewService(p Params) timeentrydomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("timeentry.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		rateCardSvc: p.RateCardSvc,
		repo:        repository.ProvideStore[timeentrydomain.TimeEntry](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req timeentrydomain.CreateRequest) (timeentrydomain.TimeEntry, error) {
	if req.CaseID == 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrMissingCase
	}
	if req.ClientID == 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrMissingClient
	}
	if req.UserID == 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrMissingUser
	}
	if strings.TrimSpace(req.Narrative) == "" {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrMissingNarrative
	}
	if req.BillableMinutes < 0 || req.NonbillableMinutes < 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrNegativeMinutes
	}
	if req.Amount != nil && *req.Amount < 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrNegativeAmount
	}

	now := s.clock.Now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}

	rate := req.RateApplied
	if rate == nil {
		resolution, err := s.rateCardSvc.Resolve(ctx, ratecarddomain.ResolveRequest{
			UserID:       req.UserID,
			CaseID:       &req.CaseID,
			ActivityCode: req.ActivityCode,
			At:           &date,
		})
		if err != nil {
			return timeentrydomain.TimeEntry{}, err
		}
		if resolution.Source != nil {
			rate = &resolution.RatePerHour
		}
	}

	amount := timeentrydomain.ComputeAmount(rate, req.BillableMinutes)
	if req.Amount != nil {
		amount = *req.Amount
	}

	entry := timeentrydomain.TimeEntry{
		ID:                 s.genID.Generate(),
		CaseID:             req.CaseID,
		ClientID:           req.ClientID,
		UserID:             req.UserID,
		ActivityCode:       req.ActivityCode,
		Narrative:          req.Narrative,
		BillableMinutes:    req.BillableMinutes,
		NonbillableMinutes: req.NonbillableMinutes,
		RateApplied:        rate,
		Amount:             amount,
		Date:               date,
		Status:             timeentrydomain.StatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		return timeentrydomain.TimeEntry{}, err
	}
	return entry, nil
}

func (s *Service) Update(ctx context.Context, id string, req timeentrydomain.UpdateRequest) (timeentrydomain.TimeEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return timeentrydomain.TimeEntry{}, err
	}
	if !entry.Editable() {
		return timeentrydomain.TimeEntry{}, state.NewError("time entry", entry.ID.String(),
			[]string{string(timeentrydomain.StatusDraft), string(timeentrydomain.StatusSubmitted)},
			string(entry.Status))
	}

	if req.BillableMinutes != nil && *req.BillableMinutes < 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrNegativeMinutes
	}
	if req.NonbillableMinutes != nil && *req.NonbillableMinutes < 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrNegativeMinutes
	}
	if req.Amount != nil && *req.Amount < 0 {
		return timeentrydomain.TimeEntry{}, timeentrydomain.ErrNegativeAmount
	}

	if req.ActivityCode != nil {
		entry.ActivityCode = req.ActivityCode
	}
	if req.Narrative != nil {
		if strings.TrimSpace(*req.Narrative) == "" {
			return timeentrydomain.TimeEntry{}, timeentrydomain.ErrMissingNarrative
		}
		entry.Narrative = *req.Narrative
	}
	if req.BillableMinutes != nil {
		entry.BillableMinutes = *req.BillableMinutes
	}
	if req.NonbillableMinutes != nil {
		entry.NonbillableMinutes = *req.NonbillableMinutes
	}
	if req.RateApplied != nil {
		entry.RateApplied = req.RateApplied
	}
	if req.Date != nil {
		entry.Date = req.Date.UTC()
	}

	// Recompute the amount when minutes or rate change without an explicit
	// override; an explicit amount always wins.
	switch {
	case req.Amount != nil:
		entry.Amount = *req.Amount
	case req.BillableMinutes != nil || req.RateApplied != nil:
		entry.Amount = timeentrydomain.ComputeAmount(entry.RateApplied, entry.BillableMinutes)
	}

	entry.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(entry).Error; err != nil {
		return timeentrydomain.TimeEntry{}, err
	}
	return *entry, nil
}

func (s *Service) Get(ctx context.Context, id string) (timeentrydomain.TimeEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return timeentrydomain.TimeEntry{}, err
	}
	return *entry, nil
}

func (s *Service) List(ctx context.Context, req timeentrydomain.ListRequest) ([]timeentrydomain.TimeEntry, error) {
	filter := &timeentrydomain.TimeEntry{}
	if req.UserID != nil {
		filter.UserID = *req.UserID
	}
	if req.ClientID != nil {
		filter.ClientID = *req.ClientID
	}
	if req.CaseID != nil {
		filter.CaseID = *req.CaseID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	opts := []option.QueryOption{option.WithOrder("date DESC, created_at DESC")}
	if req.From != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "date", Operator: option.GTE, Value: req.From.UTC()}))
	}
	if req.To != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "date", Operator: option.LTE, Value: req.To.UTC()}))
	}
	if req.Query != nil && strings.TrimSpace(*req.Query) != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(*req.Query)) + "%"
		opts = append(opts, option.Where("LOWER(narrative) LIKE ?", pattern))
	}

	items, err := s.repo.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	entries := make([]timeentrydomain.TimeEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}
	return entries, nil
}

func (s *Service) Submit(ctx context.Context, id string) (timeentrydomain.TimeEntry, error) {
	return s.transition(ctx, id, []timeentrydomain.Status{timeentrydomain.StatusDraft}, timeentrydomain.StatusSubmitted)
}

func (s *Service) Approve(ctx context.Context, id string) (timeentrydomain.TimeEntry, error) {
	return s.transition(ctx, id, []timeentrydomain.Status{timeentrydomain.StatusSubmitted}, timeentrydomain.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, id string) (timeentrydomain.TimeEntry, error) {
	return s.transition(ctx, id,
		[]timeentrydomain.Status{timeentrydomain.StatusSubmitted, timeentrydomain.StatusApproved},
		timeentrydomain.StatusRejected)
}

// transition moves an entry between workflow states. Monetary fields are
// never touched here.
func (s *Service) transition(ctx context.Context, id string, from []timeentrydomain.Status, to timeentrydomain.Status) (timeentrydomain.TimeEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return timeentrydomain.TimeEntry{}, err
	}

	allowed := false
	expected := make([]string, 0, len(from))
	for _, st := range from {
		expected = append(expected, string(st))
		if entry.Status == st {
			allowed = true
		}
	}
	if !allowed {
		return timeentrydomain.TimeEntry{}, state.NewError("time entry", entry.ID.String(), expected, string(entry.Status))
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&timeentrydomain.TimeEntry{}).
		Where("id = ? AND status = ?", entry.ID, entry.Status).
		Updates(map[string]any{"status": to, "updated_at": now})
	if res.Error != nil {
		return timeentrydomain.TimeEntry{}, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent transition won the race. Reload so the error
		// reports the state the entry is actually in.
		current, err := s.load(ctx, id)
		if err != nil {
			return timeentrydomain.TimeEntry{}, err
		}
		return timeentrydomain.TimeEntry{}, state.NewError("time entry", current.ID.String(), expected, string(current.Status))
	}

	entry.Status = to
	entry.UpdatedAt = now
	return *entry, nil
}

func (s *Service) load(ctx context.Context, id string) (*timeentrydomain.TimeEntry, error) {
	entryID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, timeentrydomain.ErrTimeEntryNotFound
	}
	entry, err := s.repo.FindOne(ctx, &timeentrydomain.TimeEntry{ID: entryID})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, timeentrydomain.ErrTimeEntryNotFound
	}
	return entry, nil
}
