package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/counselops/lexbill/internal/clock"
	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
	"github.com/counselops/lexbill/pkg/db/option"
	"github.com/counselops/lexbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[ratecarddomain.RateCard]
}

func NewService(p Params) ratecarddomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ratecard.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[ratecarddomain.RateCard](p.DB),
	}
}

// comboFilter is one level of the resolution cascade. Fields left nil are
// not constrained, mirroring how each lookup level only narrows by the
// dimensions it names.
type comboFilter struct {
	caseID       *snowflake.ID
	activityCode *string
}

// Resolve walks the precedence cascade from most to least specific:
// (user, case, activity) → (user, case) → (user, activity) → (user).
// Within a level the newest EffectiveFrom wins.
func (s *Service) Resolve(ctx context.Context, req ratecarddomain.ResolveRequest) (ratecarddomain.Resolution, error) {
	if req.UserID == 0 {
		return ratecarddomain.Resolution{}, ratecarddomain.ErrInvalidUser
	}

	at := s.clock.Now()
	if req.At != nil {
		at = req.At.UTC()
	}

	combos := []comboFilter{
		{caseID: req.CaseID, activityCode: req.ActivityCode},
		{caseID: req.CaseID},
		{activityCode: req.ActivityCode},
		{},
	}

	seen := map[string]bool{}
	for _, combo := range combos {
		key := comboKey(combo)
		if seen[key] {
			continue
		}
		seen[key] = true

		opts := []option.QueryOption{
			option.ApplyOperator(option.Condition{Field: "effective_from", Operator: option.LTE, Value: at}),
			option.Where("(effective_to IS NULL OR effective_to >= ?)", at),
			option.WithOrder("effective_from DESC"),
		}
		if combo.caseID != nil {
			opts = append(opts, option.ApplyOperator(option.Condition{Field: "case_id", Operator: option.EQ, Value: *combo.caseID}))
		}
		if combo.activityCode != nil {
			opts = append(opts, option.ApplyOperator(option.Condition{Field: "activity_code", Operator: option.EQ, Value: *combo.activityCode}))
		}

		hit, err := s.repo.FindOne(ctx, &ratecarddomain.RateCard{UserID: req.UserID}, opts...)
		if err != nil {
			return ratecarddomain.Resolution{}, err
		}
		if hit != nil {
			return ratecarddomain.Resolution{RatePerHour: hit.RatePerHour, Source: hit}, nil
		}
	}

	return ratecarddomain.Resolution{}, nil
}

func comboKey(c comboFilter) string {
	var b strings.Builder
	if c.caseID != nil {
		b.WriteString("c:")
		b.WriteString(c.caseID.String())
	}
	if c.activityCode != nil {
		b.WriteString("a:")
		b.WriteString(*c.activityCode)
	}
	return b.String()
}

func (s *Service) Create(ctx context.Context, card ratecarddomain.RateCard) (ratecarddomain.RateCard, error) {
	if card.UserID == 0 {
		return ratecarddomain.RateCard{}, ratecarddomain.ErrInvalidUser
	}
	if card.RatePerHour < 0 {
		return ratecarddomain.RateCard{}, ratecarddomain.ErrInvalidRate
	}
	if card.EffectiveFrom.IsZero() {
		return ratecarddomain.RateCard{}, ratecarddomain.ErrInvalidWindow
	}
	if card.EffectiveTo != nil && card.EffectiveTo.Before(card.EffectiveFrom) {
		return ratecarddomain.RateCard{}, ratecarddomain.ErrInvalidWindow
	}

	now := s.clock.Now()
	card.ID = s.genID.Generate()
	card.CreatedAt = now
	card.UpdatedAt = now
	if err := s.repo.Create(ctx, &card); err != nil {
		return ratecarddomain.RateCard{}, err
	}
	return card, nil
}

func (s *Service) Update(ctx context.Context, id string, req ratecarddomain.UpdateRequest) (ratecarddomain.RateCard, error) {
	cardID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return ratecarddomain.RateCard{}, ratecarddomain.ErrRateCardNotFound
	}

	existing, err := s.repo.FindOne(ctx, &ratecarddomain.RateCard{ID: cardID})
	if err != nil {
		return ratecarddomain.RateCard{}, err
	}
	if existing == nil {
		return ratecarddomain.RateCard{}, ratecarddomain.ErrRateCardNotFound
	}

	if req.RatePerHour != nil {
		if *req.RatePerHour < 0 {
			return ratecarddomain.RateCard{}, ratecarddomain.ErrInvalidRate
		}
		existing.RatePerHour = *req.RatePerHour
	}
	if req.EffectiveFrom != nil {
		existing.EffectiveFrom = *req.EffectiveFrom
	}
	if req.EffectiveTo != nil {
		existing.EffectiveTo = req.EffectiveTo
	}
	if existing.EffectiveTo != nil && existing.EffectiveTo.Before(existing.EffectiveFrom) {
		return ratecarddomain.RateCard{}, ratecarddomain.ErrInvalidWindow
	}

	existing.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return ratecarddomain.RateCard{}, err
	}
	return *existing, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	cardID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return ratecarddomain.ErrRateCardNotFound
	}

	existing, err := s.repo.FindOne(ctx, &ratecarddomain.RateCard{ID: cardID})
	if err != nil {
		return err
	}
	if existing == nil {
		return ratecarddomain.ErrRateCardNotFound
	}
	return s.repo.Delete(ctx, cardID.String())
}

func (s *Service) List(ctx context.Context, req ratecarddomain.ListRequest) ([]ratecarddomain.RateCard, error) {
	filter := &ratecarddomain.RateCard{}
	if req.UserID != nil {
		filter.UserID = *req.UserID
	}

	opts := []option.QueryOption{option.WithOrder("effective_from DESC")}
	if req.CaseID != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "case_id", Operator: option.EQ, Value: *req.CaseID}))
	}
	if req.ActivityCode != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "activity_code", Operator: option.EQ, Value: *req.ActivityCode}))
	}
	if req.ActiveOn != nil {
		at := req.ActiveOn.UTC()
		opts = append(opts,
			option.ApplyOperator(option.Condition{Field: "effective_from", Operator: option.LTE, Value: at}),
			option.Where("(effective_to IS NULL OR effective_to >= ?)", at),
		)
	}

	items, err := s.repo.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	cards := make([]ratecarddomain.RateCard, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		cards = append(cards, *item)
	}
	return cards, nil
}
