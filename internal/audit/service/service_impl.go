package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/counselops/lexbill/internal/audit/domain"
	"github.com/counselops/lexbill/internal/clock"
	"github.com/counselops/lexbill/pkg/db/option"
	"github.com/counselops/lexbill/pkg/repository"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type service struct {
	entries repository.Repository[domain.Entry]
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
}

func NewService(p Params) domain.Service {
	return &service{
		entries: repository.ProvideStore[domain.Entry](p.DB),
		log:     p.Log.Named("audit.service"),
		genID:   p.GenID,
		clock:   p.Clock,
	}
}

func (s *service) Record(ctx context.Context, rec domain.Record) {
	entry := &domain.Entry{
		ID:        s.genID.Generate(),
		Entity:    rec.Entity,
		EntityID:  rec.EntityID,
		Action:    rec.Action,
		ActorID:   rec.ActorID,
		Metadata:  datatypes.JSONMap(rec.Metadata),
		CreatedAt: s.clock.Now(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		s.log.Error("append audit entry",
			zap.String("entity", rec.Entity),
			zap.String("entity_id", rec.EntityID),
			zap.String("action", rec.Action),
			zap.Error(err),
		)
	}
}

func (s *service) List(ctx context.Context, entity, entityID string) ([]domain.Entry, error) {
	found, err := s.entries.Find(ctx, &domain.Entry{},
		option.Where("entity = ?", entity),
		option.Where("entity_id = ?", entityID),
		option.WithOrder("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Entry, 0, len(found))
	for _, entry := range found {
		out = append(out, *entry)
	}
	return out, nil
}
