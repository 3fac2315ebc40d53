package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrRateCardNotFound = errors.New("rate_card_not_found")
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidRate      = errors.New("invalid_rate")
	ErrInvalidWindow    = errors.New("invalid_effective_window")
)

// ResolveRequest identifies the rate lookup tuple. At defaults to now.
type ResolveRequest struct {
	UserID       snowflake.ID
	CaseID       *snowflake.ID
	ActivityCode *string
	At           *time.Time
}

// Resolution carries the resolved rate and its source card. A nil Source
// means no rate applies; callers must treat that as "rate undetermined",
// never as a zero rate.
type Resolution struct {
	RatePerHour float64   `json:"rate_per_hour"`
	Source      *RateCard `json:"source"`
}

type ListRequest struct {
	UserID       *snowflake.ID
	CaseID       *snowflake.ID
	ActivityCode *string
	ActiveOn     *time.Time
}

type UpdateRequest struct {
	RatePerHour   *float64
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

type Service interface {
	Resolve(ctx context.Context, req ResolveRequest) (Resolution, error)
	Create(ctx context.Context, card RateCard) (RateCard, error)
	Update(ctx context.Context, id string, req UpdateRequest) (RateCard, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req ListRequest) ([]RateCard, error)
}
