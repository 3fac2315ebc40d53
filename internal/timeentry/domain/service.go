package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrTimeEntryNotFound = errors.New("time_entry_not_found")
	ErrMissingCase       = errors.New("case_id is required")
	ErrMissingClient     = errors.New("client_id is required")
	ErrMissingUser       = errors.New("user_id is required")
	ErrMissingNarrative  = errors.New("narrative is required")
	ErrNegativeMinutes   = errors.New("minutes cannot be negative")
	ErrNegativeAmount    = errors.New("amount cannot be negative")
)

type CreateRequest struct {
	CaseID   snowflake.ID
	ClientID snowflake.ID
	UserID   snowflake.ID

	ActivityCode *string
	Narrative    string

	BillableMinutes    int
	NonbillableMinutes int

	// RateApplied and Amount override automatic resolution when supplied.
	RateApplied *float64
	Amount      *float64

	Date *time.Time
}

type UpdateRequest struct {
	ActivityCode       *string
	Narrative          *string
	BillableMinutes    *int
	NonbillableMinutes *int
	RateApplied        *float64
	Amount             *float64
	Date               *time.Time
}

type ListRequest struct {
	UserID   *snowflake.ID
	ClientID *snowflake.ID
	CaseID   *snowflake.ID
	Status   *Status
	From     *time.Time
	To       *time.Time
	// Query matches a narrative substring, case-insensitive.
	Query *string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (TimeEntry, error)
	Update(ctx context.Context, id string, req UpdateRequest) (TimeEntry, error)
	Get(ctx context.Context, id string) (TimeEntry, error)
	List(ctx context.Context, req ListRequest) ([]TimeEntry, error)
	Submit(ctx context.Context, id string) (TimeEntry, error)
	Approve(ctx context.Context, id string) (TimeEntry, error)
	Reject(ctx context.Context, id string) (TimeEntry, error)
}
