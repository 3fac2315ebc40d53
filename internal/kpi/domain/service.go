package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrSnapshotNotFound  = errors.New("kpi_snapshot_not_found")
	ErrInvalidScope      = errors.New("unknown kpi scope")
	ErrScopeIDRequired   = errors.New("scope_id is required for non-firm scopes")
	ErrInvalidMonth      = errors.New("month must be formatted YYYY-MM")
	ErrUnresolvableScope = errors.New("scope combination cannot be resolved")
)

// SummaryRequest selects a scope and a window. Month takes precedence over
// From/To; when all are empty the window defaults to the current month.
type SummaryRequest struct {
	Scope   Scope
	ScopeID *snowflake.ID
	From    *time.Time
	To      *time.Time
	Month   *string
}

// TrendRequest asks for one summary per month over an inclusive month range.
type TrendRequest struct {
	Scope     Scope
	ScopeID   *snowflake.ID
	FromMonth string
	ToMonth   string
}

type ListSnapshotsRequest struct {
	Scope   *Scope
	ScopeID *snowflake.ID
	Month   *string
}

type Service interface {
	Summary(ctx context.Context, req SummaryRequest) (Summary, error)
	Trend(ctx context.Context, req TrendRequest) ([]TrendPoint, error)

	ComputeAndUpsert(ctx context.Context, scope Scope, scopeID snowflake.ID, month string) (Snapshot, error)
	GenerateSnapshots(ctx context.Context, month string) (int, error)
	ListSnapshots(ctx context.Context, req ListSnapshotsRequest) ([]Snapshot, error)
	GetSnapshot(ctx context.Context, scope Scope, scopeID snowflake.ID, month string) (Snapshot, error)
}
