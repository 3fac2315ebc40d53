// Package domain contains the KPI rollup types and the pure reduction that
// computes them from the underlying ledgers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Scope selects the attribution dimension of a rollup.
type Scope string

const (
	ScopeFirm   Scope = "firm"
	ScopeUser   Scope = "user"
	ScopeClient Scope = "client"
	ScopeCase   Scope = "case"
)

// Valid reports whether the scope is a known dimension.
func (s Scope) Valid() bool {
	switch s {
	case ScopeFirm, ScopeUser, ScopeClient, ScopeCase:
		return true
	}
	return false
}

// Summary is a scoped, time-windowed rollup. Monetary fields are rounded to
// two decimals; utilization and realization are ratios, not percentages.
type Summary struct {
	Scope   Scope         `json:"scope"`
	ScopeID *snowflake.ID `json:"scope_id,omitempty"`
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`

	Revenue     float64 `json:"revenue"`
	WIP         float64 `json:"wip"`
	AR          float64 `json:"ar"`
	Invoiced    float64 `json:"invoiced"`
	Utilization float64 `json:"utilization"`
	Realization float64 `json:"realization"`
}

// Snapshot is the persisted, idempotently upserted form of a Summary for one
// month. ScopeID zero means firm-wide.
type Snapshot struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	Scope   Scope        `gorm:"type:text;not null;uniqueIndex:idx_kpi_scope_month,priority:1" json:"scope"`
	ScopeID snowflake.ID `gorm:"not null;default:0;uniqueIndex:idx_kpi_scope_month,priority:2" json:"scope_id"`
	Month   string       `gorm:"type:text;not null;uniqueIndex:idx_kpi_scope_month,priority:3" json:"month"`

	Utilization float64 `gorm:"not null;default:0" json:"utilization"`
	Realization float64 `gorm:"not null;default:0" json:"realization"`
	WIP         float64 `gorm:"not null;default:0;column:wip" json:"wip"`
	AR          float64 `gorm:"not null;default:0;column:ar" json:"ar"`
	Revenue     float64 `gorm:"not null;default:0" json:"revenue"`
	Invoiced    float64 `gorm:"not null;default:0" json:"invoiced"`

	ComputedAt time.Time `gorm:"not null" json:"computed_at"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Snapshot) TableName() string { return "kpi_snapshots" }

// TrendPoint is one month of a trend series.
type TrendPoint struct {
	Month   string  `json:"month"`
	Summary Summary `json:"summary"`
}
