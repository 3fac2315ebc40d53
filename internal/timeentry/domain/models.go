// Package domain contains persistence models for the time-entry ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselops/lexbill/pkg/money"
)

// Status represents the time-entry workflow state. The workflow is strictly
// forward: draft→submitted→approved→billed→paid, with rejected reachable
// from draft, submitted or approved.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusBilled    Status = "billed"
	StatusPaid      Status = "paid"
	StatusRejected  Status = "rejected"
)

// TimeEntry records a unit of work against a case, client and user.
type TimeEntry struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	CaseID   snowflake.ID `gorm:"not null;index:idx_time_entries_case_date,priority:1" json:"case_id"`
	ClientID snowflake.ID `gorm:"not null;index" json:"client_id"`
	UserID   snowflake.ID `gorm:"not null;index" json:"user_id"`

	ActivityCode *string `gorm:"type:text" json:"activity_code,omitempty"`
	Narrative    string  `gorm:"type:text;not null" json:"narrative"`

	BillableMinutes    int `gorm:"not null;default:0" json:"billable_minutes"`
	NonbillableMinutes int `gorm:"not null;default:0" json:"nonbillable_minutes"`

	RateApplied *float64 `json:"rate_applied,omitempty"`
	Amount      float64  `gorm:"not null;default:0" json:"amount"`

	Date   time.Time `gorm:"not null;index:idx_time_entries_case_date,priority:2" json:"date"`
	Status Status    `gorm:"type:text;not null;default:'draft';index" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TimeEntry) TableName() string { return "time_entries" }

// Editable reports whether monetary and narrative fields may still change.
func (t TimeEntry) Editable() bool {
	return t.Status == StatusDraft || t.Status == StatusSubmitted
}

// ComputeAmount derives the monetary value of billable time. A nil rate
// yields zero; callers distinguish "no rate" from "zero rate" through
// RateApplied, not Amount.
func ComputeAmount(rate *float64, billableMinutes int) float64 {
	if rate == nil {
		return 0
	}
	return money.Round2(*rate * float64(billableMinutes) / 60)
}
