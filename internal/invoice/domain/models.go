// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselops/lexbill/pkg/money"
)

// Status represents invoice lifecycle states. Apart from the explicit send
// and void actions, status is always derived from payments via ComputeStatus.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusVoid    Status = "void"
)

// Invoice groups billed time for a client into a payable document.
type Invoice struct {
	ID       snowflake.ID  `gorm:"primaryKey" json:"id"`
	ClientID snowflake.ID  `gorm:"not null;index:idx_invoices_client_status,priority:1" json:"client_id"`
	CaseID   *snowflake.ID `gorm:"index" json:"case_id,omitempty"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	IssueDate time.Time  `gorm:"not null;index" json:"issue_date"`
	DueDate   *time.Time `json:"due_date,omitempty"`

	Currency string `gorm:"type:text;not null" json:"currency"`

	Subtotal float64 `gorm:"not null;default:0" json:"subtotal"`
	Tax      float64 `gorm:"not null;default:0" json:"tax"`
	Total    float64 `gorm:"not null;default:0" json:"total"`

	Status Status  `gorm:"type:text;not null;default:'draft';index:idx_invoices_client_status,priority:2" json:"status"`
	PdfURL *string `gorm:"type:text" json:"pdf_url,omitempty"`

	CreatedBy *snowflake.ID `json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// ComputeStatus derives the invoice status from the cleared payment sum.
// It is a pure function of (status==void, total, paidAmount, dueDate, now):
// void is terminal; otherwise paid wins over partial, partial over overdue,
// and an unissued invoice stays draft.
func (i Invoice) ComputeStatus(paidAmount float64, now time.Time) Status {
	if i.Status == StatusVoid {
		return StatusVoid
	}
	if paidAmount >= i.Total {
		return StatusPaid
	}
	if paidAmount > 0 {
		return StatusPartial
	}
	if i.DueDate != nil && i.DueDate.Before(now) {
		return StatusOverdue
	}
	if i.Status == StatusDraft {
		return StatusDraft
	}
	return StatusSent
}

// Line is one invoice line, optionally traceable to the time entry it bills.
type Line struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	TimeEntryID *snowflake.ID `gorm:"index" json:"time_entry_id,omitempty"`

	Description string  `gorm:"type:text;not null" json:"description"`
	QtyHours    float64 `gorm:"not null" json:"qty_hours"`
	Rate        float64 `gorm:"not null" json:"rate"`
	Amount      float64 `gorm:"not null" json:"amount"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Line) TableName() string { return "invoice_lines" }

// ComputeLineAmount derives a line amount from quantity and rate.
func ComputeLineAmount(qtyHours, rate float64) float64 {
	return money.Round2(qtyHours * rate)
}
