package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrLineNotFound    = errors.New("invoice_line_not_found")
	ErrMissingClient   = errors.New("client_id is required")
	ErrNoTimeEntries   = errors.New("time_entry_ids is required")
	ErrEntryMismatch   = errors.New("time entry does not belong to the given client/case")
	ErrNegativeLine    = errors.New("line quantity, rate and amount cannot be negative")
)

// GenerateRequest builds an invoice from approved time entries.
type GenerateRequest struct {
	ClientID     snowflake.ID
	CaseID       *snowflake.ID
	TimeEntryIDs []snowflake.ID
	Currency     string
	DueDate      *time.Time
	PeriodStart  *time.Time
	PeriodEnd    *time.Time
	CreatedBy    *snowflake.ID
}

type SendRequest struct {
	DueDate *time.Time
	PdfURL  *string
}

type ListRequest struct {
	ClientID   *snowflake.ID
	CaseID     *snowflake.ID
	Status     *Status
	IssuedFrom *time.Time
	IssuedTo   *time.Time
}

type AddLineRequest struct {
	TimeEntryID *snowflake.ID
	Description string
	QtyHours    float64
	Rate        float64
	// Amount overrides qty×rate when supplied.
	Amount *float64
}

type UpdateLineRequest struct {
	Description *string
	QtyHours    *float64
	Rate        *float64
	Amount      *float64
}

// Totals is the recalculated money summary returned by line mutations.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

type Service interface {
	GenerateFromApprovedTime(ctx context.Context, req GenerateRequest) (Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListRequest) ([]Invoice, error)
	Send(ctx context.Context, id string, req SendRequest) (Invoice, error)
	Void(ctx context.Context, id string) (Invoice, error)

	ListLines(ctx context.Context, invoiceID string) ([]Line, error)
	AddLine(ctx context.Context, invoiceID string, req AddLineRequest) (Line, Totals, error)
	UpdateLine(ctx context.Context, invoiceID, lineID string, req UpdateLineRequest) (Line, Totals, error)
	DeleteLine(ctx context.Context, invoiceID, lineID string) (Totals, error)
}
