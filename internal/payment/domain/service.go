package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
)

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidMethod   = errors.New("unknown payment method")
	ErrInvalidStatus   = errors.New("unknown payment status")
	ErrVoidInvoice     = errors.New("cannot record payment against a void invoice")
)

// OverpaymentError is returned when a cleared payment would push the paid
// sum past the invoice total beyond the one-cent tolerance.
type OverpaymentError struct {
	InvoiceID   snowflake.ID
	Total       float64
	AlreadyPaid float64
	Attempted   float64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %.2f exceeds remaining balance on invoice %s (total %.2f, paid %.2f)",
		e.Attempted, e.InvoiceID, e.Total, e.AlreadyPaid)
}

// CreateRequest records a remittance against an invoice.
type CreateRequest struct {
	InvoiceID snowflake.ID
	Amount    float64
	Currency  string
	Method    Method
	// Reference is generated when empty.
	Reference string
	// Status defaults to cleared: most recorded payments have already
	// settled by the time staff key them in.
	Status    Status
	PaidAt    *time.Time
	Notes     *string
	CreatedBy *snowflake.ID
}

// ReconcileRequest moves a payment between clearing states. PaidAt, when
// set, corrects the recorded settlement date.
type ReconcileRequest struct {
	Status Status
	PaidAt *time.Time
	Notes  *string
}

type ListRequest struct {
	InvoiceID *snowflake.ID
	ClientID  *snowflake.ID
	Status    *Status
	PaidFrom  *time.Time
	PaidTo    *time.Time
}

// Result pairs a payment mutation with the invoice state it produced.
type Result struct {
	Payment Payment               `json:"payment"`
	Invoice invoicedomain.Invoice `json:"invoice"`
	Paid    float64               `json:"paid_amount"`
	Status  invoicedomain.Status  `json:"invoice_status"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Result, error)
	Get(ctx context.Context, id string) (Payment, error)
	List(ctx context.Context, req ListRequest) ([]Payment, error)
	Reconcile(ctx context.Context, id string, req ReconcileRequest) (Result, error)
	Delete(ctx context.Context, id string) (Result, error)
}
