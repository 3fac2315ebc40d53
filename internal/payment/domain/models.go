// Package domain contains the payment ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Method enumerates accepted payment instruments.
type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodCheque       Method = "cheque"
	MethodCash         Method = "cash"
	MethodCard         Method = "card"
	MethodUPI          Method = "upi"
	MethodWallet       Method = "wallet"
	MethodOther        Method = "other"
)

// Valid reports whether the method is a known instrument.
func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodCheque, MethodCash, MethodCard, MethodUPI, MethodWallet, MethodOther:
		return true
	}
	return false
}

// Status is the clearing state of a payment. Only cleared payments count
// toward an invoice's paid amount.
type Status string

const (
	StatusPending Status = "pending"
	StatusCleared Status = "cleared"
	StatusFailed  Status = "failed"
)

// Valid reports whether the status is a known clearing state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCleared, StatusFailed:
		return true
	}
	return false
}

// Payment is one remittance against an invoice.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index:idx_payments_invoice_status,priority:1" json:"invoice_id"`
	ClientID  snowflake.ID `gorm:"not null;index" json:"client_id"`

	Amount   float64 `gorm:"not null" json:"amount"`
	Currency string  `gorm:"type:text;not null" json:"currency"`

	Method    Method    `gorm:"type:text;not null" json:"method"`
	Reference string    `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	Status    Status    `gorm:"type:text;not null;default:'pending';index:idx_payments_invoice_status,priority:2" json:"status"`
	PaidAt    time.Time `gorm:"not null" json:"paid_at"`

	Notes     *string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy *snowflake.ID `json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
