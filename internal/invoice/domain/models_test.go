package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	pastDue := now.AddDate(0, 0, -10)
	futureDue := now.AddDate(0, 0, 10)

	tests := []struct {
		name string
		inv  Invoice
		paid float64
		want Status
	}{
		{"void is terminal even when fully paid", Invoice{Status: StatusVoid, Total: 100}, 100, StatusVoid},
		{"paid when sum covers total", Invoice{Status: StatusSent, Total: 100}, 100, StatusPaid},
		{"paid when sum exceeds total", Invoice{Status: StatusSent, Total: 100}, 100.01, StatusPaid},
		{"partial with any positive sum", Invoice{Status: StatusSent, Total: 100, DueDate: &pastDue}, 0.01, StatusPartial},
		{"overdue past due with nothing paid", Invoice{Status: StatusSent, Total: 100, DueDate: &pastDue}, 0, StatusOverdue},
		{"sent when due in the future", Invoice{Status: StatusSent, Total: 100, DueDate: &futureDue}, 0, StatusSent},
		{"sent with no due date", Invoice{Status: StatusSent, Total: 100}, 0, StatusSent},
		{"draft stays draft before issue", Invoice{Status: StatusDraft, Total: 100}, 0, StatusDraft},
		{"draft past due becomes overdue", Invoice{Status: StatusDraft, Total: 100, DueDate: &pastDue}, 0, StatusOverdue},
		{"zero total counts as paid", Invoice{Status: StatusSent, Total: 0}, 0, StatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.inv.ComputeStatus(tt.paid, now)
			assert.Equal(t, tt.want, got)
			// Deterministic: same inputs, same answer.
			assert.Equal(t, got, tt.inv.ComputeStatus(tt.paid, now))
		})
	}
}

func TestComputeLineAmount(t *testing.T) {
	assert.Equal(t, 2500.0, ComputeLineAmount(25.0/60, 6000))
	assert.Equal(t, 83.33, ComputeLineAmount(50.0/60, 100))
	assert.Equal(t, 0.0, ComputeLineAmount(0, 500))
}
