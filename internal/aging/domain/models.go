// Package domain contains the accounts-receivable aging types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Buckets groups outstanding balances by days past due. An invoice with no
// due date, or not yet due, sits in Current.
type Buckets struct {
	Current   float64 `json:"current"`
	Bkt1To30  float64 `json:"bkt_1_30"`
	Bkt31To60 float64 `json:"bkt_31_60"`
	Bkt61To90 float64 `json:"bkt_61_90"`
	Bkt90Plus float64 `json:"bkt_90_plus"`

	TotalOutstanding float64 `json:"total_outstanding"`
	InvoiceCount     int     `json:"invoice_count"`
}

// Add places one invoice's outstanding balance into the bucket selected by
// daysPastDue. Zero-outstanding invoices never reach here.
func (b *Buckets) Add(outstanding float64, daysPastDue int) {
	switch {
	case daysPastDue <= 0:
		b.Current += outstanding
	case daysPastDue <= 30:
		b.Bkt1To30 += outstanding
	case daysPastDue <= 60:
		b.Bkt31To60 += outstanding
	case daysPastDue <= 90:
		b.Bkt61To90 += outstanding
	default:
		b.Bkt90Plus += outstanding
	}
	b.TotalOutstanding += outstanding
	b.InvoiceCount++
}

// DaysPastDue counts whole days between the due date and asOf. A nil due
// date yields -1, which lands in the Current bucket.
func DaysPastDue(dueDate *time.Time, asOf time.Time) int {
	if dueDate == nil {
		return -1
	}
	return int(asOf.Sub(*dueDate).Hours() / 24)
}

// Report is the firm- or client-level aging result as of a reference date.
type Report struct {
	AsOf        time.Time     `json:"as_of"`
	ClientID    *snowflake.ID `json:"client_id,omitempty"`
	ClearedOnly bool          `json:"cleared_only"`
	Buckets
}

// ClientReport is one client's slice of the by-client aging breakdown.
type ClientReport struct {
	ClientID snowflake.ID `json:"client_id"`
	Buckets
}
