package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
	"github.com/counselops/lexbill/pkg/money"
)

// Dataset is the raw material of one rollup: ledgers already narrowed to the
// scope (where the store can do it cheaply) and to dates at or before the
// window end. EntryOwner maps time-entry ID to the user who worked it, for
// lines whose entries fall outside Entries.
type Dataset struct {
	Entries    []timedomain.TimeEntry
	Invoices   []invoicedomain.Invoice
	Lines      []invoicedomain.Line
	Payments   []paymentdomain.Payment
	EntryOwner map[snowflake.ID]snowflake.ID
}

// Window is a half-open interval [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// ComputeSummary reduces the dataset into a Summary. It is a pure function:
// given the same dataset, scope and window it always yields the same result,
// which keeps the pro-rata revenue allocation testable without a store.
//
// Definitions: utilization is billable/(billable+nonbillable) minutes over
// entries dated in the window; WIP sums submitted/approved entry amounts
// dated before the window end; invoiced sums non-void invoice totals issued
// in the window; revenue sums cleared payments received in the window; AR is
// the non-negative difference between everything invoiced and everything
// collected up to the window end; realization is revenue/invoiced.
//
// For user scope, invoiced is the user's own line amounts, and each payment
// is apportioned by the user's share of its invoice's line amounts.
func ComputeSummary(scope Scope, scopeID snowflake.ID, w Window, ds Dataset) Summary {
	var billable, nonbillable int
	var wip float64
	for _, e := range ds.Entries {
		if !matchEntry(scope, scopeID, e) {
			continue
		}
		if w.Contains(e.Date) {
			billable += e.BillableMinutes
			nonbillable += e.NonbillableMinutes
		}
		if (e.Status == timedomain.StatusSubmitted || e.Status == timedomain.StatusApproved) && e.Date.Before(w.To) {
			wip += e.Amount
		}
	}

	utilization := 0.0
	if billable+nonbillable > 0 {
		utilization = float64(billable) / float64(billable+nonbillable)
	}

	invoices := make(map[snowflake.ID]invoicedomain.Invoice, len(ds.Invoices))
	for _, inv := range ds.Invoices {
		if inv.Status == invoicedomain.StatusVoid || inv.IssueDate.After(w.To) {
			continue
		}
		if !matchInvoice(scope, scopeID, inv) {
			continue
		}
		invoices[inv.ID] = inv
	}

	// Per-invoice line sums, total and for the scoped user, for the
	// pro-rata split.
	lineSum := make(map[snowflake.ID]float64)
	userLineSum := make(map[snowflake.ID]float64)
	for _, l := range ds.Lines {
		if _, ok := invoices[l.InvoiceID]; !ok {
			continue
		}
		lineSum[l.InvoiceID] += l.Amount
		if scope == ScopeUser && l.TimeEntryID != nil && ds.EntryOwner[*l.TimeEntryID] == scopeID {
			userLineSum[l.InvoiceID] += l.Amount
		}
	}

	var invoiced, invoicedToDate float64
	for id, inv := range invoices {
		amount := inv.Total
		if scope == ScopeUser {
			amount = userLineSum[id]
		}
		invoicedToDate += amount
		if w.Contains(inv.IssueDate) {
			invoiced += amount
		}
	}

	var revenue, collectedToDate float64
	for _, p := range ds.Payments {
		if p.Status != paymentdomain.StatusCleared || p.PaidAt.After(w.To) {
			continue
		}
		inv, ok := invoices[p.InvoiceID]
		if !ok {
			continue
		}
		amount := p.Amount
		if scope == ScopeUser {
			total := lineSum[inv.ID]
			if total <= 0 {
				continue
			}
			amount = p.Amount * userLineSum[inv.ID] / total
		}
		collectedToDate += amount
		if w.Contains(p.PaidAt) {
			revenue += amount
		}
	}

	ar := invoicedToDate - collectedToDate
	if ar < 0 {
		ar = 0
	}

	realization := 0.0
	if invoiced > 0 {
		realization = revenue / invoiced
	}

	return Summary{
		Scope:       scope,
		From:        w.From,
		To:          w.To,
		Revenue:     money.Round2(revenue),
		WIP:         money.Round2(wip),
		AR:          money.Round2(ar),
		Invoiced:    money.Round2(invoiced),
		Utilization: utilization,
		Realization: realization,
	}
}

func matchEntry(scope Scope, scopeID snowflake.ID, e timedomain.TimeEntry) bool {
	switch scope {
	case ScopeUser:
		return e.UserID == scopeID
	case ScopeClient:
		return e.ClientID == scopeID
	case ScopeCase:
		return e.CaseID == scopeID
	}
	return true
}

func matchInvoice(scope Scope, scopeID snowflake.ID, inv invoicedomain.Invoice) bool {
	switch scope {
	case ScopeClient:
		return inv.ClientID == scopeID
	case ScopeCase:
		return inv.CaseID != nil && *inv.CaseID == scopeID
	}
	// Firm sees everything; user attribution happens through the lines.
	return true
}
