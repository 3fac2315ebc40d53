package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/counselops/lexbill/internal/audit/domain"
	auditservice "github.com/counselops/lexbill/internal/audit/service"
	"github.com/counselops/lexbill/internal/clock"
	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	"github.com/counselops/lexbill/internal/payment/domain"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
)

type testEnv struct {
	db    *gorm.DB
	svc   domain.Service
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Payment{}, &invoicedomain.Invoice{}, &invoicedomain.Line{},
		&timedomain.TimeEntry{}, &auditdomain.Entry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake,
	})
	svc := NewService(Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Audit: auditSvc,
	})
	return testEnv{db: db, svc: svc, node: node, clock: fake}
}

func (e testEnv) seedInvoice(t *testing.T, total float64, status invoicedomain.Status, dueDate *time.Time) invoicedomain.Invoice {
	t.Helper()
	inv := invoicedomain.Invoice{
		ID:        e.node.Generate(),
		ClientID:  e.node.Generate(),
		IssueDate: e.clock.Now(),
		DueDate:   dueDate,
		Currency:  "INR",
		Subtotal:  total,
		Total:     total,
		Status:    status,
	}
	require.NoError(t, e.db.Create(&inv).Error)
	return inv
}

func TestCreatePayment_DerivesInvoiceStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.seedInvoice(t, 1000, invoicedomain.StatusSent, nil)

	res, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID,
		Amount:    400,
		Method:    domain.MethodBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleared, res.Payment.Status)
	assert.Equal(t, "INR", res.Payment.Currency)
	assert.NotEmpty(t, res.Payment.Reference)
	assert.Equal(t, 400.0, res.Paid)
	assert.Equal(t, invoicedomain.StatusPartial, res.Status)

	res, err = env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID,
		Amount:    600,
		Method:    domain.MethodCheque,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.Paid)
	assert.Equal(t, invoicedomain.StatusPaid, res.Status)
}

func TestCreatePayment_OverpaymentRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.seedInvoice(t, 1000, invoicedomain.StatusSent, nil)

	_, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID,
		Amount:    900,
		Method:    domain.MethodCash,
	})
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID,
		Amount:    200,
		Method:    domain.MethodCash,
	})
	var overErr *domain.OverpaymentError
	require.ErrorAs(t, err, &overErr)
	assert.Equal(t, 1000.0, overErr.Total)
	assert.Equal(t, 900.0, overErr.AlreadyPaid)
	assert.Equal(t, 200.0, overErr.Attempted)

	// The rejected payment left no trace and the invoice kept its state.
	var count int64
	require.NoError(t, env.db.Model(&domain.Payment{}).Where("invoice_id = ?", inv.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var reloaded invoicedomain.Invoice
	require.NoError(t, env.db.First(&reloaded, "id = ?", inv.ID).Error)
	assert.Equal(t, invoicedomain.StatusPartial, reloaded.Status)

	// One cent of rounding slack is allowed.
	_, err = env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID,
		Amount:    100.01,
		Method:    domain.MethodCash,
	})
	require.NoError(t, err)
}

func TestCreatePayment_VoidInvoiceBlocked(t *testing.T) {
	env := newTestEnv(t)
	inv := env.seedInvoice(t, 500, invoicedomain.StatusVoid, nil)

	_, err := env.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: inv.ID,
		Amount:    100,
		Method:    domain.MethodCard,
	})
	assert.ErrorIs(t, err, domain.ErrVoidInvoice)
}

func TestReconcile_Consistency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := env.clock.Now().AddDate(0, 0, -5)
	inv := env.seedInvoice(t, 1000, invoicedomain.StatusOverdue, &due)

	// A pending payment does not count toward the cleared sum.
	res, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID,
		Amount:    1000,
		Method:    domain.MethodUPI,
		Status:    domain.StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Paid)
	assert.Equal(t, invoicedomain.StatusOverdue, res.Status)

	// Clearing it settles the invoice.
	res, err = env.svc.Reconcile(ctx, res.Payment.ID.String(), domain.ReconcileRequest{
		Status: domain.StatusCleared,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.Paid)
	assert.Equal(t, invoicedomain.StatusPaid, res.Status)

	// Failing it afterwards re-derives the status from what remains.
	res, err = env.svc.Reconcile(ctx, res.Payment.ID.String(), domain.ReconcileRequest{
		Status: domain.StatusFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Paid)
	assert.Equal(t, invoicedomain.StatusOverdue, res.Status)
}

func TestReconcile_OverpaymentGuardOnClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.seedInvoice(t, 1000, invoicedomain.StatusSent, nil)

	_, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID, Amount: 1000, Method: domain.MethodCash,
	})
	require.NoError(t, err)

	pending, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID, Amount: 500, Method: domain.MethodCash,
		Status: domain.StatusPending,
	})
	require.NoError(t, err)

	_, err = env.svc.Reconcile(ctx, pending.Payment.ID.String(), domain.ReconcileRequest{
		Status: domain.StatusCleared,
	})
	var overErr *domain.OverpaymentError
	require.ErrorAs(t, err, &overErr)
}

func TestDeletePayment_RecomputesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.seedInvoice(t, 1000, invoicedomain.StatusSent, nil)

	res, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID, Amount: 1000, Method: domain.MethodWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, res.Status)

	res, err = env.svc.Delete(ctx, res.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Paid)
	assert.Equal(t, invoicedomain.StatusSent, res.Status)

	var count int64
	require.NoError(t, env.db.Model(&domain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFullPayment_PromotesBilledEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.seedInvoice(t, 500, invoicedomain.StatusSent, nil)

	rate := 500.0
	entry := timedomain.TimeEntry{
		ID:              env.node.Generate(),
		CaseID:          env.node.Generate(),
		ClientID:        inv.ClientID,
		UserID:          env.node.Generate(),
		Narrative:       "billed work",
		BillableMinutes: 60,
		RateApplied:     &rate,
		Amount:          500,
		Date:            env.clock.Now(),
		Status:          timedomain.StatusBilled,
	}
	require.NoError(t, env.db.Create(&entry).Error)
	require.NoError(t, env.db.Create(&invoicedomain.Line{
		ID:          env.node.Generate(),
		InvoiceID:   inv.ID,
		TimeEntryID: &entry.ID,
		Description: entry.Narrative,
		QtyHours:    1,
		Rate:        rate,
		Amount:      500,
	}).Error)

	_, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID, Amount: 500, Method: domain.MethodBankTransfer,
	})
	require.NoError(t, err)

	var reloaded timedomain.TimeEntry
	require.NoError(t, env.db.First(&reloaded, "id = ?", entry.ID).Error)
	assert.Equal(t, timedomain.StatusPaid, reloaded.Status)
}

func TestCreatePayment_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.seedInvoice(t, 100, invoicedomain.StatusSent, nil)

	_, err := env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID, Amount: 0, Method: domain.MethodCash,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: inv.ID, Amount: 50, Method: "barter",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMethod)

	_, err = env.svc.Create(ctx, domain.CreateRequest{
		InvoiceID: env.node.Generate(), Amount: 50, Method: domain.MethodCash,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
