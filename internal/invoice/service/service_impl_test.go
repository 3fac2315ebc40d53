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
	"github.com/counselops/lexbill/internal/config"
	"github.com/counselops/lexbill/internal/invoice/domain"
	"github.com/counselops/lexbill/internal/state"
	"github.com/counselops/lexbill/internal/tax"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
)

type testEnv struct {
	db    *gorm.DB
	svc   domain.Service
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newTestEnv(t *testing.T, taxPolicy tax.Policy) testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Invoice{}, &domain.Line{}, &timedomain.TimeEntry{}, &auditdomain.Entry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake,
	})
	svc := NewService(Params{
		Config: config.Config{DefaultCurrency: "INR"},
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Tax:    taxPolicy,
		Audit:  auditSvc,
	})
	return testEnv{db: db, svc: svc, node: node, clock: fake}
}

func (e testEnv) seedEntry(t *testing.T, clientID, caseID snowflake.ID, minutes int, rate float64, status timedomain.Status) timedomain.TimeEntry {
	t.Helper()
	entry := timedomain.TimeEntry{
		ID:              e.node.Generate(),
		CaseID:          caseID,
		ClientID:        clientID,
		UserID:          e.node.Generate(),
		Narrative:       "seeded work",
		BillableMinutes: minutes,
		RateApplied:     &rate,
		Amount:          timedomain.ComputeAmount(&rate, minutes),
		Date:            e.clock.Now(),
		Status:          status,
	}
	require.NoError(t, e.db.Create(&entry).Error)
	return entry
}

func TestGenerateFromApprovedTime(t *testing.T) {
	env := newTestEnv(t, tax.FixedRate{Pct: 18})
	ctx := context.Background()

	clientID := env.node.Generate()
	caseID := env.node.Generate()
	entry := env.seedEntry(t, clientID, caseID, 25, 6000, timedomain.StatusApproved)

	inv, err := env.svc.GenerateFromApprovedTime(ctx, domain.GenerateRequest{
		ClientID:     clientID,
		CaseID:       &caseID,
		TimeEntryIDs: []snowflake.ID{entry.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDraft, inv.Status)
	assert.Equal(t, "INR", inv.Currency)
	assert.Equal(t, 2500.0, inv.Subtotal)
	assert.Equal(t, 450.0, inv.Tax)
	assert.Equal(t, 2950.0, inv.Total)

	lines, err := env.svc.ListLines(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2500.0, lines[0].Amount)
	assert.Equal(t, 6000.0, lines[0].Rate)
	require.NotNil(t, lines[0].TimeEntryID)
	assert.Equal(t, entry.ID, *lines[0].TimeEntryID)

	var billed timedomain.TimeEntry
	require.NoError(t, env.db.First(&billed, "id = ?", entry.ID).Error)
	assert.Equal(t, timedomain.StatusBilled, billed.Status)
}

func TestGenerateFromApprovedTime_AllOrNothing(t *testing.T) {
	env := newTestEnv(t, tax.None{})
	ctx := context.Background()

	clientID := env.node.Generate()
	caseID := env.node.Generate()
	approved := env.seedEntry(t, clientID, caseID, 60, 100, timedomain.StatusApproved)
	draft := env.seedEntry(t, clientID, caseID, 30, 100, timedomain.StatusDraft)

	_, err := env.svc.GenerateFromApprovedTime(ctx, domain.GenerateRequest{
		ClientID:     clientID,
		TimeEntryIDs: []snowflake.ID{approved.ID, draft.ID},
	})
	var stateErr *state.Error
	require.ErrorAs(t, err, &stateErr)

	// Nothing moved: no invoice row, the approved entry is still approved.
	var invoiceCount int64
	require.NoError(t, env.db.Model(&domain.Invoice{}).Count(&invoiceCount).Error)
	assert.Zero(t, invoiceCount)

	var reloaded timedomain.TimeEntry
	require.NoError(t, env.db.First(&reloaded, "id = ?", approved.ID).Error)
	assert.Equal(t, timedomain.StatusApproved, reloaded.Status)
}

func TestGenerateFromApprovedTime_ClientMismatch(t *testing.T) {
	env := newTestEnv(t, tax.None{})
	ctx := context.Background()

	clientID := env.node.Generate()
	otherClient := env.node.Generate()
	caseID := env.node.Generate()
	entry := env.seedEntry(t, otherClient, caseID, 60, 100, timedomain.StatusApproved)

	_, err := env.svc.GenerateFromApprovedTime(ctx, domain.GenerateRequest{
		ClientID:     clientID,
		TimeEntryIDs: []snowflake.ID{entry.ID},
	})
	assert.ErrorIs(t, err, domain.ErrEntryMismatch)
}

func TestLineMutations_KeepTotalsInvariant(t *testing.T) {
	env := newTestEnv(t, tax.None{})
	ctx := context.Background()

	clientID := env.node.Generate()
	caseID := env.node.Generate()
	entry := env.seedEntry(t, clientID, caseID, 60, 100, timedomain.StatusApproved)

	inv, err := env.svc.GenerateFromApprovedTime(ctx, domain.GenerateRequest{
		ClientID:     clientID,
		TimeEntryIDs: []snowflake.ID{entry.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, inv.Total)

	// Add a manual line: totals follow.
	line, totals, err := env.svc.AddLine(ctx, inv.ID.String(), domain.AddLineRequest{
		Description: "court filing fee",
		QtyHours:    1.5,
		Rate:        80,
	})
	require.NoError(t, err)
	assert.Equal(t, 120.0, line.Amount)
	assert.Equal(t, 220.0, totals.Subtotal)
	assert.Equal(t, 220.0, totals.Total)

	// Update the line with an explicit amount override.
	override := 100.0
	_, totals, err = env.svc.UpdateLine(ctx, inv.ID.String(), line.ID.String(), domain.UpdateLineRequest{
		Amount: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, 200.0, totals.Subtotal)

	// Qty/rate change without override recomputes the amount.
	qty := 2.0
	updated, totals, err := env.svc.UpdateLine(ctx, inv.ID.String(), line.ID.String(), domain.UpdateLineRequest{
		QtyHours: &qty,
	})
	require.NoError(t, err)
	assert.Equal(t, 160.0, updated.Amount)
	assert.Equal(t, 260.0, totals.Subtotal)

	// Delete brings totals back to the original line.
	totals, err = env.svc.DeleteLine(ctx, inv.ID.String(), line.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 100.0, totals.Subtotal)
	assert.Equal(t, 100.0, totals.Total)
}

func TestSendAndVoid(t *testing.T) {
	env := newTestEnv(t, tax.None{})
	ctx := context.Background()

	clientID := env.node.Generate()
	caseID := env.node.Generate()
	entry := env.seedEntry(t, clientID, caseID, 60, 100, timedomain.StatusApproved)

	inv, err := env.svc.GenerateFromApprovedTime(ctx, domain.GenerateRequest{
		ClientID:     clientID,
		TimeEntryIDs: []snowflake.ID{entry.ID},
	})
	require.NoError(t, err)

	due := env.clock.Now().AddDate(0, 0, 30)
	sent, err := env.svc.Send(ctx, inv.ID.String(), domain.SendRequest{DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	require.NotNil(t, sent.DueDate)

	voided, err := env.svc.Void(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVoid, voided.Status)

	// Void is terminal: sending or re-voiding fails with a state error.
	var stateErr *state.Error
	_, err = env.svc.Send(ctx, inv.ID.String(), domain.SendRequest{})
	require.ErrorAs(t, err, &stateErr)
	_, err = env.svc.Void(ctx, inv.ID.String())
	require.ErrorAs(t, err, &stateErr)

	// Lines of a void invoice are frozen too.
	_, _, err = env.svc.AddLine(ctx, inv.ID.String(), domain.AddLineRequest{
		Description: "late fee", QtyHours: 1, Rate: 10,
	})
	require.ErrorAs(t, err, &stateErr)
}
