package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	agingservice "github.com/counselops/lexbill/internal/aging/service"
	auditdomain "github.com/counselops/lexbill/internal/audit/domain"
	auditservice "github.com/counselops/lexbill/internal/audit/service"
	"github.com/counselops/lexbill/internal/clock"
	"github.com/counselops/lexbill/internal/config"
	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	invoiceservice "github.com/counselops/lexbill/internal/invoice/service"
	kpidomain "github.com/counselops/lexbill/internal/kpi/domain"
	kpiservice "github.com/counselops/lexbill/internal/kpi/service"
	"github.com/counselops/lexbill/internal/observability/metrics"
	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
	paymentservice "github.com/counselops/lexbill/internal/payment/service"
	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
	ratecardservice "github.com/counselops/lexbill/internal/ratecard/service"
	"github.com/counselops/lexbill/internal/tax"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
	timeentryservice "github.com/counselops/lexbill/internal/timeentry/service"
)

// newTestServer stands up the full HTTP surface over an in-memory store,
// with an 18% tax policy and a fixed clock.
func newTestServer(t *testing.T) (*gin.Engine, *clock.FakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ratecarddomain.RateCard{}, &timedomain.TimeEntry{},
		&invoicedomain.Invoice{}, &invoicedomain.Line{},
		&paymentdomain.Payment{}, &kpidomain.Snapshot{}, &auditdomain.Entry{},
	))

	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{Environment: "test", DefaultCurrency: "INR", FirmTaxRatePct: 18}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rateCardSvc := ratecardservice.NewService(ratecardservice.Params{DB: db, Log: log, GenID: node, Clock: fake})
	timeEntrySvc := timeentryservice.NewService(timeentryservice.Params{DB: db, Log: log, GenID: node, Clock: fake, RateCardSvc: rateCardSvc})
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: fake})
	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		Config: cfg, DB: db, Log: log, GenID: node, Clock: fake,
		Tax: tax.FixedRate{Pct: cfg.FirmTaxRatePct}, Audit: auditSvc, Metrics: m,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Audit: auditSvc, Metrics: m})
	kpiSvc := kpiservice.NewService(kpiservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Metrics: m})
	agingSvc := agingservice.NewService(agingservice.Params{DB: db, Log: log, Clock: fake})

	engine := NewEngine(cfg, log, m, reg)
	NewServer(ServerParams{
		Gin: engine, Cfg: cfg, DB: db, GenID: node,
		TimeEntrySvc: timeEntrySvc, InvoiceSvc: invoiceSvc, PaymentSvc: paymentSvc,
		RateCardSvc: rateCardSvc, KpiSvc: kpiSvc, AgingSvc: agingSvc, AuditSvc: auditSvc,
	})
	return engine, fake
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

// TestBillingFlow drives one matter from timekeeping to settled cash over
// the HTTP API: rate card, time entry, approval, invoicing with tax,
// payment, and the resulting KPI and aging views.
func TestBillingFlow(t *testing.T) {
	engine, _ := newTestServer(t)

	userID := "101"
	clientID := "202"
	caseID := "303"

	// A rate card so entry creation resolves 6000/hr.
	rec := doJSON(t, engine, http.MethodPost, "/v1/rate-cards", gin.H{
		"user_id":        userID,
		"case_id":        caseID,
		"rate_per_hour":  6000,
		"effective_from": "2026-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// 25 billable minutes at 6000/hr comes to 2500.00.
	rec = doJSON(t, engine, http.MethodPost, "/v1/time-entries", gin.H{
		"case_id":          caseID,
		"client_id":        clientID,
		"user_id":          userID,
		"narrative":        "Reviewed deposition transcript",
		"billable_minutes": 25,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeData(t, rec)
	entryID := entry["id"].(string)
	assert.Equal(t, 2500.0, entry["amount"])
	assert.Equal(t, 6000.0, entry["rate_applied"])
	assert.Equal(t, "draft", entry["status"])

	// Approval cannot skip submission.
	rec = doJSON(t, engine, http.MethodPost, "/v1/time-entries/"+entryID+"/approve", nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/v1/time-entries/"+entryID+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doJSON(t, engine, http.MethodPost, "/v1/time-entries/"+entryID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Invoice the approved time: 2500 + 18% tax = 2950.
	rec = doJSON(t, engine, http.MethodPost, "/v1/invoices/generate", gin.H{
		"client_id":      clientID,
		"case_id":        caseID,
		"time_entry_ids": []string{entryID},
		"due_date":       "2026-08-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	invoice := decodeData(t, rec)
	invoiceID := invoice["id"].(string)
	assert.Equal(t, 2500.0, invoice["subtotal"])
	assert.Equal(t, 450.0, invoice["tax"])
	assert.Equal(t, 2950.0, invoice["total"])
	assert.Equal(t, "draft", invoice["status"])

	rec = doJSON(t, engine, http.MethodPost, "/v1/invoices/"+invoiceID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A billed entry can no longer be edited.
	rec = doJSON(t, engine, http.MethodPatch, "/v1/time-entries/"+entryID, gin.H{
		"billable_minutes": 60,
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	// Paying more than the balance is rejected.
	rec = doJSON(t, engine, http.MethodPost, "/v1/payments", gin.H{
		"invoice_id": invoiceID,
		"amount":     3000,
		"method":     "bank_transfer",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	// Settle in full.
	rec = doJSON(t, engine, http.MethodPost, "/v1/payments", gin.H{
		"invoice_id": invoiceID,
		"amount":     2950,
		"method":     "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decodeData(t, rec)
	assert.Equal(t, "paid", payment["invoice_status"])
	assert.Equal(t, 2950.0, payment["paid_amount"])

	// Settlement cascades to the time entry.
	rec = doJSON(t, engine, http.MethodGet, "/v1/time-entries/"+entryID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", decodeData(t, rec)["status"])

	// Nothing is left outstanding.
	rec = doJSON(t, engine, http.MethodGet, "/v1/ar/aging", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	aging := decodeData(t, rec)
	assert.Equal(t, 0.0, aging["total_outstanding"])
	assert.Equal(t, 0.0, aging["bkt_31_60"])

	// The month's rollup reflects the settled cash.
	rec = doJSON(t, engine, http.MethodGet, "/v1/kpi/summary?month=2026-07", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeData(t, rec)
	assert.Equal(t, 2950.0, summary["invoiced"])
	assert.Equal(t, 2950.0, summary["revenue"])
	assert.Equal(t, 0.0, summary["ar"])
	assert.Equal(t, 1.0, summary["realization"])

	// Snapshot generation covers firm, user, client and case scopes.
	rec = doJSON(t, engine, http.MethodPost, "/v1/kpi/snapshots/generate", gin.H{
		"month": "2026-07",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4.0, decodeData(t, rec)["count"])

	rec = doJSON(t, engine, http.MethodGet, "/v1/audit-logs?entity=invoice&entity_id="+invoiceID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestResolveRate_NullMeansUndetermined(t *testing.T) {
	engine, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodGet, "/v1/rate-cards/resolve?user_id=9999&at=2026-07-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolution := decodeData(t, rec)
	assert.Nil(t, resolution["source"])
}
