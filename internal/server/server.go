// Package server wires the HTTP surface over the billing services.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	agingdomain "github.com/counselops/lexbill/internal/aging/domain"
	auditdomain "github.com/counselops/lexbill/internal/audit/domain"
	"github.com/counselops/lexbill/internal/config"
	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	kpidomain "github.com/counselops/lexbill/internal/kpi/domain"
	"github.com/counselops/lexbill/internal/observability/metrics"
	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
)

func NewEngine(cfg config.Config, log *zap.Logger, m *metrics.Metrics, reg *prometheus.Registry) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(MetricsMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	timeEntrySvc timedomain.Service
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	rateCardSvc  ratecarddomain.Service
	kpiSvc       kpidomain.Service
	agingSvc     agingdomain.Service
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	TimeEntrySvc timedomain.Service
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	RateCardSvc  ratecarddomain.Service
	KpiSvc       kpidomain.Service
	AgingSvc     agingdomain.Service
	AuditSvc     auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		timeEntrySvc: p.TimeEntrySvc,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		rateCardSvc:  p.RateCardSvc,
		kpiSvc:       p.KpiSvc,
		agingSvc:     p.AgingSvc,
		auditSvc:     p.AuditSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	entries := v1.Group("/time-entries")
	entries.POST("", s.CreateTimeEntry)
	entries.GET("", s.ListTimeEntries)
	entries.GET("/:id", s.GetTimeEntry)
	entries.PATCH("/:id", s.UpdateTimeEntry)
	entries.POST("/:id/submit", s.SubmitTimeEntry)
	entries.POST("/:id/approve", s.ApproveTimeEntry)
	entries.POST("/:id/reject", s.RejectTimeEntry)

	rateCards := v1.Group("/rate-cards")
	rateCards.POST("", s.CreateRateCard)
	rateCards.GET("", s.ListRateCards)
	rateCards.GET("/resolve", s.ResolveRate)
	rateCards.PATCH("/:id", s.UpdateRateCard)
	rateCards.DELETE("/:id", s.DeleteRateCard)

	invoices := v1.Group("/invoices")
	invoices.POST("/generate", s.GenerateInvoice)
	invoices.GET("", s.ListInvoices)
	invoices.GET("/:id", s.GetInvoice)
	invoices.POST("/:id/send", s.SendInvoice)
	invoices.POST("/:id/void", s.VoidInvoice)
	invoices.GET("/:id/lines", s.ListInvoiceLines)
	invoices.POST("/:id/lines", s.AddInvoiceLine)
	invoices.PATCH("/:id/lines/:lineId", s.UpdateInvoiceLine)
	invoices.DELETE("/:id/lines/:lineId", s.DeleteInvoiceLine)

	payments := v1.Group("/payments")
	payments.POST("", s.CreatePayment)
	payments.GET("", s.ListPayments)
	payments.GET("/:id", s.GetPayment)
	payments.POST("/:id/reconcile", s.ReconcilePayment)
	payments.DELETE("/:id", s.DeletePayment)

	kpi := v1.Group("/kpi")
	kpi.GET("/summary", s.KpiSummary)
	kpi.GET("/trend", s.KpiTrend)
	kpi.GET("/snapshots", s.ListKpiSnapshots)
	kpi.POST("/snapshots/compute", s.ComputeKpiSnapshot)
	kpi.POST("/snapshots/generate", s.GenerateKpiSnapshots)

	ar := v1.Group("/ar")
	ar.GET("/aging", s.Aging)
	ar.GET("/aging/by-client", s.AgingByClient)

	v1.GET("/audit-logs", s.ListAuditLogs)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)
