package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/counselops/lexbill/internal/aging"
	"github.com/counselops/lexbill/internal/audit"
	"github.com/counselops/lexbill/internal/clock"
	"github.com/counselops/lexbill/internal/config"
	"github.com/counselops/lexbill/internal/invoice"
	"github.com/counselops/lexbill/internal/kpi"
	"github.com/counselops/lexbill/internal/logger"
	"github.com/counselops/lexbill/internal/migration"
	"github.com/counselops/lexbill/internal/observability/metrics"
	"github.com/counselops/lexbill/internal/payment"
	"github.com/counselops/lexbill/internal/ratecard"
	"github.com/counselops/lexbill/internal/scheduler"
	"github.com/counselops/lexbill/internal/server"
	"github.com/counselops/lexbill/internal/tax"
	"github.com/counselops/lexbill/internal/timeentry"
	"github.com/counselops/lexbill/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		metrics.Module,

		// Domain services
		tax.Module,
		audit.Module,
		ratecard.Module,
		timeentry.Module,
		invoice.Module,
		payment.Module,
		kpi.Module,
		aging.Module,

		// Background jobs and HTTP surface
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
