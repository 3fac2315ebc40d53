package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	auditdomain "github.com/counselops/lexbill/internal/audit/domain"
	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	kpidomain "github.com/counselops/lexbill/internal/kpi/domain"
	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite has no versioned migration path; derive the schema from
		// the models so local development works out of the box.
		return conn.AutoMigrate(
			&ratecarddomain.RateCard{},
			&timedomain.TimeEntry{},
			&invoicedomain.Invoice{},
			&invoicedomain.Line{},
			&paymentdomain.Payment{},
			&kpidomain.Snapshot{},
			&auditdomain.Entry{},
		)
	}),
)
