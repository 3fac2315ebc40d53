package kpi

import (
	"go.uber.org/fx"

	"github.com/counselops/lexbill/internal/kpi/service"
)

var Module = fx.Module("kpi.service",
	fx.Provide(service.NewService),
)
