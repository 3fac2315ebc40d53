package ratecard

import (
	"github.com/counselops/lexbill/internal/ratecard/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ratecard.service",
	fx.Provide(service.NewService),
)
