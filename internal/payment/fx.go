package payment

import (
	"go.uber.org/fx"

	"github.com/counselops/lexbill/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(service.NewService),
)
