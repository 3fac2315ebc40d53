package aging

import (
	"go.uber.org/fx"

	"github.com/counselops/lexbill/internal/aging/service"
)

var Module = fx.Module("aging.service",
	fx.Provide(service.NewService),
)
