package tax

import (
	"github.com/counselops/lexbill/internal/config"
	"go.uber.org/fx"
)

// FromConfig selects the firm tax policy.
func FromConfig(cfg config.Config) Policy {
	if cfg.FirmTaxRatePct > 0 {
		return FixedRate{Pct: cfg.FirmTaxRatePct}
	}
	return None{}
}

var Module = fx.Module("tax",
	fx.Provide(FromConfig),
)
