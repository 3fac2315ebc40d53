// Package tax defines the pluggable invoice tax policy. The normalized
// invoicing path historically produced zero tax while firm settings carried
// a percentage rate; keeping the policy behind an interface lets either
// behavior be selected by configuration without touching the aggregator.
package tax

import "github.com/counselops/lexbill/pkg/money"

// Policy computes the tax owed on an invoice subtotal.
type Policy interface {
	Compute(subtotal float64) float64
}

// None applies no tax.
type None struct{}

func (None) Compute(float64) float64 { return 0 }

// FixedRate applies a flat percentage of the subtotal.
type FixedRate struct {
	Pct float64
}

func (p FixedRate) Compute(subtotal float64) float64 {
	if p.Pct <= 0 {
		return 0
	}
	return money.Round2(subtotal * p.Pct / 100)
}
