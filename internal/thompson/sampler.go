// Package thompson ranks arms by Thompson Sampling over Beta posteriors,
// weighted by runtime cost and a user bias.
//
// Nothing in this package logs, formats or keeps state between calls. The
// random source is always supplied by the caller.
package thompson

import (
	"gobandits/domain/arms"
	"gobandits/internal/betainc"
	"gobandits/ports"
)

// Sampler inverts Beta posteriors with a configurable iteration budget. The
// zero value uses the default budget.
type Sampler struct {
	Inverter betainc.Inverter
}

// Sample maps the uniform draw u onto the posterior Beta(interesting+1,
// uninteresting+1) by inverse-CDF sampling.
//
// A non-converged inversion returns its best estimate together with an error
// wrapping core.ErrNonconvergence; the estimate is still usable for ordering.
func (s Sampler) Sample(stats arms.Statistics, u float64) (float64, error) {
	return s.Inverter.Inverse(u, stats.Alpha(), stats.Beta())
}

// Draw takes one uniform value from src and samples the posterior with it.
func (s Sampler) Draw(stats arms.Statistics, src ports.UniformSource) (float64, error) {
	return s.Sample(stats, src.Float64())
}

// Quantile returns the posterior interesting-rate below which probability p lies.
// Reporting uses it for credible intervals.
func (s Sampler) Quantile(stats arms.Statistics, p float64) (float64, error) {
	return s.Inverter.Inverse(p, stats.Alpha(), stats.Beta())
}

// Sample is Sampler{}.Sample.
func Sample(stats arms.Statistics, u float64) (float64, error) {
	return Sampler{}.Sample(stats, u)
}

// Draw is Sampler{}.Draw.
func Draw(stats arms.Statistics, src ports.UniformSource) (float64, error) {
	return Sampler{}.Draw(stats, src)
}

// Quantile is Sampler{}.Quantile.
func Quantile(stats arms.Statistics, p float64) (float64, error) {
	return Sampler{}.Quantile(stats, p)
}
