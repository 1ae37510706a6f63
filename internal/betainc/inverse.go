package betainc

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"gobandits/domain/core"
)

const (
	// MaxInverseIterations is the default cap on the Newton/bisection loop.
	MaxInverseIterations = 100
	// InverseTolerance is the relative step (or bracket width) at which the
	// inverse stops. A bracket narrower than this in absolute terms also counts
	// as converged once the budget is spent.
	InverseTolerance = 1e-12
)

// Inverter inverts I_x(a,b) within a fixed iteration budget. The zero value
// uses MaxInverseIterations.
type Inverter struct {
	MaxIterations int
}

// InverseRegularized returns x in [0,1] with I_x(a,b) = p, the Beta(a,b)
// quantile, using the default iteration budget.
func InverseRegularized(p, a, b float64) (float64, error) {
	return Inverter{}.Inverse(p, a, b)
}

// Inverse returns x in [0,1] with I_x(a,b) = p.
//
// The solver keeps a bracket around the root and takes Newton steps on
// log I against log x, which is exact in the power-law tails, falling back to
// plain Newton when the CDF underflows. It bisects geometrically whenever a
// step would leave the bracket or the previous step failed to reduce the
// residual. When the budget runs out, the best estimate is returned together
// with an error wrapping core.ErrNonconvergence.
func (inv Inverter) Inverse(p, a, b float64) (float64, error) {
	if err := checkShape(a, b); err != nil {
		return 0, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, core.NewDomainError("p", p)
	}
	if p == 0 {
		return 0, nil
	}
	if p == 1 {
		return 1, nil
	}

	maxIter := inv.MaxIterations
	if maxIter <= 0 {
		maxIter = MaxInverseIterations
	}

	// Solve in the lower half where the residual keeps relative precision:
	// I_x(a,b) = p  <=>  I_(1-x)(b,a) = 1-p.
	if p > 0.5 {
		y, ok, err := solveLower(1-p, b, a, maxIter)
		x := clampUnit(1 - y)
		return x, inverseError(ok, err, maxIter, x)
	}
	x, ok, err := solveLower(p, a, b, maxIter)
	return x, inverseError(ok, err, maxIter, x)
}

func inverseError(ok bool, err error, iterations int, estimate float64) error {
	if err != nil {
		return err
	}
	if !ok {
		return core.NewNonconvergenceError("inverse incomplete beta", iterations, estimate)
	}
	return nil
}

// solveLower finds x with I_x(a,b) = p for p <= 0.5 and reports whether the
// tolerance was met within maxIter evaluations.
func solveLower(p, a, b float64, maxIter int) (float64, bool, error) {
	lbeta := LogBeta(a, b)

	lo, hi := 0.0, 1.0
	x := initialGuess(p, a, b)
	if !(x > lo && x < hi) {
		x = 0.5
	}
	residualOld := math.Inf(1)

	for i := 0; i < maxIter; i++ {
		cdf, err := regularized(x, a, b, lbeta)
		if err != nil {
			return x, false, err
		}
		f := cdf - p
		if f == 0 {
			return x, true, nil
		}
		if f < 0 {
			lo = x
		} else {
			hi = x
		}

		// relative residual, so a CDF that underflowed to 0 counts as far off
		residual := math.Abs(math.Log1p(f / p))
		next, ok := newtonStep(x, f, cdf, p, a, b, lbeta)
		inside := ok && next > lo && next < hi
		if ok && math.Abs(next-x) <= InverseTolerance*x {
			// a step that rounds onto a bracket end has nothing left to refine
			if inside {
				return next, true, nil
			}
			return x, true, nil
		}
		if !inside || residual >= residualOld {
			next = bisect(lo, hi)
		}

		residualOld = residual
		x = next

		// the second test catches roots that underflow float64
		if hi-lo <= InverseTolerance*hi || hi <= math.SmallestNonzeroFloat64 {
			return x, true, nil
		}
	}

	return x, hi-lo <= InverseTolerance, nil
}

// newtonStep proposes the next iterate, or false when no derivative is usable.
func newtonStep(x, f, cdf, p, a, b, lbeta float64) (float64, bool) {
	if x <= 0 || x >= 1 {
		return 0, false
	}
	// x times the density, in log form so a < 1 cannot overflow near 0
	xpdf := math.Exp(a*math.Log(x) + (b-1)*math.Log1p(-x) - lbeta)
	if cdf > 0 && xpdf > 0 && !math.IsInf(xpdf, 0) {
		// d log I / d log x = x*pdf / cdf
		return x * math.Exp(-math.Log1p(f/p)*cdf/xpdf), true
	}
	if pdf := xpdf / x; pdf > 0 && !math.IsInf(pdf, 0) {
		return x - f/pdf, true
	}
	return 0, false
}

// bisect splits the bracket at its geometric mean, so a root many orders of
// magnitude below hi is reached in a few dozen steps. An open lower end is
// treated as the smallest positive float64.
func bisect(lo, hi float64) float64 {
	lo = math.Max(lo, math.SmallestNonzeroFloat64)
	mid := math.Sqrt(lo) * math.Sqrt(hi)
	if !(mid > lo && mid < hi) {
		mid = lo + (hi-lo)/2
	}
	return mid
}

// initialGuess approximates the Beta(a,b) quantile at p <= 0.5.
//
// For a, b >= 1 it uses Abramowitz & Stegun 26.5.22, which maps a standard
// normal quantile onto the beta scale. Otherwise it inverts the leading terms
// of the power-law tails at either end.
func initialGuess(p, a, b float64) float64 {
	if a >= 1 && b >= 1 {
		// upper-tail normal deviate, positive for p < 0.5
		z := -distuv.UnitNormal.Quantile(p)
		lambda := (z*z - 3) / 6
		h := 2 / (1/(2*a-1) + 1/(2*b-1))
		w := z*math.Sqrt(h+lambda)/h - (1/(2*b-1)-1/(2*a-1))*(lambda+5.0/6-2/(3*h))
		return a / (a + b*math.Exp(2*w))
	}

	lna := math.Log(a / (a + b))
	lnb := math.Log(b / (a + b))
	t := math.Exp(a*lna) / a
	u := math.Exp(b*lnb) / b
	w := t + u
	if p < t/w {
		return math.Pow(a*w*p, 1/a)
	}
	return 1 - math.Pow(b*w*(1-p), 1/b)
}
