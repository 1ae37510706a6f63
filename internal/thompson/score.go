package thompson

import (
	"fmt"
	"math"

	"gobandits/domain/arms"
	"gobandits/domain/core"
)

// RuntimeScale converts a runtime in milliseconds into a speed weight,
// RuntimeScale / runtime. Any positive value preserves ordering between known
// runtimes; its magnitude sets how bias units trade against runtime units.
const RuntimeScale = 100.0

// UnknownRuntimeScore is returned for arms without a runtime estimate so they
// run before any arm whose runtime is known.
const UnknownRuntimeScore = math.MaxFloat64

// maxKnownScore keeps overflowing known-runtime scores strictly below the sentinel.
var maxKnownScore = math.Nextafter(math.MaxFloat64, 0)

// SkewedScore weights a posterior sample by speed and user bias:
// raw * (RuntimeScale / runtime) * bias. A bias of k makes an arm worth one
// that runs k times faster.
func SkewedScore(raw float64, runtime arms.Runtime, bias float64) (float64, error) {
	if err := ValidateBias(bias); err != nil {
		return 0, err
	}
	ms, known := runtime.Get()
	if !known {
		return UnknownRuntimeScore, nil
	}
	if err := ValidateRuntime(ms); err != nil {
		return 0, err
	}
	// RuntimeScale/ms overflows for subnormal runtimes; 0 * Inf would be NaN
	weighted := raw * bias
	if weighted == 0 {
		return 0, nil
	}
	return math.Min(weighted*(RuntimeScale/ms), maxKnownScore), nil
}

// PlainScore ignores runtime: raw * bias.
func PlainScore(raw, bias float64) (float64, error) {
	if err := ValidateBias(bias); err != nil {
		return 0, err
	}
	return raw * bias, nil
}

// ValidateBias rejects NaN, infinite and negative biases.
func ValidateBias(bias float64) error {
	if math.IsNaN(bias) || math.IsInf(bias, 0) || bias < 0 {
		return fmt.Errorf("%w=%v", core.ErrInvalidBias, bias)
	}
	return nil
}

// ValidateRuntime rejects known runtimes that are not finite and positive.
func ValidateRuntime(ms float64) error {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return fmt.Errorf("%w=%v", core.ErrInvalidRuntime, ms)
	}
	return nil
}
