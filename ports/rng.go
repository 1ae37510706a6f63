package ports

import (
	"context"
	"math/rand"
)

// UniformSource yields uniform draws in [0,1). *rand.Rand satisfies it.
type UniformSource interface {
	Float64() float64
}

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream derives an independent deterministic stream for one worker of an operation,
	// so parallel workers never share a source.
	Stream(ctx context.Context, runID, operation string, worker int, baseSeed int64) (*rand.Rand, error)
}
