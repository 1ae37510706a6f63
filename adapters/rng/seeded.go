package rng

import (
	"context"
	"math/rand"

	"gobandits/ports"
)

// SeededAdapter hands out deterministic math/rand streams.
type SeededAdapter struct{}

var _ ports.RNGPort = (*SeededAdapter)(nil)

// NewSeededAdapter creates a new seeded RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (r *SeededAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(seed)), nil
}

// Stream derives the seed for one worker from the run, the operation and the worker number.
func (r *SeededAdapter) Stream(ctx context.Context, runID, operation string, worker int, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(DeriveSeed(runID, operation, worker, baseSeed))), nil
}

const workerStride int64 = 0x4F1BBCDCBFA53E0A

// DeriveSeed mixes the stream coordinates into baseSeed.
func DeriveSeed(runID, operation string, worker int, baseSeed int64) int64 {
	seed := baseSeed
	if runID != "" {
		seed = int64(hashString(runID)) + seed
	}
	if operation != "" {
		seed = int64(hashString(operation)) + seed
	}
	// spread workers so neighbouring seeds do not start correlated
	return seed + int64(worker)*workerStride
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
