package rng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draws(t *testing.T, next func() float64, n int) []float64 {
	t.Helper()
	out := make([]float64, n)
	for i := range out {
		out[i] = next()
	}
	return out
}

func TestSeededStreamIsDeterministic(t *testing.T) {
	adapter := NewSeededAdapter()
	ctx := context.Background()

	a, err := adapter.SeededStream(ctx, "run", 42)
	require.NoError(t, err)
	b, err := adapter.SeededStream(ctx, "run", 42)
	require.NoError(t, err)

	assert.Equal(t, draws(t, a.Float64, 10), draws(t, b.Float64, 10))
}

func TestStreamSeparatesWorkers(t *testing.T) {
	adapter := NewSeededAdapter()
	ctx := context.Background()

	w0, err := adapter.Stream(ctx, "run-1", "report", 0, 7)
	require.NoError(t, err)
	w1, err := adapter.Stream(ctx, "run-1", "report", 1, 7)
	require.NoError(t, err)
	again, err := adapter.Stream(ctx, "run-1", "report", 1, 7)
	require.NoError(t, err)

	first := draws(t, w1.Float64, 5)
	assert.NotEqual(t, draws(t, w0.Float64, 5), first)
	assert.Equal(t, first, draws(t, again.Float64, 5))
}

func TestDeriveSeed(t *testing.T) {
	assert.Equal(t, DeriveSeed("r", "op", 3, 1), DeriveSeed("r", "op", 3, 1))
	assert.NotEqual(t, DeriveSeed("r", "op", 0, 1), DeriveSeed("r", "other", 0, 1))
	assert.NotEqual(t, DeriveSeed("r", "op", 0, 1), DeriveSeed("s", "op", 0, 1))
	assert.Equal(t, int64(9), DeriveSeed("", "", 0, 9))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSeededAdapter().Stream(ctx, "r", "op", 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
