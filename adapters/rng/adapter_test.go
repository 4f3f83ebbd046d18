package rng

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededStream_Deterministic(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter()

	r1, err := a.SeededStream(ctx, "shuffle", 7)
	require.NoError(t, err)
	r2, err := a.SeededStream(ctx, "other-name", 7)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.Equal(t, r1.Int63(), r2.Int63(), "draw %d", i)
	}
}

func TestSeededStream_MatchesMathRand(t *testing.T) {
	r, err := NewAdapter().SeededStream(context.Background(), "check", 99)
	require.NoError(t, err)

	ref := rand.New(rand.NewSource(99))
	for i := 0; i < 3; i++ {
		assert.Equal(t, ref.Float64(), r.Float64(), "draw %d", i)
	}
}

func TestSeededStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAdapter().SeededStream(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}
