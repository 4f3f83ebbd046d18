// Package rng provides the seeded random sources behind ports.RNGPort.
package rng

import (
	"context"
	"math/rand"

	"metabostat/ports"
)

// Adapter implements ports.RNGPort on top of math/rand sources.
// Every stream is independent; nothing touches the global source.
type Adapter struct{}

var _ ports.RNGPort = (*Adapter)(nil)

// NewAdapter creates an RNG adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream creates a deterministic random number generator for a named operation.
// The name is not mixed into the seed so the same seed always yields the same stream.
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(seed)), nil
}
