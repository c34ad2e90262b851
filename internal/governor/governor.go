// Package governor bounds the number of in-flight fetches with a counting
// semaphore, independent of batch size.
package governor

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Governor is a counting semaphore of fixed size. One slot must be held for
// the duration of each fetch and released on every exit path.
type Governor struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a Governor with the given slot count. size <= 0 falls back
// to a single slot.
func New(size int) *Governor {
	if size <= 0 {
		size = 1
	}
	return &Governor{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the configured slot count.
func (g *Governor) Size() int {
	return g.size
}

// Acquire blocks until a slot is free, respecting the context.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	return nil
}

// Release frees a previously acquired slot.
func (g *Governor) Release() {
	g.sem.Release(1)
}
