package scheduler

import (
	"context"
	"fmt"
)

// Future is the completion handle of a submitted unit.
type Future struct {
	name string
	done chan struct{}
	err  error
}

func newFuture(name string) *Future {
	return &Future{name: name, done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Name returns the name the unit was submitted with.
func (f *Future) Name() string { return f.name }

// Done is closed once the unit finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the unit finished or ctx ends, returning the unit's error.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait %s: %w", f.name, ctx.Err())
	case <-f.done:
		return f.err
	}
}
