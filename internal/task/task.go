// Package task runs one pipeline step on its own goroutine and hands the
// coordinator a handle to await or cancel it.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Handle is the completion and cancellation handle of one running step.
type Handle[T any] struct {
	name   string
	done   chan struct{}
	cancel context.CancelFunc

	once  sync.Once
	value T
	err   error
}

// Go starts fn on a new goroutine with a child context. A panic in fn is
// recovered and reported as the task error.
func Go[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) *Handle[T] {
	taskCtx, cancel := context.WithCancel(ctx)
	h := &Handle[T]{name: name, done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("task %s panicked: %v\n%s", name, r, debug.Stack())
			}
		}()
		h.value, h.err = fn(taskCtx)
	}()
	return h
}

// Name returns the task label.
func (h *Handle[T]) Name() string { return h.name }

// Done is closed once the task has returned.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Cancel asks the task to stop through its context.
func (h *Handle[T]) Cancel() { h.once.Do(h.cancel) }

// Wait blocks until the task finishes. If ctx ends first the task is
// canceled and Wait still waits for it to return, so no step outlives its
// coordinator.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		h.Cancel()
		<-h.done
	}
	return h.value, h.err
}

// Result returns the outcome without blocking; ok is false while running.
func (h *Handle[T]) Result() (value T, err error, ok bool) {
	select {
	case <-h.done:
		return h.value, h.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Run starts fn and waits for it.
func Run[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	return Go(ctx, name, fn).Wait(ctx)
}

// Do runs a step that only reports an error.
func Do(ctx context.Context, name string, fn func(context.Context) error) error {
	_, err := Run(ctx, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
