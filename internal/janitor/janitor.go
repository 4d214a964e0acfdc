// Package janitor collects cleanup actions and background tasks that share an
// owner's lifetime. Cleanup runs every registered action exactly once.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type entry struct {
	name string
	fn   func(context.Context) error
}

// Janitor owns the resources of one session or sub-entity
type Janitor struct {
	name   string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries []*entry
	done    bool
	tasks   sync.WaitGroup
}

// New creates a janitor whose context is cancelled on Cleanup
func New(name string, logger *slog.Logger) *Janitor {
	return newJanitor(context.Background(), name, logger)
}

func newJanitor(parent context.Context, name string, logger *slog.Logger) *Janitor {
	ctx, cancel := context.WithCancel(parent)
	return &Janitor{
		name:   name,
		logger: logger.With(slog.String("janitor", name)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled when Cleanup starts
func (j *Janitor) Context() context.Context {
	return j.ctx
}

// Done reports whether Cleanup has started
func (j *Janitor) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// Add registers a cleanup action. The returned func unregisters it without
// running it. If Cleanup already ran, fn runs immediately.
func (j *Janitor) Add(name string, fn func()) (remove func()) {
	return j.AddErr(name, func(context.Context) error {
		fn()
		return nil
	})
}

// AddErr registers a cleanup action that can fail
func (j *Janitor) AddErr(name string, fn func(context.Context) error) (remove func()) {
	e := &entry{name: name, fn: fn}

	j.mu.Lock()
	if j.done {
		j.mu.Unlock()
		if err := j.run(context.Background(), e); err != nil {
			j.logger.Warn("late cleanup failed", slog.String("cleanup", name), slog.String("error", err.Error()))
		}
		return func() {}
	}
	j.entries = append(j.entries, e)
	j.mu.Unlock()

	return func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		for i, other := range j.entries {
			if other == e {
				j.entries = append(j.entries[:i], j.entries[i+1:]...)
				return
			}
		}
	}
}

// Go runs fn on its own goroutine for the janitor's lifetime. Cleanup cancels
// fn's context and waits for it before running cleanup actions. Errors and
// panics are logged. Returns false if Cleanup already started.
func (j *Janitor) Go(name string, fn func(ctx context.Context) error) bool {
	j.mu.Lock()
	if j.done {
		j.mu.Unlock()
		return false
	}
	j.tasks.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.tasks.Done()
		defer func() {
			if p := recover(); p != nil {
				j.logger.Error("task panicked", slog.String("task", name), slog.Any("panic", p))
			}
		}()

		if err := fn(j.ctx); err != nil && !errors.Is(err, context.Canceled) {
			j.logger.Error("task failed", slog.String("task", name), slog.String("error", err.Error()))
		}
	}()
	return true
}

// Child creates a janitor nested in this one. The child is cleaned up with
// its parent, and unregisters itself when cleaned up first. Returns nil if
// this janitor is already cleaned up.
func (j *Janitor) Child(name string) *Janitor {
	j.mu.Lock()
	if j.done {
		j.mu.Unlock()
		return nil
	}
	j.mu.Unlock()

	child := newJanitor(j.ctx, name, j.logger)
	remove := j.AddErr(name, child.Cleanup)
	child.Add("detach from parent", remove)
	return child
}

// Cleanup cancels the context, waits for tasks (bounded by ctx), then runs
// cleanup actions in reverse registration order. Only the first call does
// anything; later calls return nil.
func (j *Janitor) Cleanup(ctx context.Context) error {
	j.mu.Lock()
	if j.done {
		j.mu.Unlock()
		return nil
	}
	j.done = true
	entries := j.entries
	j.entries = nil
	j.mu.Unlock()

	j.cancel()

	waited := make(chan struct{})
	go func() {
		j.tasks.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		j.logger.Warn("cleanup proceeding with tasks still running", slog.String("error", ctx.Err().Error()))
	}

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := j.run(ctx, entries[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}

func (j *Janitor) run(ctx context.Context, e *entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return e.fn(ctx)
}
