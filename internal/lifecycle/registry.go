// Package lifecycle provides ordered handler registries for session events.
//
// Handlers are collected during startup and frozen before the first dispatch.
// A handler's error or panic is logged and never reaches its siblings or the
// dispatcher.
package lifecycle

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultPriority is the load order used when a feature has no preference
const DefaultPriority = 1

// Registration is one handler in a registry
type Registration[T any] struct {
	ID       string
	Priority int
	Handler  T
}

// FaultHook observes handler failures, e.g. for metrics
type FaultHook func(registry, id string, err error)

// Registry holds handlers for one event kind
type Registry[T any] struct {
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	pending  []Registration[T]
	frozen   []Registration[T]
	isFrozen bool
	onFault  FaultHook
}

// New creates an empty, unfrozen registry
func New[T any](name string, logger *slog.Logger) *Registry[T] {
	return &Registry[T]{
		name:   name,
		logger: logger.With(slog.String("registry", name)),
	}
}

// Name returns the registry name
func (r *Registry[T]) Name() string {
	return r.name
}

// OnFault sets a hook called for every handler failure
func (r *Registry[T]) OnFault(hook FaultHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFault = hook
}

// Register adds a handler. Lower priorities run first. After Freeze the
// registration is rejected and false is returned.
func (r *Registry[T]) Register(id string, priority int, handler T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isFrozen {
		r.logger.Warn("handler registered after freeze, ignoring", slog.String("handler", id))
		return false
	}
	r.pending = append(r.pending, Registration[T]{ID: id, Priority: priority, Handler: handler})
	return true
}

// Freeze sorts the collected handlers by ascending priority, keeping
// registration order between equal priorities. Only the first call has effect.
func (r *Registry[T]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freezeLocked()
}

func (r *Registry[T]) freezeLocked() {
	if r.isFrozen {
		return
	}
	r.frozen = slices.Clone(r.pending)
	slices.SortStableFunc(r.frozen, func(a, b Registration[T]) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	r.pending = nil
	r.isFrozen = true
	r.logger.Debug("registry frozen", slog.Int("handlers", len(r.frozen)))
}

// Frozen reports whether Freeze has run
func (r *Registry[T]) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isFrozen
}

// Handlers returns the dispatch order, freezing the registry if needed
func (r *Registry[T]) Handlers() []Registration[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freezeLocked()
	return slices.Clone(r.frozen)
}

// Run calls each handler in priority order, one at a time, and returns once
// all have settled. Handlers not yet started are skipped if ctx is done.
func (r *Registry[T]) Run(ctx context.Context, call func(context.Context, T) error) {
	for _, reg := range r.Handlers() {
		if ctx.Err() != nil {
			r.logger.Debug("dispatch cancelled", slog.String("handler", reg.ID))
			return
		}
		r.invoke(ctx, reg, call)
	}
}

// Fanout calls every handler concurrently and returns once all have settled
func (r *Registry[T]) Fanout(ctx context.Context, call func(context.Context, T) error) {
	var g errgroup.Group
	for _, reg := range r.Handlers() {
		g.Go(func() error {
			r.invoke(ctx, reg, call)
			return nil
		})
	}
	_ = g.Wait()
}

// Spawner starts fn as an owned background task, reporting false once the
// owner no longer accepts work. janitor.Janitor.Go satisfies it.
type Spawner func(name string, fn func(ctx context.Context) error) bool

// Start launches each handler as its own task through spawn, in priority
// order, without waiting for any of them. It stops at the first handler the
// spawner refuses and returns how many were started.
func (r *Registry[T]) Start(spawn Spawner, call func(context.Context, T) error) int {
	started := 0
	for _, reg := range r.Handlers() {
		ok := spawn(r.name+" "+reg.ID, func(ctx context.Context) error {
			r.invoke(ctx, reg, call)
			return nil
		})
		if !ok {
			r.logger.Debug("dispatch refused", slog.String("handler", reg.ID))
			break
		}
		started++
	}
	return started
}

func (r *Registry[T]) invoke(ctx context.Context, reg Registration[T], call func(context.Context, T) error) {
	defer func() {
		if p := recover(); p != nil {
			r.fault(reg, fmt.Errorf("panic: %v", p))
		}
	}()
	if err := call(ctx, reg.Handler); err != nil {
		r.fault(reg, err)
	}
}

func (r *Registry[T]) fault(reg Registration[T], err error) {
	r.logger.Error("handler failed",
		slog.String("handler", reg.ID),
		slog.Int("priority", reg.Priority),
		slog.String("error", err.Error()),
	)
	r.mu.Lock()
	hook := r.onFault
	r.mu.Unlock()
	if hook != nil {
		hook(r.name, reg.ID, err)
	}
}
