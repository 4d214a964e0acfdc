// Package character tracks each player's character rig from spawn until it
// is usable, and notifies features when it becomes ready or goes away.
package character

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/liveshard/internal/dependencies/clock"
	"github.com/mcoot/liveshard/internal/lifecycle"
	"github.com/mcoot/liveshard/internal/metrics"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/world"
)

// State is where a player's current rig is in its lifecycle
type State string

const (
	StateLoading      State = "Loading"
	StateReady        State = "Ready"
	StateRetryPending State = "RetryPending"
	StateRemoved      State = "Removed"
)

const (
	CollisionGroupCharacter = "Character"
	TagPlayerCharacter      = "PlayerCharacter"
	TagPlayerHead           = "PlayerHead"
)

// Config holds readiness timeouts
type Config struct {
	// LoadTimeout bounds each attempt to validate a rig's shape
	LoadTimeout time.Duration
	// AppearanceTimeout bounds the wait for a ready rig's appearance
	AppearanceTimeout time.Duration
	// AutoLoad requests a character when a player joins without one
	AutoLoad bool
}

// DefaultConfig returns the standard timeouts
func DefaultConfig() Config {
	return Config{
		LoadTimeout:       10 * time.Second,
		AppearanceTimeout: 5 * time.Second,
		AutoLoad:          true,
	}
}

// tracker follows the current rig of one player. Guarded by Service.mu.
type tracker struct {
	rig     *world.Rig
	state   State
	ready   *world.Rig
	settled chan struct{}
}

// Service runs the readiness state machine for every player's rig
type Service struct {
	cfg     Config
	world   *world.World
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	added   *lifecycle.Registry[AddedHandler]
	removed *lifecycle.Registry[RemovedHandler]

	mu       sync.Mutex
	trackers map[model.UserID]*tracker
	changed  chan struct{}
}

// New creates a character service
func New(cfg Config, w *world.World, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Service {
	logger = logger.With(slog.String("component", "character"))
	s := &Service{
		cfg:      cfg,
		world:    w,
		clock:    clk,
		metrics:  m,
		logger:   logger,
		added:    lifecycle.New[AddedHandler]("character-added", logger),
		removed:  lifecycle.New[RemovedHandler]("character-removed", logger),
		trackers: make(map[model.UserID]*tracker),
		changed:  make(chan struct{}),
	}
	fault := func(registry, _ string, _ error) { m.HandlerFault(registry) }
	s.added.OnFault(fault)
	s.removed.OnFault(fault)
	return s
}

// Added is the registry of handlers run when a character becomes ready
func (s *Service) Added() *lifecycle.Registry[AddedHandler] {
	return s.added
}

// Removed is the registry of handlers run when a ready character goes away
func (s *Service) Removed() *lifecycle.Registry[RemovedHandler] {
	return s.removed
}

// OnPlayerJoin starts following the player's rigs for the rest of the session
func (s *Service) OnPlayerJoin(ctx context.Context, e *player.Entity) error {
	s.mu.Lock()
	s.trackers[e.UserID] = &tracker{}
	s.mu.Unlock()

	e.Janitor.Add("character tracking", func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.trackers, e.UserID)
		s.broadcastLocked()
	})
	unsubscribe := s.world.OnCharacterAdded(e.UserID, func(rig *world.Rig) {
		s.characterAdded(e, rig)
	})
	e.Janitor.Add("character-added subscription", unsubscribe)

	if rig, ok := s.world.CharacterOf(e.UserID); ok {
		s.characterAdded(e, rig)
		return nil
	}
	if s.cfg.AutoLoad {
		if _, err := s.world.LoadCharacter(ctx, e.UserID); err != nil {
			return fmt.Errorf("load character: %w", err)
		}
	}
	return nil
}

// OnPlayerLeave removes the player's rig from the world and waits for the
// removal to be processed, so removed handlers see a live entity.
func (s *Service) OnPlayerLeave(ctx context.Context, e *player.Entity) error {
	s.mu.Lock()
	var settled chan struct{}
	if t := s.trackers[e.UserID]; t != nil {
		settled = t.settled
	}
	s.mu.Unlock()

	s.world.RemovePlayer(e.UserID)
	if settled == nil {
		return nil
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// characterAdded starts supervising a newly spawned rig
func (s *Service) characterAdded(e *player.Entity, rig *world.Rig) {
	s.mu.Lock()
	t := s.trackers[e.UserID]
	if t == nil || t.rig == rig {
		s.mu.Unlock()
		return
	}
	settled := make(chan struct{})
	t.rig = rig
	t.state = StateLoading
	t.settled = settled
	s.broadcastLocked()
	s.mu.Unlock()

	started := e.Janitor.Go("character "+rig.ID(), func(ctx context.Context) error {
		defer close(settled)
		return s.supervise(ctx, e, rig)
	})
	if !started {
		close(settled)
	}
}

// supervise drives one rig through Loading to Ready, and Ready to Removed
func (s *Service) supervise(ctx context.Context, e *player.Entity, rig *world.Rig) error {
	start := s.clock.Now()
	log := s.logger.With(slog.String("user_id", e.UserID.String()), slog.String("rig_id", rig.ID()))

	err := s.waitForShape(ctx, rig)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, model.ErrRigDetached):
		log.Debug("character removed before it was ready")
		s.setState(e.UserID, rig, StateRemoved)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("getting full rig timed out, retrying")
		s.setState(e.UserID, rig, StateRetryPending)
		s.metrics.CharacterRetry()
		if _, err := s.world.LoadCharacter(ctx, e.UserID); err != nil && ctx.Err() == nil {
			return fmt.Errorf("retry character load: %w", err)
		}
		return nil
	default:
		return err
	}

	if !s.markReady(e.UserID, rig) {
		return nil
	}
	s.metrics.CharacterBecameReady(s.clock.Since(start))
	log.Info("character ready")

	child := e.Janitor.Child("rig " + rig.ID())
	if child == nil {
		return nil
	}
	previous := rig.SetCollisionGroup(CollisionGroupCharacter)
	child.Add("collision group", func() { rig.SetCollisionGroup(previous) })
	rig.AddTag(TagPlayerCharacter)
	child.Add("character tag", func() { rig.RemoveTag(TagPlayerCharacter) })

	s.added.Start(child.Go, func(ctx context.Context, h AddedHandler) error {
		return h.OnCharacterAdded(ctx, rig, e)
	})
	child.Go("character appearance", func(ctx context.Context) error {
		s.awaitAppearance(ctx, log, rig)
		return nil
	})

	select {
	case <-rig.Detached():
	case <-ctx.Done():
		return nil
	}

	if err := child.Cleanup(ctx); err != nil {
		log.Warn("rig cleanup incomplete", slog.String("error", err.Error()))
	}
	s.setState(e.UserID, rig, StateRemoved)
	log.Info("character removed")
	s.removed.Run(ctx, func(ctx context.Context, h RemovedHandler) error {
		return h.OnCharacterRemoved(ctx, e)
	})
	return nil
}

func (s *Service) waitForShape(ctx context.Context, rig *world.Rig) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()
	return rig.WaitFor(attemptCtx, world.CharacterSchema)
}

func (s *Service) awaitAppearance(ctx context.Context, log *slog.Logger, rig *world.Rig) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AppearanceTimeout)
	defer cancel()

	select {
	case <-rig.AppearanceLoaded():
		if err := rig.TagPart("Head", TagPlayerHead); err != nil {
			log.Info("character appearance did not load", slog.String("reason", err.Error()))
		}
	case <-rig.Detached():
		log.Info("character appearance did not load", slog.String("reason", model.ErrRigDetached.Error()))
	case <-ctx.Done():
		log.Info("character appearance did not load", slog.String("reason", ctx.Err().Error()))
	}
}

// markReady moves rig to Ready if it is still the player's current, attached rig
func (s *Service) markReady(id model.UserID, rig *world.Rig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackers[id]
	if t == nil || t.rig != rig || !rig.Attached() {
		return false
	}
	t.state = StateReady
	t.ready = rig
	s.broadcastLocked()
	return true
}

// setState records a transition for rig. A rig that has been replaced no
// longer drives the player's state, but still releases its readiness.
func (s *Service) setState(id model.UserID, rig *world.Rig, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackers[id]
	if t == nil {
		return
	}
	if t.ready == rig && state != StateReady {
		t.ready = nil
	}
	if t.rig == rig {
		t.state = state
	}
	s.broadcastLocked()
}

func (s *Service) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// State returns the state of the player's current rig
func (s *Service) State(id model.UserID) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackers[id]
	if t == nil || t.rig == nil {
		return "", false
	}
	return t.state, true
}

// GetCharacterRig returns the player's rig if it is ready
func (s *Service) GetCharacterRig(id model.UserID) (*world.Rig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackers[id]
	if t == nil || t.ready == nil {
		return nil, false
	}
	return t.ready, true
}

// AwaitReady blocks until the player has a ready rig or ctx is done
func (s *Service) AwaitReady(ctx context.Context, id model.UserID) (*world.Rig, error) {
	for {
		s.mu.Lock()
		t := s.trackers[id]
		if t != nil && t.ready != nil {
			rig := t.ready
			s.mu.Unlock()
			return rig, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", model.ErrCharacterNotReady, ctx.Err())
		case <-changed:
		}
	}
}

// WithRig adapts fn to be called by user id. If the player has no ready rig
// the call is logged and the zero value returned.
func WithRig[R any](s *Service, fn func(*world.Rig) R) func(model.UserID) R {
	return func(id model.UserID) R {
		rig, ok := s.GetCharacterRig(id)
		if !ok {
			s.logger.Info("could not get character rig", slog.String("user_id", id.String()))
			var zero R
			return zero
		}
		return fn(rig)
	}
}
