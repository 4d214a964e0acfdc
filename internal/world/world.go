// Package world models the live object graph characters are spawned into.
package world

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/liveshard/internal/model"
)

// RigFactory builds the parts for a freshly requested character and reports
// whether its appearance is already loaded
type RigFactory func(userID model.UserID) (parts []Part, appearanceLoaded bool)

// DefaultRigFactory produces a complete character with its appearance loaded
func DefaultRigFactory(model.UserID) ([]Part, bool) {
	return FullCharacter(), true
}

type addedListener struct {
	id int
	fn func(*Rig)
}

// World tracks the rig currently attached for each user
type World struct {
	logger *slog.Logger

	mu        sync.Mutex
	factory   RigFactory
	rigs      map[model.UserID]*Rig
	listeners map[model.UserID][]addedListener
	loads     map[model.UserID]int
	nextID    int
}

// New creates an empty world
func New(logger *slog.Logger) *World {
	return &World{
		logger:    logger.With(slog.String("component", "world")),
		factory:   DefaultRigFactory,
		rigs:      make(map[model.UserID]*Rig),
		listeners: make(map[model.UserID][]addedListener),
		loads:     make(map[model.UserID]int),
	}
}

// SetRigFactory replaces the factory LoadCharacter uses
func (w *World) SetRigFactory(f RigFactory) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.factory = f
}

// Spawn attaches a new rig for userID, detaching any previous one, and
// notifies character-added listeners before returning.
func (w *World) Spawn(userID model.UserID, parts ...Part) *Rig {
	rig := NewRig(userID, parts...)

	w.mu.Lock()
	previous := w.rigs[userID]
	w.rigs[userID] = rig
	listeners := append([]addedListener(nil), w.listeners[userID]...)
	w.mu.Unlock()

	if previous != nil {
		previous.detach()
	}
	w.logger.Debug("rig spawned", slog.String("user_id", userID.String()), slog.String("rig_id", rig.ID()))
	for _, l := range listeners {
		l.fn(rig)
	}
	return rig
}

// LoadCharacter requests a fresh character for userID from the rig factory
func (w *World) LoadCharacter(ctx context.Context, userID model.UserID) (*Rig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	factory := w.factory
	w.loads[userID]++
	w.mu.Unlock()

	parts, appearanceLoaded := factory(userID)
	rig := w.Spawn(userID, parts...)
	if appearanceLoaded {
		rig.MarkAppearanceLoaded()
	}
	return rig, nil
}

// LoadCount returns how many times a character was requested for userID
func (w *World) LoadCount(userID model.UserID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loads[userID]
}

// CharacterOf returns the rig currently attached for userID
func (w *World) CharacterOf(userID model.UserID) (*Rig, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rig, ok := w.rigs[userID]
	return rig, ok
}

// Detach removes userID's current rig from the world
func (w *World) Detach(userID model.UserID) bool {
	w.mu.Lock()
	rig, ok := w.rigs[userID]
	delete(w.rigs, userID)
	w.mu.Unlock()

	if ok {
		rig.detach()
	}
	return ok
}

// RemovePlayer detaches the user's rig and drops their listeners
func (w *World) RemovePlayer(userID model.UserID) {
	w.Detach(userID)
	w.mu.Lock()
	delete(w.listeners, userID)
	delete(w.loads, userID)
	w.mu.Unlock()
}

// OnCharacterAdded calls fn with every rig spawned for userID
func (w *World) OnCharacterAdded(userID model.UserID, fn func(*Rig)) (unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.listeners[userID] = append(w.listeners[userID], addedListener{id: id, fn: fn})

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		ls := w.listeners[userID]
		for i, l := range ls {
			if l.id == id {
				w.listeners[userID] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
	}
}
