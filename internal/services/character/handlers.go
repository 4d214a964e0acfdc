package character

import (
	"context"

	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/world"
)

// AddedHandler is notified when a player's character becomes ready
type AddedHandler interface {
	OnCharacterAdded(ctx context.Context, rig *world.Rig, e *player.Entity) error
}

// RemovedHandler is notified when a ready character leaves the world
type RemovedHandler interface {
	OnCharacterRemoved(ctx context.Context, e *player.Entity) error
}

// AddedFunc adapts a function to AddedHandler
type AddedFunc func(ctx context.Context, rig *world.Rig, e *player.Entity) error

func (f AddedFunc) OnCharacterAdded(ctx context.Context, rig *world.Rig, e *player.Entity) error {
	return f(ctx, rig, e)
}

// RemovedFunc adapts a function to RemovedHandler
type RemovedFunc func(ctx context.Context, e *player.Entity) error

func (f RemovedFunc) OnCharacterRemoved(ctx context.Context, e *player.Entity) error {
	return f(ctx, e)
}
