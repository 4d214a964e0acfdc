package player

import "context"

// JoinHandler is notified once a player has fully joined. Handlers run on a
// task owned by the session; ctx is cancelled when the session ends.
type JoinHandler interface {
	OnPlayerJoin(ctx context.Context, e *Entity) error
}

// LeaveHandler is notified before a player's session is torn down. The
// record is still open and can be read or written.
type LeaveHandler interface {
	OnPlayerLeave(ctx context.Context, e *Entity) error
}

// JoinFunc adapts a function to JoinHandler
type JoinFunc func(ctx context.Context, e *Entity) error

func (f JoinFunc) OnPlayerJoin(ctx context.Context, e *Entity) error {
	return f(ctx, e)
}

// LeaveFunc adapts a function to LeaveHandler
type LeaveFunc func(ctx context.Context, e *Entity) error

func (f LeaveFunc) OnPlayerLeave(ctx context.Context, e *Entity) error {
	return f(ctx, e)
}
