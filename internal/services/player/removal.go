package player

import (
	"context"
	"log/slog"

	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
)

// Removal kicks players from the shard
type Removal struct {
	moderation platform.Moderation
	logger     *slog.Logger
}

// NewRemoval creates a Removal backed by the platform's moderation API
func NewRemoval(moderation platform.Moderation, logger *slog.Logger) *Removal {
	return &Removal{
		moderation: moderation,
		logger:     logger.With(slog.String("component", "player-removal")),
	}
}

// RemoveForBug kicks a player whose session could not be set up
func (r *Removal) RemoveForBug(ctx context.Context, user model.User, code model.KickCode) {
	r.logger.Warn("kicking player for bug",
		slog.String("user_id", user.ID.String()),
		slog.String("name", user.Name),
		slog.String("code", string(code)),
	)
	if err := r.moderation.Kick(ctx, user.ID, code.Message()); err != nil {
		r.logger.Error("failed to kick player",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
