package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/liveshard/internal/api/request"
	"github.com/mcoot/liveshard/internal/api/response"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/services/player"
)

// ModerationHandler handles developer moderation commands
type ModerationHandler struct {
	players    *player.Manager
	moderation platform.Moderation
	logger     *slog.Logger
}

// NewModerationHandler creates a new moderation handler
func NewModerationHandler(players *player.Manager, moderation platform.Moderation, logger *slog.Logger) *ModerationHandler {
	return &ModerationHandler{
		players:    players,
		moderation: moderation,
		logger:     logger.With(slog.String("component", "moderation")),
	}
}

// Kick handles POST /api/v1/moderation/kick
func (h *ModerationHandler) Kick(w http.ResponseWriter, r *http.Request) {
	var req request.KickRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	id, err := positiveUserID(req.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !h.players.IsConnected(id) {
		WriteError(w, model.ErrNotConnected)
		return
	}

	if err := h.moderation.Kick(r.Context(), id, req.Reason); err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Info("player kicked", slog.String("user_id", id.String()))
	response.NoContent(w)
}

// Ban handles POST /api/v1/moderation/ban
func (h *ModerationHandler) Ban(w http.ResponseWriter, r *http.Request) {
	var req request.BanRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	id, err := positiveUserID(req.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if req.DurationSeconds < -1 {
		WriteError(w, NewInvalidRequestError("duration_seconds must be -1 (permanent) or more"))
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.moderation.Ban(r.Context(), id, req.Reason, duration); err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Info("user banned",
		slog.String("user_id", id.String()),
		slog.Duration("duration", duration),
	)
	response.NoContent(w)
}

// Unban handles POST /api/v1/moderation/unban
func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	var req request.UnbanRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	id, err := positiveUserID(req.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.moderation.Unban(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Info("user unbanned", slog.String("user_id", id.String()))
	response.NoContent(w)
}
