package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mcoot/liveshard/internal/api/request"
	"github.com/mcoot/liveshard/internal/api/response"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/player"
)

// SessionHandler handles session endpoints
type SessionHandler struct {
	players      *player.Manager
	store        *datastore.Store
	readyTimeout time.Duration
}

// NewSessionHandler creates a new session handler. Reads of a session still
// joining wait up to readyTimeout.
func NewSessionHandler(players *player.Manager, store *datastore.Store, readyTimeout time.Duration) *SessionHandler {
	return &SessionHandler{players: players, store: store, readyTimeout: readyTimeout}
}

// Connect handles POST /api/v1/sessions
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req request.ConnectRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	id, err := positiveUserID(req.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.players.OnConnect(r.Context(), model.User{ID: id, Name: req.Name}); err != nil {
		WriteError(w, err)
		return
	}
	e, ok := h.players.GetEntity(id)
	if !ok {
		WriteError(w, model.ErrDisconnectedBeforeReady)
		return
	}
	response.JSON(w, http.StatusCreated, h.session(e))
}

// Disconnect handles DELETE /api/v1/sessions/{user_id}
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !h.players.IsConnected(id) {
		WriteError(w, model.ErrNotConnected)
		return
	}
	// Teardown must finish even if the client goes away.
	if err := h.players.OnDisconnect(context.WithoutCancel(r.Context()), id); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}

// UpdateAudio handles PUT /api/v1/sessions/{user_id}/settings/audio
func (h *SessionHandler) UpdateAudio(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req request.AudioSettingsRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	var updaters []model.Updater
	if req.MusicVolume != nil {
		updaters = append(updaters, model.SetMusicVolume(*req.MusicVolume))
	}
	if req.SFXVolume != nil {
		updaters = append(updaters, model.SetSFXVolume(*req.SFXVolume))
	}
	if len(updaters) == 0 {
		WriteError(w, NewInvalidRequestError("music_volume or sfx_volume is required"))
		return
	}

	e, ok := h.players.GetEntity(id)
	if !ok {
		WriteError(w, model.ErrNotConnected)
		return
	}
	if _, ok := h.store.Update(id, model.Compose(updaters...)); !ok {
		WriteError(w, model.ErrNotConnected)
		return
	}
	response.JSON(w, http.StatusOK, h.session(e))
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	entities := h.players.Entities()
	out := response.SessionList{Sessions: make([]response.Session, 0, len(entities))}
	for _, e := range entities {
		out.Sessions = append(out.Sessions, response.SessionFromEntity(e, nil))
	}
	response.JSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/sessions/{user_id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()
	e, err := h.players.GetEntityAsync(ctx, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, h.session(e))
}

func (h *SessionHandler) session(e *player.Entity) response.Session {
	var data *model.PlayerData
	if d, ok := h.store.Get(e.UserID); ok {
		data = &d
	}
	return response.SessionFromEntity(e, data)
}
