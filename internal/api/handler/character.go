package handler

import (
	"net/http"

	"github.com/mcoot/liveshard/internal/api/apierr"
	"github.com/mcoot/liveshard/internal/api/request"
	"github.com/mcoot/liveshard/internal/api/response"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/character"
	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/world"
)

// CharacterHandler handles character rig endpoints
type CharacterHandler struct {
	players    *player.Manager
	characters *character.Service
	world      *world.World
}

// NewCharacterHandler creates a new character handler
func NewCharacterHandler(players *player.Manager, characters *character.Service, w *world.World) *CharacterHandler {
	return &CharacterHandler{players: players, characters: characters, world: w}
}

// Spawn handles POST /api/v1/sessions/{user_id}/character
func (h *CharacterHandler) Spawn(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req request.SpawnCharacterRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			WriteError(w, err)
			return
		}
	}
	if !h.players.IsConnected(id) {
		WriteError(w, model.ErrNotConnected)
		return
	}

	parts := req.Parts
	if len(parts) == 0 {
		parts = world.FullCharacter()
	}
	rig := h.world.Spawn(id, parts...)
	response.JSON(w, http.StatusCreated, h.describe(id, rig))
}

// Detach handles DELETE /api/v1/sessions/{user_id}/character
func (h *CharacterHandler) Detach(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !h.world.Detach(id) {
		WriteError(w, apierr.NewCharacterNotFoundError())
		return
	}
	response.NoContent(w)
}

// Get handles GET /api/v1/sessions/{user_id}/character
func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	rig, ok := h.world.CharacterOf(id)
	if !ok {
		WriteError(w, apierr.NewCharacterNotFoundError())
		return
	}
	response.JSON(w, http.StatusOK, h.describe(id, rig))
}

func (h *CharacterHandler) describe(id model.UserID, rig *world.Rig) response.Character {
	state, _ := h.characters.State(id)
	return response.CharacterFromRig(rig, string(state))
}
