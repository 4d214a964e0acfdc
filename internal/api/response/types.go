package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/world"
)

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// NoContent writes a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Health is the health check response
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// Session represents a connected player
type Session struct {
	UserID   int64             `json:"user_id"`
	Name     string            `json:"name"`
	JoinedAt time.Time         `json:"joined_at"`
	Data     *model.PlayerData `json:"data,omitempty"`
}

// SessionFromEntity converts a player entity
func SessionFromEntity(e *player.Entity, data *model.PlayerData) Session {
	return Session{
		UserID:   int64(e.UserID),
		Name:     e.Name,
		JoinedAt: e.JoinedAt,
		Data:     data,
	}
}

// SessionList is the response for listing sessions
type SessionList struct {
	Sessions []Session `json:"sessions"`
}

// Character describes a player's current rig
type Character struct {
	RigID          string            `json:"rig_id"`
	State          string            `json:"state"`
	Attached       bool              `json:"attached"`
	CollisionGroup string            `json:"collision_group"`
	Parts          map[string]string `json:"parts"`
}

// CharacterFromRig converts a rig and its readiness state
func CharacterFromRig(rig *world.Rig, state string) Character {
	parts := make(map[string]string)
	for name, class := range rig.Parts() {
		parts[name] = string(class)
	}
	return Character{
		RigID:          rig.ID(),
		State:          state,
		Attached:       rig.Attached(),
		CollisionGroup: rig.CollisionGroup(),
		Parts:          parts,
	}
}

// Decision is the response for a processed receipt
type Decision struct {
	Decision model.PurchaseDecision `json:"decision"`
}
