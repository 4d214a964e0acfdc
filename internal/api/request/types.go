package request

import "github.com/mcoot/liveshard/internal/world"

// ConnectRequest is the request body for connecting a player
type ConnectRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// SpawnCharacterRequest is the request body for spawning a rig.
// With no parts a full character is spawned.
type SpawnCharacterRequest struct {
	Parts []world.Part `json:"parts,omitempty"`
}

// AudioSettingsRequest is the request body for changing a player's volumes.
// Omitted fields are left unchanged.
type AudioSettingsRequest struct {
	MusicVolume *float64 `json:"music_volume,omitempty"`
	SFXVolume   *float64 `json:"sfx_volume,omitempty"`
}

// ReceiptRequest is the request body for a purchase receipt
type ReceiptRequest struct {
	PurchaseID    string `json:"purchase_id"`
	PlayerID      int64  `json:"player_id"`
	ProductID     string `json:"product_id"`
	CurrencySpent int64  `json:"currency_spent"`
}

// PurchaseFinishedRequest is the request body for a closed game pass prompt
type PurchaseFinishedRequest struct {
	Purchased bool `json:"purchased"`
}

// SetActiveRequest is the request body for toggling a game pass
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// KickRequest is the request body for kicking a player
type KickRequest struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// BanRequest is the request body for banning a user
type BanRequest struct {
	UserID          int64  `json:"user_id"`
	Reason          string `json:"reason"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// UnbanRequest is the request body for lifting a ban
type UnbanRequest struct {
	UserID int64 `json:"user_id"`
}
