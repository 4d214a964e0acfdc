// Package statesync replicates player records to that player's own clients.
//
// A client receives one init payload when it connects and a patch payload
// for every later change. Payloads are filtered so each client only ever sees
// its own player's slice of state.
package statesync

import (
	"encoding/json"

	"github.com/mcoot/liveshard/internal/model"
)

// PayloadType distinguishes a full hydration from an incremental change
type PayloadType string

const (
	PayloadInit  PayloadType = "init"
	PayloadPatch PayloadType = "patch"
)

// Payload carries player state keyed by user. A nil entry in a patch means
// the player's state was removed.
type Payload struct {
	Type    PayloadType                        `json:"type"`
	Players map[model.UserID]*model.PlayerData `json:"players"`
}

// FilterPayload keeps only the observer's own entry
func FilterPayload(observer model.UserID, p Payload) Payload {
	out := Payload{Type: p.Type, Players: map[model.UserID]*model.PlayerData{}}
	if data, ok := p.Players[observer]; ok {
		out.Players[observer] = data
	}
	return out
}

// Empty reports whether the payload carries nothing
func (p Payload) Empty() bool {
	return len(p.Players) == 0
}

func (p Payload) encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
