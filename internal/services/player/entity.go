package player

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/liveshard/internal/janitor"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/records"
)

// Entity is a fully joined player. It exists from the moment the player's
// record has loaded until the session's janitor has been cleaned up.
type Entity struct {
	UserID   model.UserID
	Name     string
	JoinedAt time.Time

	// Janitor owns everything tied to this session, including the record
	Janitor  *janitor.Janitor
	Document *records.Document

	txMu sync.Mutex
}

// User returns the connection identity of the entity
func (e *Entity) User() model.User {
	return model.User{ID: e.UserID, Name: e.Name}
}

// Context is cancelled when the session is torn down
func (e *Entity) Context() context.Context {
	return e.Janitor.Context()
}

// Exclusive runs fn while holding the session's transaction lock.
// Work that reads then writes the record must run inside it.
func (e *Entity) Exclusive(fn func()) {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	fn()
}
