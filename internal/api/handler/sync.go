package handler

import (
	"net/http"

	"github.com/mcoot/liveshard/internal/statesync"
)

// SyncHandler streams player state to clients
type SyncHandler struct {
	syncer *statesync.Syncer
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncer *statesync.Syncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

// Stream handles GET /api/v1/sync/{user_id}
func (h *SyncHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := userIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.syncer.ServeSSE(w, r, id)
}
