package statesync

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/datastore"
)

// Event names on the SSE stream
const (
	EventConnected = "connected"
	EventState     = "state"
)

// Syncer pushes reactive cache changes to the owning player's clients
type Syncer struct {
	store  *datastore.Store
	hubs   *HubManager
	logger *slog.Logger

	stop     func()
	stopOnce sync.Once
}

// NewSyncer creates a syncer over the reactive cache
func NewSyncer(store *datastore.Store, logger *slog.Logger) *Syncer {
	logger = logger.With(slog.String("component", "sync"))
	return &Syncer{
		store:  store,
		hubs:   NewHubManager(logger),
		logger: logger,
	}
}

// Start begins observing the reactive cache
func (s *Syncer) Start() {
	s.stop = s.store.Observe(s.changed)
}

// Stop stops observing and disconnects every client. Only the first call
// has effect.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.hubs.CloseAll()
	})
}

// Hubs exposes the hub manager
func (s *Syncer) Hubs() *HubManager {
	return s.hubs
}

func (s *Syncer) changed(id model.UserID, data *model.PlayerData) {
	patch := Payload{Type: PayloadPatch, Players: map[model.UserID]*model.PlayerData{id: data}}
	for _, observer := range s.hubs.UserIDs() {
		s.send(observer, FilterPayload(observer, patch))
	}
}

// Hydrate sends the player's full state to all of their clients
func (s *Syncer) Hydrate(userID model.UserID) {
	s.send(userID, s.initPayload(userID))
}

func (s *Syncer) initPayload(userID model.UserID) Payload {
	p := Payload{Type: PayloadInit, Players: map[model.UserID]*model.PlayerData{}}
	if data, ok := s.store.Get(userID); ok {
		p.Players[userID] = &data
	}
	return p
}

func (s *Syncer) send(observer model.UserID, p Payload) {
	if p.Empty() {
		return
	}
	hub := s.hubs.GetHub(observer)
	if hub == nil {
		return
	}
	data, err := p.encode()
	if err != nil {
		s.logger.Error("failed to encode sync payload", slog.String("error", err.Error()))
		return
	}
	hub.BroadcastEvent(EventState, data)
}

// ServeSSE streams a player's state to one client: an init payload first,
// then patches until the client goes away
func (s *Syncer) ServeSSE(w http.ResponseWriter, r *http.Request, userID model.UserID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	hub := s.hubs.GetOrCreateHub(userID)
	client := NewClient()
	if !hub.Register(client) {
		http.Error(w, "sync closed", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		hub.Unregister(client)
		s.hubs.CleanupEmptyHubs()
	}()

	_, _ = w.Write(formatSSEMessage(EventConnected, `{"status":"connected"}`))
	flusher.Flush()

	if data, err := s.initPayload(userID).encode(); err == nil {
		client.enqueue(formatSSEMessage(EventState, data))
	}

	client.serve(w, r, flusher)
}
