package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/liveshard/internal/api/handler"
	"github.com/mcoot/liveshard/internal/api/middleware"
	"github.com/mcoot/liveshard/internal/api/response"
	"github.com/mcoot/liveshard/internal/metrics"
	sharedmw "github.com/mcoot/liveshard/internal/middleware"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/services/character"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/mtx"
	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/statesync"
	"github.com/mcoot/liveshard/internal/world"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Players    *player.Manager
	Store      *datastore.Store
	Characters *character.Service
	World      *world.World
	Mtx        *mtx.Service
	Sync       *statesync.Syncer
	Moderation platform.Moderation
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	// IsDeveloper guards the moderation routes
	IsDeveloper func(model.UserID) bool
	// ReadyTimeout bounds how long a session read waits for a joining player
	ReadyTimeout time.Duration
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	readyTimeout := cfg.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 10 * time.Second
	}

	// Create handlers
	sessionHandler := handler.NewSessionHandler(cfg.Players, cfg.Store, readyTimeout)
	characterHandler := handler.NewCharacterHandler(cfg.Players, cfg.Characters, cfg.World)
	mtxHandler := handler.NewMtxHandler(cfg.Players, cfg.Mtx)
	syncHandler := handler.NewSyncHandler(cfg.Sync)
	moderationHandler := handler.NewModerationHandler(cfg.Players, cfg.Moderation, cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(sharedmw.Logging(cfg.Logger))
	api.Use(middleware.Metrics(cfg.Metrics))

	api.HandleFunc("/health", healthHandler(cfg.Players)).Methods(http.MethodGet)

	// Session routes
	api.HandleFunc("/sessions", sessionHandler.Connect).Methods(http.MethodPost)
	api.HandleFunc("/sessions", sessionHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{user_id}", sessionHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{user_id}", sessionHandler.Disconnect).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{user_id}/settings/audio", sessionHandler.UpdateAudio).Methods(http.MethodPut)

	// Character routes
	api.HandleFunc("/sessions/{user_id}/character", characterHandler.Spawn).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{user_id}/character", characterHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{user_id}/character", characterHandler.Detach).Methods(http.MethodDelete)

	// Transaction routes
	api.HandleFunc("/receipts", mtxHandler.ProcessReceipt).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{user_id}/gamepasses/{pass_id}/purchase-finished", mtxHandler.PurchaseFinished).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{user_id}/gamepasses/{pass_id}/active", mtxHandler.SetActive).Methods(http.MethodPut)

	// State sync stream
	api.HandleFunc("/sync/{user_id}", syncHandler.Stream).Methods(http.MethodGet)

	// Moderation routes (developers only)
	moderation := api.PathPrefix("/moderation").Subrouter()
	moderation.Use(middleware.Developer(cfg.IsDeveloper))
	moderation.HandleFunc("/kick", moderationHandler.Kick).Methods(http.MethodPost)
	moderation.HandleFunc("/ban", moderationHandler.Ban).Methods(http.MethodPost)
	moderation.HandleFunc("/unban", moderationHandler.Unban).Methods(http.MethodPost)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func healthHandler(players *player.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status:   "ok",
			Sessions: len(players.Entities()),
		})
	}
}
