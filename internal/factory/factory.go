package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcoot/liveshard/internal/config"
	"github.com/mcoot/liveshard/internal/dependencies/clock"
	"github.com/mcoot/liveshard/internal/dependencies/random"
	"github.com/mcoot/liveshard/internal/features"
	"github.com/mcoot/liveshard/internal/lifecycle"
	"github.com/mcoot/liveshard/internal/metrics"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/services/badge"
	"github.com/mcoot/liveshard/internal/services/character"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/mtx"
	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/services/records"
	"github.com/mcoot/liveshard/internal/statesync"
	"github.com/mcoot/liveshard/internal/storage"
	"github.com/mcoot/liveshard/internal/storage/memory"
	redisstorage "github.com/mcoot/liveshard/internal/storage/redis"
	"github.com/mcoot/liveshard/internal/storage/sqlite"
	"github.com/mcoot/liveshard/internal/world"
)

// Join handler priorities. Characters start supervising before anything
// that may want the rig.
const (
	priorityCharacters = 0
	priorityMtx        = 1
	priorityBadges     = 2
)

// App contains all wired application components
type App struct {
	Settings config.Config
	Catalog  model.Catalog

	// Storage
	Storage storage.Storage

	// External dependencies
	Clock    clock.Clock
	Random   random.Random
	Platform platform.Platform
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Services
	Records    *records.Collection
	Store      *datastore.Store
	World      *world.World
	Players    *player.Manager
	Characters *character.Service
	Mtx        *mtx.Service
	Badges     *badge.Service
	Sync       *statesync.Syncer

	logger *slog.Logger
	stop   context.CancelFunc
	done   chan struct{}
}

// Config holds configuration for the application factory
type Config struct {
	// Settings are the shard settings, usually from config.Load
	Settings config.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// Platform is the external platform (optional)
	// If nil, a local platform seeded with the catalog is used
	Platform platform.Platform
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	clk := clock.New()
	rnd := random.New()

	var store storage.Storage
	switch cfg.Settings.StorageType {
	case config.StorageMemory, "":
		store = memory.NewWithClock(clk)
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.Settings.RedisURL
		redisCfg.KeyPrefix = cfg.Settings.RedisPrefix
		s, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		store = s
	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.Settings.SQLitePath, clk)
		if err != nil {
			return nil, fmt.Errorf("sqlite storage: %w", err)
		}
		store = s
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis' or 'sqlite'")
	}

	catalog := model.CatalogFor(cfg.Settings.Env())
	plat := cfg.Platform
	if plat == nil {
		plat = platform.NewLocalFromCatalog(catalog, rnd, logger)
	}

	reg := prometheus.NewRegistry()
	app, err := newWithDependencies(cfg.Settings, catalog, store, clk, rnd, plat, reg, reg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	settings config.Config,
	catalog model.Catalog,
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	plat platform.Platform,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) (*App, error) {
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	recordsCfg := records.DefaultConfig()
	if settings.RecordCollection != "" {
		recordsCfg.Name = settings.RecordCollection
	}
	if settings.RecordLockTTL > 0 {
		recordsCfg.LockTTL = settings.RecordLockTTL
	}
	collection := records.New(store, recordsCfg, clk, logger)

	cache := datastore.New()
	w := world.New(logger)
	players := player.NewManager(
		player.Config{HoldOpen: settings.HoldOpen()},
		collection,
		cache,
		player.NewRemoval(plat, logger),
		clk,
		m,
		logger,
	)

	charCfg := character.DefaultConfig()
	if settings.CharacterLoadTimeout > 0 {
		charCfg.LoadTimeout = settings.CharacterLoadTimeout
	}
	if settings.AppearanceTimeout > 0 {
		charCfg.AppearanceTimeout = settings.AppearanceTimeout
	}
	charCfg.AutoLoad = settings.CharacterAutoLoad
	characters := character.New(charCfg, w, clk, m, logger)

	mtxCfg := mtx.DefaultConfig()
	if settings.ReceiptLogSize > 0 {
		mtxCfg.ReceiptLogSize = settings.ReceiptLogSize
	}
	if settings.NetworkRetryAttempts > 0 {
		mtxCfg.RetryAttempts = settings.NetworkRetryAttempts
	}
	if settings.NetworkRetryDelay > 0 {
		mtxCfg.RetryDelay = settings.NetworkRetryDelay
	}
	transactions := mtx.New(mtxCfg, catalog, players, cache, plat, clk, m, logger)
	badges := badge.New(catalog, cache, plat, m, logger)

	players.Joins().Register("characters", priorityCharacters, characters)
	players.Joins().Register("mtx", priorityMtx, transactions)
	players.Joins().Register("badges", priorityBadges, badges)
	players.Leaves().Register("characters", lifecycle.DefaultPriority, characters)

	app := &App{
		Settings:   settings,
		Catalog:    catalog,
		Storage:    store,
		Clock:      clk,
		Random:     rnd,
		Platform:   plat,
		Metrics:    m,
		Gatherer:   gatherer,
		Records:    collection,
		Store:      cache,
		World:      w,
		Players:    players,
		Characters: characters,
		Mtx:        transactions,
		Badges:     badges,
		Sync:       statesync.NewSyncer(cache, logger),
		logger:     logger.With(slog.String("component", "app")),
	}

	if local, ok := plat.(*platform.Local); ok {
		local.OnKick(app.kicked)
	}

	if err := features.Register(features.Deps{
		Catalog:    catalog,
		Store:      cache,
		Mtx:        transactions,
		Characters: characters,
		Logger:     logger,
	}); err != nil {
		return nil, fmt.Errorf("register features: %w", err)
	}
	app.Freeze()
	return app, nil
}

// kicked drops the session of a kicked player, as the platform would
func (a *App) kicked(k platform.Kick) {
	go func() {
		if err := a.Players.OnDisconnect(context.Background(), k.UserID); err != nil {
			a.logger.Warn("failed to disconnect kicked player",
				slog.String("user_id", k.UserID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Freeze closes every registry. Handlers registered afterwards are rejected.
func (a *App) Freeze() {
	a.Players.Joins().Freeze()
	a.Players.Leaves().Freeze()
	a.Characters.Added().Freeze()
	a.Characters.Removed().Freeze()
	a.Mtx.Freeze()
}

// Start begins background work: state sync and periodic record refresh
func (a *App) Start(ctx context.Context) {
	ctx, a.stop = context.WithCancel(ctx)
	a.done = make(chan struct{})
	a.Sync.Start()

	go func() {
		defer close(a.done)
		if a.Settings.AutosaveInterval <= 0 {
			return
		}
		if err := a.Records.Run(ctx, a.Settings.AutosaveInterval); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("record refresh stopped", slog.String("error", err.Error()))
		}
	}()
	a.logger.Info("shard started", slog.String("environment", string(a.Settings.Env())))
}

// Shutdown disconnects every player, then stops background work and closes
// storage
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Players.Shutdown(ctx)
	if a.stop != nil {
		a.stop()
		<-a.done
	}
	a.Sync.Stop()
	if cerr := a.Storage.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close storage: %w", cerr))
	}
	a.logger.Info("shard stopped")
	return err
}
