// Package player manages the lifecycle of connected players: admission,
// record loading, join and leave dispatch, and teardown.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/liveshard/internal/dependencies/clock"
	"github.com/mcoot/liveshard/internal/janitor"
	"github.com/mcoot/liveshard/internal/lifecycle"
	"github.com/mcoot/liveshard/internal/metrics"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/records"
)

// Config holds manager settings
type Config struct {
	// HoldOpen makes Shutdown block until every session has been torn down
	HoldOpen bool
}

// connection tracks one user from connect until their session is gone.
// All fields are guarded by Manager.mu.
type connection struct {
	user         model.User
	entity       *Entity
	ready        chan struct{}
	done         chan struct{}
	released     chan struct{}
	err          error
	finished     bool
	disconnected bool
	leaving      bool
}

// finish closes done with err as the outcome for waiters. Must hold Manager.mu.
func (c *connection) finish(err error) {
	if c.finished {
		return
	}
	c.finished = true
	c.err = err
	close(c.done)
}

// abandoned reports whether the user left while the record was still loading
func (c *connection) abandoned() bool {
	return c.disconnected && c.entity == nil
}

// Manager owns the live entity map
type Manager struct {
	cfg     Config
	records *records.Collection
	store   *datastore.Store
	removal *Removal
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	joins  *lifecycle.Registry[JoinHandler]
	leaves *lifecycle.Registry[LeaveHandler]

	mu      sync.Mutex
	conns   map[model.UserID]*connection
	closing bool
	live    sync.WaitGroup
}

// NewManager creates a Manager
func NewManager(
	cfg Config,
	records *records.Collection,
	store *datastore.Store,
	removal *Removal,
	clock clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Manager {
	logger = logger.With(slog.String("component", "player-manager"))
	mgr := &Manager{
		cfg:     cfg,
		records: records,
		store:   store,
		removal: removal,
		clock:   clock,
		metrics: m,
		logger:  logger,
		joins:   lifecycle.New[JoinHandler]("player-join", logger),
		leaves:  lifecycle.New[LeaveHandler]("player-leave", logger),
		conns:   make(map[model.UserID]*connection),
	}
	fault := func(registry, _ string, _ error) { m.HandlerFault(registry) }
	mgr.joins.OnFault(fault)
	mgr.leaves.OnFault(fault)
	return mgr
}

// Joins is the registry of handlers run when a player has joined
func (m *Manager) Joins() *lifecycle.Registry[JoinHandler] {
	return m.joins
}

// Leaves is the registry of handlers run before a player is torn down
func (m *Manager) Leaves() *lifecycle.Registry[LeaveHandler] {
	return m.leaves
}

// OnConnect admits a player. It returns once the player's record has loaded
// and the entity is live; each join handler keeps running in the background
// as its own task. If the record cannot be loaded the player is kicked and no
// entity is made. A reconnect while an abandoned load is still in flight
// waits for that load to be released and then takes its place.
func (m *Manager) OnConnect(ctx context.Context, user model.User) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		m.metrics.JoinFailed("shutting_down")
		return model.ErrShuttingDown
	}
	stale, ok := m.conns[user.ID]
	if ok && !stale.abandoned() {
		m.mu.Unlock()
		m.metrics.JoinFailed("duplicate")
		return model.ErrAlreadyConnected
	}
	conn := &connection{
		user:     user,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
	m.conns[user.ID] = conn
	m.live.Add(1)
	m.mu.Unlock()

	if stale != nil {
		m.logger.Info("replacing abandoned join", slog.String("user_id", user.ID.String()))
		select {
		case <-stale.released:
		case <-ctx.Done():
			m.drop(conn, ctx.Err())
			m.metrics.JoinFailed("cancelled")
			return ctx.Err()
		}
	}

	doc, err := m.records.Load(ctx, user.ID, []model.UserID{user.ID})
	if err != nil {
		m.logger.Warn("failed to load player data",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
		err = fmt.Errorf("%w: %w", model.ErrJoinRejected, err)
		m.drop(conn, err)
		m.metrics.JoinFailed("rejected")
		m.removal.RemoveForBug(ctx, user, model.KickPlayerProfileUndefined)
		return err
	}

	entity := m.newEntity(conn, doc)

	m.mu.Lock()
	if conn.disconnected {
		m.mu.Unlock()
		m.logger.Info("player left before joining", slog.String("user_id", user.ID.String()))
		if err := entity.Janitor.Cleanup(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("failed to clean up abandoned session",
				slog.String("user_id", user.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return model.ErrDisconnectedBeforeReady
	}
	// Nothing can clean up the entity before it is published, so every join
	// task is accepted.
	conn.entity = entity
	m.joins.Start(entity.Janitor.Go, func(ctx context.Context, h JoinHandler) error {
		return h.OnPlayerJoin(ctx, entity)
	})
	close(conn.ready)
	m.mu.Unlock()

	m.logger.Info("player joined",
		slog.String("user_id", user.ID.String()),
		slog.String("name", user.Name),
	)
	return nil
}

// newEntity builds the entity and mirrors its record into the reactive store
func (m *Manager) newEntity(conn *connection, doc *records.Document) *Entity {
	user := conn.user
	j := janitor.New(fmt.Sprintf("player-%s", user.ID), m.logger)
	entity := &Entity{
		UserID:   user.ID,
		Name:     user.Name,
		JoinedAt: m.clock.Now(),
		Janitor:  j,
		Document: doc,
	}
	m.metrics.SessionStarted()

	// Cleanup runs in reverse: the record closes before the entity is removed.
	j.Add("entity removal", func() {
		m.mu.Lock()
		conn.finish(model.ErrNotConnected)
		if m.conns[user.ID] == conn {
			delete(m.conns, user.ID)
		}
		close(conn.released)
		m.mu.Unlock()
		m.metrics.SessionEnded()
		m.live.Done()
	})
	j.AddErr("record close", func(ctx context.Context) (err error) {
		entity.Exclusive(func() { err = doc.Close(ctx) })
		return err
	})

	m.store.Set(user.ID, doc.Read())
	unsubscribe := m.store.Subscribe(user.ID, func(data model.PlayerData) {
		if err := doc.Write(data); err != nil {
			m.logger.Warn("dropped write to closed record",
				slog.String("user_id", user.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	})
	doc.BeforeClose(func() {
		unsubscribe()
		m.store.Delete(user.ID)
	})
	return entity
}

// drop forgets a connection that never produced an entity
func (m *Manager) drop(conn *connection, err error) {
	m.mu.Lock()
	conn.finish(err)
	if m.conns[conn.user.ID] == conn {
		delete(m.conns, conn.user.ID)
	}
	close(conn.released)
	m.mu.Unlock()
	m.live.Done()
}

// OnDisconnect runs every leave handler, waits for them to settle, then
// tears down the session. A player still loading is marked as gone and
// cleaned up once its load finishes.
func (m *Manager) OnDisconnect(ctx context.Context, userID model.UserID) error {
	m.mu.Lock()
	conn, ok := m.conns[userID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("disconnect for unknown player", slog.String("user_id", userID.String()))
		return nil
	}
	if conn.entity == nil {
		conn.disconnected = true
		conn.finish(model.ErrDisconnectedBeforeReady)
		m.mu.Unlock()
		return nil
	}
	if conn.leaving {
		m.mu.Unlock()
		return nil
	}
	conn.leaving = true
	entity := conn.entity
	m.mu.Unlock()

	m.logger.Info("player leaving", slog.String("user_id", userID.String()))
	m.leaves.Fanout(ctx, func(ctx context.Context, h LeaveHandler) error {
		return h.OnPlayerLeave(ctx, entity)
	})

	if err := entity.Janitor.Cleanup(ctx); err != nil {
		m.logger.Error("session cleanup incomplete",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// GetEntity returns the live entity for userID
func (m *Manager) GetEntity(userID model.UserID) (*Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[userID]
	if !ok || conn.entity == nil || conn.finished {
		return nil, false
	}
	return conn.entity, true
}

// GetEntityAsync returns the entity for userID, waiting for a join in
// progress. It fails with model.ErrDisconnectedBeforeReady if the player
// leaves first, and model.ErrNotConnected if there is no such player.
func (m *Manager) GetEntityAsync(ctx context.Context, userID model.UserID) (*Entity, error) {
	m.mu.Lock()
	conn, ok := m.conns[userID]
	if !ok {
		m.mu.Unlock()
		return nil, model.ErrNotConnected
	}
	if conn.finished {
		err := conn.err
		m.mu.Unlock()
		return nil, err
	}
	if conn.entity != nil {
		m.mu.Unlock()
		return conn.entity, nil
	}
	ready, done := conn.ready, conn.done
	m.mu.Unlock()

	select {
	case <-ready:
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.finished {
		return nil, conn.err
	}
	return conn.entity, nil
}

// IsConnected reports whether userID has a connection that has not ended
func (m *Manager) IsConnected(userID model.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[userID]
	return ok && !conn.finished
}

// Entities returns every live entity ordered by user id
func (m *Manager) Entities() []*Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entity, 0, len(m.conns))
	for _, conn := range m.conns {
		if conn.entity != nil && !conn.finished {
			out = append(out, conn.entity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Shutdown refuses new connections and disconnects every player. With
// HoldOpen it then blocks until every session is gone or ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	ids := make([]model.UserID, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	m.logger.Info("draining sessions", slog.Int("sessions", len(ids)))
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			return m.OnDisconnect(ctx, id)
		})
	}
	err := g.Wait()

	if !m.cfg.HoldOpen {
		return err
	}

	drained := make(chan struct{})
	go func() {
		m.live.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		m.logger.Info("all sessions removed")
		return err
	case <-ctx.Done():
		return fmt.Errorf("sessions still live at shutdown: %w", ctx.Err())
	}
}

// WithEntity adapts fn to be called by user id. If the player has no live
// entity the call is logged and the zero value returned.
func WithEntity[R any](m *Manager, fn func(*Entity) R) func(model.UserID) R {
	return func(userID model.UserID) R {
		e, ok := m.GetEntity(userID)
		if !ok {
			m.logger.Error("unable to find entity for player, dropping call", slog.String("user_id", userID.String()))
			var zero R
			return zero
		}
		return fn(e)
	}
}

// WithEntityArg is WithEntity for callbacks taking one extra argument
func WithEntityArg[A, R any](m *Manager, fn func(*Entity, A) R) func(model.UserID, A) R {
	return func(userID model.UserID, arg A) R {
		e, ok := m.GetEntity(userID)
		if !ok {
			m.logger.Error("unable to find entity for player, dropping call", slog.String("user_id", userID.String()))
			var zero R
			return zero
		}
		return fn(e, arg)
	}
}
