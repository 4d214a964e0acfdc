// Package records holds the session-locked documents backing each player's
// persistent data.
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mcoot/liveshard/internal/dependencies/clock"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/storage"
)

// Config holds collection settings
type Config struct {
	// Name is the collection (table, key namespace) records live in
	Name string
	// LockTTL bounds how long a crashed shard can keep a record locked
	LockTTL time.Duration
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		Name:    "PlayerData",
		LockTTL: 5 * time.Minute,
	}
}

// Collection loads and tracks open documents for one record collection
type Collection struct {
	cfg     Config
	storage storage.Storage
	owner   string
	clock   clock.Clock
	logger  *slog.Logger

	loads singleflight.Group

	mu   sync.Mutex
	open map[model.UserID]*Document
}

// New creates a collection. Each Collection has its own lock owner identity.
func New(store storage.Storage, cfg Config, clk clock.Clock, logger *slog.Logger) *Collection {
	return &Collection{
		cfg:     cfg,
		storage: store,
		owner:   uuid.NewString(),
		clock:   clk,
		logger:  logger.With(slog.String("component", "records"), slog.String("collection", cfg.Name)),
		open:    make(map[model.UserID]*Document),
	}
}

// Owner returns the identity this collection uses for record locks
func (c *Collection) Owner() string {
	return c.owner
}

// Load opens the document for id, or returns the one already open.
// A record that is missing starts from the default snapshot.
func (c *Collection) Load(ctx context.Context, id model.UserID, ownerTags []model.UserID) (*Document, error) {
	if doc, ok := c.lookup(id); ok {
		if !doc.Closed() {
			return doc, nil
		}
		// Previous session never flushed; its data must land before we reload.
		if err := doc.Close(ctx); err != nil {
			return nil, fmt.Errorf("flush previous session for %s: %w", id, err)
		}
	}

	v, err, _ := c.loads.Do(id.String(), func() (any, error) {
		if doc, ok := c.lookup(id); ok && !doc.Closed() {
			return doc, nil
		}
		return c.load(ctx, id, ownerTags)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Document), nil
}

func (c *Collection) load(ctx context.Context, id model.UserID, ownerTags []model.UserID) (*Document, error) {
	if err := c.storage.AcquireLock(ctx, c.cfg.Name, id, c.owner, c.cfg.LockTTL); err != nil {
		return nil, fmt.Errorf("lock record %s: %w", id, err)
	}

	data := model.DefaultPlayerData()
	rec, err := c.storage.GetRecord(ctx, c.cfg.Name, id)
	switch {
	case errors.Is(err, model.ErrRecordNotFound):
		c.logger.Info("no stored record, starting from defaults", slog.String("user_id", id.String()))
	case err != nil:
		c.release(ctx, id)
		return nil, fmt.Errorf("load record %s: %w", id, err)
	default:
		data = rec.Data.Normalize()
		if err := data.Validate(); err != nil {
			c.release(ctx, id)
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
	}

	doc := &Document{
		collection: c,
		id:         id,
		ownerTags:  append([]model.UserID(nil), ownerTags...),
		data:       data,
	}
	c.mu.Lock()
	c.open[id] = doc
	c.mu.Unlock()
	return doc, nil
}

func (c *Collection) lookup(id model.UserID) (*Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.open[id]
	return doc, ok
}

func (c *Collection) forget(doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open[doc.id] == doc {
		delete(c.open, doc.id)
	}
}

func (c *Collection) release(ctx context.Context, id model.UserID) {
	if err := c.storage.ReleaseLock(ctx, c.cfg.Name, id, c.owner); err != nil {
		c.logger.Warn("failed to release record lock",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// OpenDocuments returns every document not yet flushed, including closed ones
// whose final save failed.
func (c *Collection) OpenDocuments() []*Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := make([]*Document, 0, len(c.open))
	for _, doc := range c.open {
		docs = append(docs, doc)
	}
	return docs
}

// Refresh extends the lock on every open document and saves it.
// Closed documents that failed to flush are retried.
func (c *Collection) Refresh(ctx context.Context) error {
	var errs []error
	for _, doc := range c.OpenDocuments() {
		if doc.Closed() {
			if err := doc.Close(ctx); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := c.storage.AcquireLock(ctx, c.cfg.Name, doc.id, c.owner, c.cfg.LockTTL); err != nil {
			errs = append(errs, fmt.Errorf("refresh lock %s: %w", doc.id, err))
			continue
		}
		if err := doc.Save(ctx); err != nil && !errors.Is(err, model.ErrDocumentClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run refreshes open documents every interval until ctx is done
func (c *Collection) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("autosave incomplete", slog.String("error", err.Error()))
			}
		}
	}
}
