package records

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/liveshard/internal/model"
)

// Document is one player's record held open for the duration of a session
type Document struct {
	collection *Collection
	id         model.UserID
	ownerTags  []model.UserID

	mu          sync.Mutex
	data        model.PlayerData
	beforeClose []func()
	closed      bool
	flushed     bool

	// saving serializes writes to the backend
	saving sync.Mutex
}

// UserID returns the id of the record this document holds
func (d *Document) UserID() model.UserID {
	return d.id
}

// Read returns a copy of the latest snapshot
func (d *Document) Read() model.PlayerData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data.Clone()
}

// Write replaces the in-memory snapshot. It is persisted on the next save.
func (d *Document) Write(data model.PlayerData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return model.ErrDocumentClosed
	}
	d.data = data.Clone()
	return nil
}

// BeforeClose registers fn to run once when Close is first called
func (d *Document) BeforeClose(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beforeClose = append(d.beforeClose, fn)
}

// Closed reports whether Close has been called
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Save persists the current snapshot. Once Close has been called only Close
// writes the record, and Save fails with model.ErrDocumentClosed.
func (d *Document) Save(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return model.ErrDocumentClosed
	}
	d.mu.Unlock()
	return d.save(ctx)
}

func (d *Document) save(ctx context.Context) error {
	d.saving.Lock()
	defer d.saving.Unlock()

	d.mu.Lock()
	rec := &model.StoredRecord{
		UserID:    d.id,
		Data:      d.data.Clone(),
		OwnerTags: append([]model.UserID(nil), d.ownerTags...),
		UpdatedAt: d.collection.clock.Now(),
	}
	d.mu.Unlock()

	c := d.collection
	if err := c.storage.SaveRecord(ctx, c.cfg.Name, rec, c.owner); err != nil {
		return fmt.Errorf("save record %s: %w", d.id, err)
	}
	return nil
}

// Close runs the before-close callbacks, saves, and releases the lock.
// If the final save fails the error is returned, the lock is kept and the
// document stays tracked so a later Close or Load can retry the flush.
func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.flushed {
		d.mu.Unlock()
		return nil
	}
	callbacks := d.beforeClose
	d.beforeClose = nil
	d.closed = true
	d.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}

	c := d.collection
	if err := d.save(ctx); err != nil {
		c.logger.Error("failed to flush record on close",
			slog.String("user_id", d.id.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	d.mu.Lock()
	alreadyFlushed := d.flushed
	d.flushed = true
	d.mu.Unlock()
	if alreadyFlushed {
		return nil
	}

	c.release(ctx, d.id)
	c.forget(d)
	return nil
}
