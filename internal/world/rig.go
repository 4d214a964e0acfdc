package world

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mcoot/liveshard/internal/model"
)

// Rig is a character's object graph. Parts appear over time; the rig stays
// attached to the world until it is replaced or removed.
type Rig struct {
	id     string
	userID model.UserID

	mu             sync.Mutex
	parts          map[string]PartClass
	changed        chan struct{}
	tags           map[string]bool
	partTags       map[string]map[string]bool
	collisionGroup string

	detached       chan struct{}
	detachOnce     sync.Once
	appearance     chan struct{}
	appearanceOnce sync.Once
}

// NewRig creates an attached rig for userID
func NewRig(userID model.UserID, parts ...Part) *Rig {
	r := &Rig{
		id:             uuid.NewString(),
		userID:         userID,
		parts:          make(map[string]PartClass),
		changed:        make(chan struct{}),
		tags:           make(map[string]bool),
		partTags:       make(map[string]map[string]bool),
		collisionGroup: "Default",
		detached:       make(chan struct{}),
		appearance:     make(chan struct{}),
	}
	for _, p := range parts {
		r.parts[p.Name] = p.Class
	}
	return r
}

// ID returns the unique id of this rig instance
func (r *Rig) ID() string {
	return r.id
}

// UserID returns the owning user
func (r *Rig) UserID() model.UserID {
	return r.userID
}

// AddPart adds or replaces a part and wakes anything waiting on the rig's shape
func (r *Rig) AddPart(p Part) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parts[p.Name] = p.Class
	close(r.changed)
	r.changed = make(chan struct{})
}

// RemovePart removes a part by name
func (r *Rig) RemovePart(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parts, name)
	delete(r.partTags, name)
	close(r.changed)
	r.changed = make(chan struct{})
}

// Parts returns a snapshot of the rig's parts keyed by name
func (r *Rig) Parts() map[string]PartClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]PartClass, len(r.parts))
	for k, v := range r.parts {
		out[k] = v
	}
	return out
}

// Attached reports whether the rig is still part of the live world
func (r *Rig) Attached() bool {
	select {
	case <-r.detached:
		return false
	default:
		return true
	}
}

// Detached is closed once the rig leaves the world
func (r *Rig) Detached() <-chan struct{} {
	return r.detached
}

func (r *Rig) detach() {
	r.detachOnce.Do(func() { close(r.detached) })
}

// WaitFor blocks until the rig satisfies schema. It fails with
// model.ErrRigDetached if the rig leaves the world first, or ctx's error.
func (r *Rig) WaitFor(ctx context.Context, schema Schema) error {
	for {
		if !r.Attached() {
			return model.ErrRigDetached
		}
		r.mu.Lock()
		ok := schema.SatisfiedBy(r.parts)
		changed := r.changed
		r.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.detached:
			return model.ErrRigDetached
		case <-changed:
		}
	}
}

// AddTag tags the rig itself
func (r *Rig) AddTag(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[tag] = true
}

// RemoveTag removes a tag from the rig
func (r *Rig) RemoveTag(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tags, tag)
}

// HasTag reports whether the rig carries tag
func (r *Rig) HasTag(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags[tag]
}

// TagPart tags one of the rig's parts
func (r *Rig) TagPart(part, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parts[part]; !ok {
		return fmt.Errorf("rig %s has no part %q", r.id, part)
	}
	if r.partTags[part] == nil {
		r.partTags[part] = make(map[string]bool)
	}
	r.partTags[part][tag] = true
	return nil
}

// PartHasTag reports whether the named part carries tag
func (r *Rig) PartHasTag(part, tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partTags[part][tag]
}

// SetCollisionGroup moves every part into group and returns the previous group
func (r *Rig) SetCollisionGroup(group string) (previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous = r.collisionGroup
	r.collisionGroup = group
	return previous
}

// CollisionGroup returns the rig's collision group
func (r *Rig) CollisionGroup() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collisionGroup
}

// MarkAppearanceLoaded signals that the rig's visual assets have finished loading
func (r *Rig) MarkAppearanceLoaded() {
	r.appearanceOnce.Do(func() { close(r.appearance) })
}

// AppearanceLoaded is closed once the rig's appearance has loaded
func (r *Rig) AppearanceLoaded() <-chan struct{} {
	return r.appearance
}
