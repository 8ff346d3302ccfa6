package promptz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxCreateAttempts bounds id regeneration after a create conflict.
const DefaultMaxCreateAttempts = 3

// ResolverConfig configures a Resolver. Zero values fall back to defaults.
type ResolverConfig struct {
	Source            string
	Clock             func() time.Time
	NewID             func() string
	MaxCreateAttempts int
}

// Resolver runs the store stage of every mutation. Each method returns the
// resulting entity together with the event to publish; the event is nil when
// the store operation failed.
type Resolver struct {
	store             Store
	source            string
	now               func() time.Time
	newID             func() string
	maxCreateAttempts int
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, cfg ResolverConfig) *Resolver {
	r := &Resolver{
		store:             store,
		source:            cfg.Source,
		now:               cfg.Clock,
		newID:             cfg.NewID,
		maxCreateAttempts: cfg.MaxCreateAttempts,
	}
	if r.source == "" {
		r.source = DefaultEventSource
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.maxCreateAttempts <= 0 {
		r.maxCreateAttempts = DefaultMaxCreateAttempts
	}
	return r
}

// Save creates the entity when req has no id and updates it otherwise.
func (r *Resolver) Save(ctx context.Context, kind Kind, caller string, req SaveRequest) (*Entity, *Event, error) {
	if req.IsUpdate() {
		return r.update(ctx, kind, caller, req)
	}
	return r.create(ctx, kind, caller, req)
}

func (r *Resolver) create(ctx context.Context, kind Kind, caller string, req SaveRequest) (*Entity, *Event, error) {
	if caller == "" {
		return nil, nil, &MutationError{Kind: kind.Name, Op: "create", Err: ErrUnauthorized}
	}

	now := r.now()
	var err error
	for attempt := 0; attempt < r.maxCreateAttempts; attempt++ {
		entity := &Entity{
			ID:        r.newID(),
			Owner:     caller,
			CreatedAt: now,
			UpdatedAt: now,
		}
		applyFields(kind, req, entity)
		entity.Slug = Slugify(entity.Name, entity.ID)

		err = r.store.Create(ctx, kind, entity)
		if err == nil {
			return entity.Clone(), r.stage(kind, ActionSaved, entity), nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, nil, &MutationError{Kind: kind.Name, ID: entity.ID, Op: "create", Err: err}
		}
	}
	return nil, nil, &MutationError{
		Kind: kind.Name,
		Op:   "create",
		Err:  fmt.Errorf("%d attempts: %w", r.maxCreateAttempts, err),
	}
}

func (r *Resolver) update(ctx context.Context, kind Kind, caller string, req SaveRequest) (*Entity, *Event, error) {
	if caller == "" {
		return nil, nil, &MutationError{Kind: kind.Name, ID: req.ID, Op: "update", Err: ErrUnauthorized}
	}

	patch := &Entity{
		ID:        req.ID,
		UpdatedAt: r.now(),
	}
	applyFields(kind, req, patch)
	patch.Slug = Slugify(patch.Name, patch.ID)

	updated, err := r.store.Update(ctx, kind, caller, patch)
	if err != nil {
		return nil, nil, &MutationError{Kind: kind.Name, ID: req.ID, Op: "update", Err: err}
	}
	return updated.Clone(), r.stage(kind, ActionSaved, updated), nil
}

// Delete removes an entity owned by caller and returns its last state.
func (r *Resolver) Delete(ctx context.Context, kind Kind, caller, id string) (*Entity, *Event, error) {
	if caller == "" {
		return nil, nil, &MutationError{Kind: kind.Name, ID: id, Op: "delete", Err: ErrUnauthorized}
	}

	deleted, err := r.store.Delete(ctx, kind, id, caller)
	if err != nil {
		return nil, nil, &MutationError{Kind: kind.Name, ID: id, Op: "delete", Err: err}
	}
	return deleted.Clone(), r.stage(kind, ActionDeleted, deleted), nil
}

// Increment adds one to a usage counter. Any caller may increment.
func (r *Resolver) Increment(ctx context.Context, kind Kind, id string, counter Counter) (*Entity, *Event, error) {
	var action Action
	switch counter {
	case CounterCopy:
		action = ActionCopied
	case CounterDownload:
		action = ActionDownloaded
	default:
		return nil, nil, fmt.Errorf("%w: unknown counter %q", ErrInvalidRequest, counter)
	}

	updated, err := r.store.Increment(ctx, kind, id, counter)
	if err != nil {
		return nil, nil, &MutationError{Kind: kind.Name, ID: id, Op: string(action), Err: err}
	}
	return updated.Clone(), r.stage(kind, action, updated), nil
}

func (r *Resolver) stage(kind Kind, action Action, entity *Entity) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Source:     r.source,
		DetailType: kind.EventType(action),
		Time:       r.now(),
		Detail:     entity.Clone(),
	}
}

// applyFields copies the fields kind allows from req onto e.
func applyFields(kind Kind, req SaveRequest, e *Entity) {
	if kind.Allows(FieldName) {
		e.Name = req.Name
	}
	if kind.Allows(FieldDescription) {
		e.Description = req.Description
	}
	if kind.Allows(FieldContent) {
		e.Content = req.Content
	}
	if kind.Allows(FieldHowTo) {
		e.HowTo = req.HowTo
	}
	e.Tags = []string{}
	if kind.Allows(FieldTags) && req.Tags != nil {
		e.Tags = append(e.Tags, req.Tags...)
	}
	e.Scope = ScopePrivate
	if kind.Allows(FieldScope) && req.Scope != "" {
		e.Scope = req.Scope
	}
	if kind.Allows(FieldSourceURL) {
		e.SourceURL = req.SourceURL
	}
}
