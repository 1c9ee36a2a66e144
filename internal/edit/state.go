// Package edit implements the edit state of a single entity: the session a UI
// binding or a service works against while creating or changing an entity.
package edit

import (
	"fmt"

	"entigraph/internal/core/apperror"
	"entigraph/internal/entity"
	"entigraph/internal/event"
	"entigraph/internal/metadata"
	"entigraph/pkg/logger"
)

// Status is the lifecycle state of an edit session.
type Status uint8

const (
	// StatusBlank is a new entity without changes.
	StatusBlank Status = iota
	// StatusDirtyNew is a new entity with changes.
	StatusDirtyNew
	// StatusClean is an existing entity without changes.
	StatusClean
	// StatusDirty is an existing entity with changes.
	StatusDirty
)

func (s Status) String() string {
	switch s {
	case StatusBlank:
		return "blank"
	case StatusDirtyNew:
		return "dirty(new)"
	case StatusClean:
		return "clean"
	case StatusDirty:
		return "dirty"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// State is the edit session over one entity value store. It is not safe for
// concurrent use.
type State struct {
	et      *metadata.EntityType
	entity  *entity.Entity
	persist map[metadata.Attribute]bool
	log     *logger.Logger

	changing event.Listeners[*entity.Entity]
	changed  event.Listeners[*entity.Entity]
}

// Option configures a State.
type Option func(*config)

type config struct {
	log        *logger.Logger
	entityOpts []entity.Option
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithEntityOptions passes options to the underlying entity.
func WithEntityOptions(opts ...entity.Option) Option {
	return func(c *config) { c.entityOpts = append(c.entityOpts, opts...) }
}

// New creates an edit state holding a blank entity with default values.
func New(et *metadata.EntityType, opts ...Option) *State {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Default()
	}
	s := &State{
		et:      et,
		entity:  entity.New(et, cfg.entityOpts...),
		persist: make(map[metadata.Attribute]bool),
		log:     cfg.log.WithComponent("edit").With("entity", et.Name()),
	}
	s.entity.OnInvalidated(func(fk metadata.Attribute) {
		s.log.Debugw("foreign key invalidated", "attribute", fk.Name)
	})
	if err := s.Defaults(); err != nil {
		// Defaults are type checked when the definitions are built.
		panic(err)
	}
	return s
}

// Type returns the entity type being edited.
func (s *State) Type() *metadata.EntityType { return s.et }

// Entity returns the underlying value store.
func (s *State) Entity() *entity.Entity { return s.entity }

// Get returns the current value of a.
func (s *State) Get(a metadata.Attribute) any { return s.entity.Get(a) }

// Set writes a value; see entity.Entity.Set.
func (s *State) Set(a metadata.Attribute, v any) error { return s.entity.Set(a, v) }

// SetForeignKey sets a referenced entity; see entity.Entity.SetForeignKey.
func (s *State) SetForeignKey(fk metadata.Attribute, ref metadata.Referenced) error {
	return s.entity.SetForeignKey(fk, ref)
}

// SetEntity loads the current values of e into the edit state, or defaults
// when e is nil. Persistent attributes keep their current value.
//
// Entity-changing listeners receive e before any value is replaced and
// entity-changed listeners receive it once every notification of the
// replacement was delivered. Neither fires when e is rejected.
func (s *State) SetEntity(e *entity.Entity) error {
	if e != nil && e.Type() != s.et {
		return apperror.NewTypeMismatch(s.et.Name(), s.et.Name(), e)
	}
	s.changing.Fire(e)
	if e == nil {
		if err := s.Defaults(); err != nil {
			return err
		}
	} else {
		if err := s.entity.Replace(e.Values(), s.persistent); err != nil {
			return err
		}
		s.log.Debugw("entity set", "key", s.entity.KeyValues(), "status", s.Status().String())
	}
	s.changed.Fire(e)
	return nil
}

// Defaults resets every non-persistent attribute to its default value.
func (s *State) Defaults() error {
	values := make(map[metadata.Attribute]any)
	for _, def := range s.et.Definitions() {
		if _, derived := def.(*metadata.Derived); derived {
			continue
		}
		if v := def.Base().DefaultValue(); v != nil {
			values[def.Attribute()] = v
		}
	}
	if err := s.entity.Replace(values, s.persistent); err != nil {
		return err
	}
	s.log.Debugw("defaults applied")
	return nil
}

// persistent reports whether a keeps its value across SetEntity. Reference
// columns of a persistent foreign key are persistent too.
func (s *State) persistent(a metadata.Attribute) bool {
	if s.persist[a] {
		return true
	}
	for _, fk := range s.et.ForeignKeysOf(a) {
		if s.persist[fk.Attr] {
			return true
		}
	}
	return false
}

// SetPersist sets whether a keeps its current value when the entity is
// replaced. Derived attributes cannot persist.
func (s *State) SetPersist(a metadata.Attribute, persist bool) error {
	def, ok := s.et.Definition(a)
	if !ok {
		return apperror.NewUnknownAttribute(s.et.Name(), a.String())
	}
	if _, derived := def.(*metadata.Derived); derived {
		return apperror.NewNotWritable(a.String(), "derived attributes are recomputed on reset")
	}
	if persist {
		s.persist[a] = true
	} else {
		delete(s.persist, a)
	}
	return nil
}

// Persist reports whether a was flagged with SetPersist.
func (s *State) Persist(a metadata.Attribute) bool { return s.persist[a] }

// Revert restores the original value of a.
func (s *State) Revert(a metadata.Attribute) error { return s.entity.Revert(a) }

// RevertAll restores every modified attribute.
func (s *State) RevertAll() error {
	if err := s.entity.RevertAll(); err != nil {
		return err
	}
	s.log.Debugw("reverted", "status", s.Status().String())
	return nil
}

// Exists reports whether every primary key attribute is non-null.
func (s *State) Exists() bool { return s.entity.Exists() }

// Modified reports whether any attribute is modified.
func (s *State) Modified() bool { return s.entity.Modified() }

// Valid reports whether every non-derived attribute passes validation.
func (s *State) Valid() bool { return s.entity.Valid() }

// IsValid reports whether the current value of a passes validation.
func (s *State) IsValid(a metadata.Attribute) bool { return s.entity.IsValid(a) }

// IsModified reports whether a differs from its original value.
func (s *State) IsModified(a metadata.Attribute) bool { return s.entity.IsModified(a) }

// IsPresent reports whether a is non-null.
func (s *State) IsPresent(a metadata.Attribute) bool { return !s.entity.IsNull(a) }

// Status returns the lifecycle state.
func (s *State) Status() Status {
	switch exists, modified := s.Exists(), s.Modified(); {
	case exists && modified:
		return StatusDirty
	case exists:
		return StatusClean
	case modified:
		return StatusDirtyNew
	}
	return StatusBlank
}

// Validate checks the current value of a against its definition.
func (s *State) Validate(a metadata.Attribute) error {
	def, ok := s.et.Definition(a)
	if !ok {
		return apperror.NewUnknownAttribute(s.et.Name(), a.String())
	}
	return metadata.Validate(def, s.entity.Get(a))
}

// ValidateAll validates every non-derived attribute in declaration order and
// returns the first failure.
func (s *State) ValidateAll() error {
	for _, def := range s.et.Definitions() {
		if _, derived := def.(*metadata.Derived); derived {
			continue
		}
		if err := metadata.Validate(def, s.entity.Get(def.Attribute())); err != nil {
			return err
		}
	}
	return nil
}

// Commit records a successful insert or update. With saved nil the current
// values become the original ones; otherwise saved, as returned by the
// store, replaces the state.
func (s *State) Commit(saved *entity.Entity) error {
	var err error
	if saved == nil {
		err = s.entity.Commit()
	} else {
		err = s.entity.Replace(saved.Values(), nil)
	}
	if err != nil {
		return err
	}
	s.log.Debugw("committed", "key", s.entity.KeyValues())
	return nil
}

// CurrentValues returns a snapshot of every current value.
func (s *State) CurrentValues() map[metadata.Attribute]any { return s.entity.Values() }

// ModifiedAttributes returns the modified attributes in declaration order.
func (s *State) ModifiedAttributes() []metadata.Attribute { return s.entity.ModifiedAttributes() }

// OnValueChanged registers fn for value changes of a.
func (s *State) OnValueChanged(a metadata.Attribute, fn func(entity.ValueChange)) *event.Subscription {
	return s.entity.OnValueChanged(a, fn)
}

// OnEdited registers fn for edits of a.
func (s *State) OnEdited(a metadata.Attribute, fn func(entity.Edit)) *event.Subscription {
	return s.entity.OnEdited(a, fn)
}

// OnAnyValueChanged registers fn for value changes of every attribute.
func (s *State) OnAnyValueChanged(fn func(entity.ValueChange)) *event.Subscription {
	return s.entity.OnAnyValueChanged(fn)
}

// OnModifiedChanged registers fn for changes of Modified.
func (s *State) OnModifiedChanged(fn func(bool)) *event.Subscription {
	return s.entity.OnModifiedChanged(fn)
}

// OnExistsChanged registers fn for changes of Exists.
func (s *State) OnExistsChanged(fn func(bool)) *event.Subscription {
	return s.entity.OnExistsChanged(fn)
}

// OnInvalidated registers fn for foreign keys cleared by a column write.
func (s *State) OnInvalidated(fn func(fk metadata.Attribute)) *event.Subscription {
	return s.entity.OnInvalidated(fn)
}

// OnAttributeModifiedChanged registers fn for changes of IsModified(a).
func (s *State) OnAttributeModifiedChanged(a metadata.Attribute, fn func(bool)) *event.Subscription {
	return s.entity.OnAttributeModifiedChanged(a, fn)
}

// OnAttributeValidChanged registers fn for changes of IsValid(a).
func (s *State) OnAttributeValidChanged(a metadata.Attribute, fn func(bool)) *event.Subscription {
	return s.entity.OnAttributeValidChanged(a, fn)
}

// OnAttributePresentChanged registers fn for changes of IsPresent(a).
func (s *State) OnAttributePresentChanged(a metadata.Attribute, fn func(bool)) *event.Subscription {
	return s.entity.OnAttributePresentChanged(a, fn)
}

// OnValidChanged registers fn for changes of Valid.
func (s *State) OnValidChanged(fn func(bool)) *event.Subscription {
	return s.entity.OnValidChanged(fn)
}

// OnEntityChanging registers fn to run before SetEntity replaces the values.
// fn receives the incoming entity, nil for defaults.
func (s *State) OnEntityChanging(fn func(*entity.Entity)) *event.Subscription {
	return s.changing.Add(fn)
}

// OnEntityChanged registers fn to run after SetEntity replaced the values.
func (s *State) OnEntityChanged(fn func(*entity.Entity)) *event.Subscription {
	return s.changed.Add(fn)
}
