// Package entity implements the per-instance value store of an entity and the
// engine that propagates writes through the attribute dependency graph.
//
// An Entity is owned by a single editor and is not safe for concurrent writes.
// Distinct entities share only their immutable *metadata.EntityType and may be
// used from different goroutines.
package entity

import (
	"fmt"
	"maps"
	"strings"
	"sync/atomic"

	"entigraph/internal/core/apperror"
	"entigraph/internal/event"
	"entigraph/internal/metadata"
)

// Entity holds the current and original value of every attribute of one
// entity instance.
type Entity struct {
	et       *metadata.EntityType
	current  map[metadata.Attribute]any
	original map[metadata.Attribute]any
	modified map[metadata.Attribute]struct{}
	invalid  map[metadata.Attribute]struct{}

	observer Observer
	busy     atomic.Bool

	attrs           map[metadata.Attribute]*attrListeners
	anyValueChanged event.Listeners[ValueChange]
	modifiedChanged event.Listeners[bool]
	existsChanged   event.Listeners[bool]
	validChanged    event.Listeners[bool]
	invalidated     event.Listeners[metadata.Attribute]
}

type attrListeners struct {
	valueChanged    event.Listeners[ValueChange]
	edited          event.Listeners[Edit]
	modifiedChanged event.Listeners[bool]
	validChanged    event.Listeners[bool]
	presentChanged  event.Listeners[bool]
}

// Option configures an Entity.
type Option func(*Entity)

// WithObserver reports completed and rejected writes to o.
func WithObserver(o Observer) Option {
	return func(e *Entity) { e.observer = o }
}

// New creates a blank entity of type et: every attribute is null and derived
// attributes hold the value computed from null sources.
func New(et *metadata.EntityType, opts ...Option) *Entity {
	defs := et.Definitions()
	e := &Entity{
		et:       et,
		current:  make(map[metadata.Attribute]any, len(defs)),
		original: make(map[metadata.Attribute]any, len(defs)),
		modified: make(map[metadata.Attribute]struct{}),
		invalid:  make(map[metadata.Attribute]struct{}),
		attrs:    make(map[metadata.Attribute]*attrListeners, len(defs)),
	}
	for _, def := range defs {
		e.attrs[def.Attribute()] = &attrListeners{}
		e.updateValid(def.Attribute())
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, a := range et.Graph().Order() {
		if _, derived := e.derived(a); derived {
			e.current[a] = e.compute(a)
		}
	}
	return e
}

// Load creates an entity whose current and original values are values.
// Derived entries in values are ignored; derived attributes are computed.
func Load(et *metadata.EntityType, values map[metadata.Attribute]any, opts ...Option) (*Entity, error) {
	e := New(et, opts...)
	if err := e.Replace(values, nil); err != nil {
		return nil, err
	}
	return e, nil
}

// Type returns the entity type.
func (e *Entity) Type() *metadata.EntityType { return e.et }

// EntityTypeName returns the name of the entity type.
func (e *Entity) EntityTypeName() string { return e.et.Name() }

// Get returns the current value of a, nil when null or unknown.
func (e *Entity) Get(a metadata.Attribute) any {
	return e.current[a]
}

// Original returns the last committed value of a. Derived attributes have no
// original value of their own; their current value is returned.
func (e *Entity) Original(a metadata.Attribute) any {
	if _, derived := e.derived(a); derived {
		return e.current[a]
	}
	return e.original[a]
}

// IsNull reports whether the current value of a is null.
func (e *Entity) IsNull(a metadata.Attribute) bool {
	return e.current[a] == nil
}

// IsModified reports whether the current value of a differs from its original.
// Derived attributes and transients flagged NoModify are never modified.
func (e *Entity) IsModified(a metadata.Attribute) bool {
	_, ok := e.modified[a]
	return ok
}

// Modified reports whether any attribute is modified.
func (e *Entity) Modified() bool {
	return len(e.modified) > 0
}

// ModifiedAttributes returns the modified attributes in declaration order.
func (e *Entity) ModifiedAttributes() []metadata.Attribute {
	var out []metadata.Attribute
	for _, def := range e.et.Definitions() {
		if e.IsModified(def.Attribute()) {
			out = append(out, def.Attribute())
		}
	}
	return out
}

// Exists reports whether every primary key attribute is non-null.
//
// An entity type without a primary key never exists: its empty key counts as
// a null key, the same as a key with a missing value, so such entities are
// always new and are inserted rather than updated.
func (e *Entity) Exists() bool {
	pk := e.et.PrimaryKey()
	if len(pk) == 0 {
		return false
	}
	for _, a := range pk {
		if e.current[a] == nil {
			return false
		}
	}
	return true
}

// IsValid reports whether the current value of a passes metadata.Validate.
// Derived attributes are always valid.
func (e *Entity) IsValid(a metadata.Attribute) bool {
	_, invalid := e.invalid[a]
	return !invalid
}

// Valid reports whether every attribute is valid.
func (e *Entity) Valid() bool {
	return len(e.invalid) == 0
}

// InvalidAttributes returns the invalid attributes in declaration order.
func (e *Entity) InvalidAttributes() []metadata.Attribute {
	var out []metadata.Attribute
	for _, def := range e.et.Definitions() {
		if !e.IsValid(def.Attribute()) {
			out = append(out, def.Attribute())
		}
	}
	return out
}

// KeyValues returns the current primary key values in key order.
func (e *Entity) KeyValues() []any {
	pk := e.et.PrimaryKey()
	out := make([]any, len(pk))
	for i, a := range pk {
		out[i] = e.current[a]
	}
	return out
}

// OriginalKeyValues returns the primary key values as last committed. Updates
// match rows by this key so that primary key edits can be persisted.
func (e *Entity) OriginalKeyValues() []any {
	pk := e.et.PrimaryKey()
	out := make([]any, len(pk))
	for i, a := range pk {
		out[i] = e.original[a]
	}
	return out
}

// KeyEquals reports whether other is of the same type and has the same
// complete primary key.
func (e *Entity) KeyEquals(other metadata.Referenced) bool {
	if other == nil || other.EntityTypeName() != e.et.Name() {
		return false
	}
	mine, theirs := e.KeyValues(), other.KeyValues()
	if len(mine) == 0 || len(mine) != len(theirs) {
		return false
	}
	for i := range mine {
		if mine[i] == nil || !metadata.Equal(mine[i], theirs[i]) {
			return false
		}
	}
	return true
}

// Values returns a snapshot of every current value, derived included.
func (e *Entity) Values() map[metadata.Attribute]any {
	return maps.Clone(e.current)
}

// OriginalValues returns a snapshot of the original values.
func (e *Entity) OriginalValues() map[metadata.Attribute]any {
	return maps.Clone(e.original)
}

// NamedValues returns the current values keyed by attribute name. It exposes
// referenced entities to expressions.
func (e *Entity) NamedValues() map[string]any {
	out := make(map[string]any, len(e.current))
	for a, v := range e.current {
		out[a.Name] = v
	}
	return out
}

// Copy returns a detached entity with the same current, original and modified
// state. Listeners are not copied; referenced entities are shared.
func (e *Entity) Copy() *Entity {
	c := New(e.et)
	c.observer = e.observer
	c.current = maps.Clone(e.current)
	c.original = maps.Clone(e.original)
	c.modified = maps.Clone(e.modified)
	c.invalid = maps.Clone(e.invalid)
	return c
}

func (e *Entity) String() string {
	var sb strings.Builder
	sb.WriteString(e.et.Name())
	sb.WriteByte('{')
	for i, a := range e.et.PrimaryKey() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", a.Name, e.current[a])
	}
	sb.WriteByte('}')
	return sb.String()
}

func (e *Entity) definition(a metadata.Attribute) (metadata.Definition, error) {
	def, ok := e.et.Definition(a)
	if !ok {
		return nil, apperror.NewUnknownAttribute(e.et.Name(), a.String())
	}
	return def, nil
}

func (e *Entity) derived(a metadata.Attribute) (*metadata.Derived, bool) {
	def, ok := e.et.Definition(a)
	if !ok {
		return nil, false
	}
	d, ok := def.(*metadata.Derived)
	return d, ok
}

// tracksModified reports whether a contributes to the modified state.
func tracksModified(def metadata.Definition) bool {
	switch d := def.(type) {
	case *metadata.Derived:
		return false
	case *metadata.Transient:
		return !d.NoModify
	}
	return true
}

func (e *Entity) updateModified(a metadata.Attribute) {
	def, ok := e.et.Definition(a)
	if !ok || !tracksModified(def) {
		return
	}
	if metadata.Equal(e.current[a], e.original[a]) {
		delete(e.modified, a)
	} else {
		e.modified[a] = struct{}{}
	}
}

func (e *Entity) updateValid(a metadata.Attribute) {
	def, ok := e.et.Definition(a)
	if !ok {
		return
	}
	if _, derived := def.(*metadata.Derived); derived {
		return
	}
	if metadata.Validate(def, e.current[a]) != nil {
		e.invalid[a] = struct{}{}
	} else {
		delete(e.invalid, a)
	}
}
