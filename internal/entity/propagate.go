package entity

import (
	"fmt"
	"time"

	"entigraph/internal/core/apperror"
	"entigraph/internal/metadata"
)

// ValueChange is delivered for every attribute whose value changed.
type ValueChange struct {
	Attribute metadata.Attribute
	Value     any
	Previous  any
}

// Edit is delivered for an attribute written by a caller and for every
// dependent recomputed because of it, whether or not the value changed.
type Edit struct {
	Attribute metadata.Attribute
	Value     any
}

// Observer receives write statistics. Implementations must not write to the
// entity.
type Observer interface {
	// WriteCompleted is called after notifications of a write were delivered.
	WriteCompleted(entityType string, recomputed, notifications int, elapsed time.Duration)
	// WriteRejected is called when a write fails before mutating state.
	WriteRejected(entityType, code string)
}

type notice struct {
	attr   metadata.Attribute
	value  any
	change *ValueChange
	edited bool
}

// batch collects the notifications of one operation. State is mutated first;
// notices are delivered once mutation is complete.
type batch struct {
	notices     []notice
	invalidated []metadata.Attribute
	recomputed  int
	modified    bool
	exists      bool
	valid       bool
	started     time.Time

	// before holds the per-attribute states of every touched attribute as
	// they were when the operation first touched it.
	before  map[metadata.Attribute]attrState
	touched []metadata.Attribute
}

type attrState struct {
	modified bool
	valid    bool
}

// touch records the state of a before its first mutation in this batch.
func (b *batch) touch(e *Entity, a metadata.Attribute) {
	if _, ok := b.before[a]; ok {
		return
	}
	b.before[a] = attrState{modified: e.IsModified(a), valid: e.IsValid(a)}
	b.touched = append(b.touched, a)
}

// run executes mutate under the write guard and delivers the collected
// notifications before releasing it. Invalidation hooks run after release so
// they may write to the entity.
func (e *Entity) run(name string, mutate func(*batch)) error {
	if !e.busy.CompareAndSwap(false, true) {
		return e.reject(apperror.NewReentrantWrite(e.et.Name(), name))
	}
	b := &batch{
		modified: e.Modified(),
		exists:   e.Exists(),
		valid:    e.Valid(),
		started:  time.Now(),
		before:   make(map[metadata.Attribute]attrState),
	}
	func() {
		defer e.busy.Store(false)
		mutate(b)
		e.deliver(b)
	}()

	if e.observer != nil {
		e.observer.WriteCompleted(e.et.Name(), b.recomputed, len(b.notices), time.Since(b.started))
	}
	for _, fk := range b.invalidated {
		if e.current[fk] == nil {
			e.invalidated.Fire(fk)
		}
	}
	return nil
}

// deliver fires value and edit notices in propagation order, then the
// per-attribute state changes, then the entity state changes. A state that
// flipped and flipped back within the batch is not reported.
func (e *Entity) deliver(b *batch) {
	for _, n := range b.notices {
		l := e.attrs[n.attr]
		if n.change != nil {
			l.valueChanged.Fire(*n.change)
			e.anyValueChanged.Fire(*n.change)
			if present := n.change.Value != nil; present != (n.change.Previous != nil) {
				l.presentChanged.Fire(present)
			}
		}
		if n.edited {
			l.edited.Fire(Edit{Attribute: n.attr, Value: n.value})
		}
	}
	for _, a := range b.touched {
		before, l := b.before[a], e.attrs[a]
		if m := e.IsModified(a); m != before.modified {
			l.modifiedChanged.Fire(m)
		}
		if v := e.IsValid(a); v != before.valid {
			l.validChanged.Fire(v)
		}
	}
	if m := e.Modified(); m != b.modified {
		e.modifiedChanged.Fire(m)
	}
	if x := e.Exists(); x != b.exists {
		e.existsChanged.Fire(x)
	}
	if v := e.Valid(); v != b.valid {
		e.validChanged.Fire(v)
	}
}

func (e *Entity) reject(err error) error {
	if e.observer != nil {
		code := apperror.CodeInternal
		if appErr, ok := apperror.AsAppError(err); ok {
			code = appErr.Code
		}
		e.observer.WriteRejected(e.et.Name(), code)
	}
	return err
}

// propagate writes v to root and recomputes its dependents in evaluation
// order. A dependent is recomputed only when one of its sources changed
// during this pass, so a write that changes nothing recomputes nothing.
func (e *Entity) propagate(b *batch, root metadata.Attribute, v any, edited bool) {
	changed := map[metadata.Attribute]bool{root: e.assign(b, root, v, edited)}
	for _, dep := range e.et.Graph().Dependents(root) {
		d, _ := e.derived(dep)
		if !sourceChanged(d, changed) {
			continue
		}
		changed[dep] = e.assign(b, dep, e.compute(dep), edited)
		b.recomputed++
	}
}

func sourceChanged(d *metadata.Derived, changed map[metadata.Attribute]bool) bool {
	for _, src := range d.Sources {
		if changed[src] {
			return true
		}
	}
	return false
}

// assign sets the current value of a and queues its notifications. It
// reports whether dependents of a must be recomputed: the value changed, or a
// referenced entity was replaced by another instance with the same key.
func (e *Entity) assign(b *batch, a metadata.Attribute, v any, edited bool) bool {
	b.touch(e, a)
	prev := e.current[a]
	e.current[a] = v
	e.updateModified(a)
	e.updateValid(a)

	n := notice{attr: a, value: v, edited: edited}
	valueChanged := !metadata.Equal(prev, v)
	if valueChanged {
		n.change = &ValueChange{Attribute: a, Value: v, Previous: prev}
	}
	if valueChanged || edited {
		b.notices = append(b.notices, n)
	}
	return valueChanged || replacedReference(prev, v)
}

func replacedReference(prev, v any) bool {
	p, ok := prev.(metadata.Referenced)
	if !ok {
		return false
	}
	n, ok := v.(metadata.Referenced)
	return ok && p != n
}

// compute evaluates a derived attribute over the current values of its
// sources. A compute function returning a value of the wrong type is a
// definition bug and panics.
func (e *Entity) compute(a metadata.Attribute) any {
	d, _ := e.derived(a)
	values := make(map[metadata.Attribute]any, len(d.Sources))
	for _, src := range d.Sources {
		values[src] = e.current[src]
	}
	v, err := metadata.CheckValue(d, d.Compute(metadata.NewSourceValues(values)))
	if err != nil {
		panic(fmt.Errorf("compute %s: %w", a, err))
	}
	return v
}

// writeColumn is a root write of a stored or transient attribute. Foreign
// keys using the attribute as a reference column are invalidated when their
// cached entity no longer matches the written value.
func (e *Entity) writeColumn(b *batch, a metadata.Attribute, v any) {
	e.propagate(b, a, v, true)
	for _, fk := range e.et.ForeignKeysOf(a) {
		cached, ok := e.current[fk.Attr].(metadata.Referenced)
		if !ok || cached == nil {
			continue
		}
		ref, _ := fk.Column(a)
		if metadata.Equal(cached.Get(ref.Referenced), v) {
			continue
		}
		e.propagate(b, fk.Attr, nil, true)
		b.invalidated = append(b.invalidated, fk.Attr)
	}
}

// writeForeignKey sets the foreign key, then each writable reference column
// from the referenced entity. columns holds the checked column values.
func (e *Entity) writeForeignKey(b *batch, fk *metadata.ForeignKey, ref any, columns map[metadata.Attribute]any) {
	e.propagate(b, fk.Attr, ref, true)
	for _, r := range fk.References {
		if r.ReadOnly {
			continue
		}
		e.writeColumn(b, r.Column, columns[r.Column])
	}
}
