package entity

import (
	"entigraph/internal/core/apperror"
	"entigraph/internal/metadata"
)

// Set writes v to attribute a and propagates the change to its dependents.
//
// Derived attributes and read-only stored attributes are not writable. Writing
// a foreign key behaves like SetForeignKey. Type mismatches, unwritable
// attributes and reentrant writes fail before any state changes.
func (e *Entity) Set(a metadata.Attribute, v any) error {
	def, err := e.definition(a)
	if err != nil {
		return e.reject(err)
	}
	switch d := def.(type) {
	case *metadata.Derived:
		return e.reject(apperror.NewNotWritable(a.String(), "derived attribute"))
	case *metadata.Stored:
		if d.ReadOnly {
			return e.reject(apperror.NewNotWritable(a.String(), "read-only attribute"))
		}
	case *metadata.ForeignKey:
		return e.setForeignKey(d, v)
	}

	nv, err := metadata.CheckValue(def, v)
	if err != nil {
		return e.reject(err)
	}
	return e.run(a.Name, func(b *batch) {
		e.writeColumn(b, a, nv)
	})
}

// SetForeignKey sets the entity referenced by fk, nil to clear it, and writes
// every reference column not flagged read-only from the referenced entity.
func (e *Entity) SetForeignKey(fk metadata.Attribute, ref metadata.Referenced) error {
	def, err := e.definition(fk)
	if err != nil {
		return e.reject(err)
	}
	d, ok := def.(*metadata.ForeignKey)
	if !ok {
		return e.reject(apperror.NewTypeMismatch(fk.String(), "foreign key", ref))
	}
	return e.setForeignKey(d, ref)
}

func (e *Entity) setForeignKey(fk *metadata.ForeignKey, v any) error {
	nv, err := metadata.CheckValue(fk, v)
	if err != nil {
		return e.reject(err)
	}
	ref, _ := nv.(metadata.Referenced)
	if ref != nil && fk.Referenced == e.et.Name() && (ref == metadata.Referenced(e) || e.KeyEquals(ref)) {
		return e.reject(apperror.NewCircularReference(fk.Attr.String()))
	}

	columns := make(map[metadata.Attribute]any, len(fk.References))
	for _, r := range fk.References {
		if r.ReadOnly {
			continue
		}
		var cv any
		if ref != nil {
			cv = ref.Get(r.Referenced)
		}
		colDef, err := e.definition(r.Column)
		if err != nil {
			return e.reject(err)
		}
		if columns[r.Column], err = metadata.CheckValue(colDef, cv); err != nil {
			return e.reject(err)
		}
	}

	return e.run(fk.Attr.Name, func(b *batch) {
		e.writeForeignKey(b, fk, nv, columns)
	})
}

// Replace makes values the current and original state of the entity, as
// when loading a row. Missing attributes become null and derived attributes
// are recomputed; derived entries in values are ignored.
//
// Attributes for which keep returns true retain their current value and take
// the incoming value as their original. Only value-change notifications are
// delivered.
func (e *Entity) Replace(values map[metadata.Attribute]any, keep func(metadata.Attribute) bool) error {
	checked := make(map[metadata.Attribute]any, len(values))
	for a, v := range values {
		def, err := e.definition(a)
		if err != nil {
			return e.reject(err)
		}
		if _, derived := def.(*metadata.Derived); derived {
			continue
		}
		if checked[a], err = metadata.CheckValue(def, v); err != nil {
			return e.reject(err)
		}
	}

	return e.run("*", func(b *batch) {
		order := e.et.Graph().Order()
		for _, a := range order {
			if _, derived := e.derived(a); derived {
				continue
			}
			e.original[a] = checked[a]
			if keep != nil && keep(a) {
				b.touch(e, a)
				e.updateModified(a)
				continue
			}
			e.assign(b, a, checked[a], false)
		}
		for _, a := range order {
			if _, derived := e.derived(a); derived {
				e.assign(b, a, e.compute(a), false)
				b.recomputed++
			}
		}
	})
}

// Commit makes the current values the original ones.
func (e *Entity) Commit() error {
	return e.run("*", func(b *batch) {
		for _, a := range e.ModifiedAttributes() {
			b.touch(e, a)
		}
		for _, def := range e.et.Definitions() {
			if _, derived := def.(*metadata.Derived); !derived {
				e.original[def.Attribute()] = e.current[def.Attribute()]
			}
		}
		clear(e.modified)
	})
}

// Revert restores the original value of a and propagates it as a write. A
// reverted foreign key does not write its reference columns.
func (e *Entity) Revert(a metadata.Attribute) error {
	if _, err := e.definition(a); err != nil {
		return e.reject(err)
	}
	if !e.IsModified(a) {
		return nil
	}
	return e.run(a.Name, func(b *batch) {
		e.revert(b, a)
	})
}

// RevertAll restores every modified attribute. Reference columns are reverted
// before foreign keys so that the restored entities are not invalidated again.
func (e *Entity) RevertAll() error {
	if !e.Modified() {
		return nil
	}
	return e.run("*", func(b *batch) {
		var fks []metadata.Attribute
		for _, a := range e.ModifiedAttributes() {
			def, _ := e.et.Definition(a)
			if _, fk := def.(*metadata.ForeignKey); fk {
				fks = append(fks, a)
				continue
			}
			e.revert(b, a)
		}
		for _, a := range fks {
			e.revert(b, a)
		}
	})
}

func (e *Entity) revert(b *batch, a metadata.Attribute) {
	def, _ := e.et.Definition(a)
	if _, fk := def.(*metadata.ForeignKey); fk {
		e.propagate(b, a, e.original[a], true)
		return
	}
	e.writeColumn(b, a, e.original[a])
}
