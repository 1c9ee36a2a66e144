package entity

import (
	"fmt"

	"entigraph/internal/event"
	"entigraph/internal/metadata"
)

func (e *Entity) listeners(a metadata.Attribute) *attrListeners {
	l, ok := e.attrs[a]
	if !ok {
		panic(fmt.Sprintf("%s has no attribute %s", e.et.Name(), a))
	}
	return l
}

// OnValueChanged registers fn for value changes of a. It panics when a does
// not belong to the entity type.
func (e *Entity) OnValueChanged(a metadata.Attribute, fn func(ValueChange)) *event.Subscription {
	return e.listeners(a).valueChanged.Add(fn)
}

// OnEdited registers fn for edits of a. It panics when a does not belong to
// the entity type.
func (e *Entity) OnEdited(a metadata.Attribute, fn func(Edit)) *event.Subscription {
	return e.listeners(a).edited.Add(fn)
}

// OnAttributeModifiedChanged registers fn for changes of IsModified(a).
func (e *Entity) OnAttributeModifiedChanged(a metadata.Attribute, fn func(bool)) *event.Subscription {
	return e.listeners(a).modifiedChanged.Add(fn)
}

// OnAttributeValidChanged registers fn for changes of IsValid(a).
func (e *Entity) OnAttributeValidChanged(a metadata.Attribute, fn func(bool)) *event.Subscription {
	return e.listeners(a).validChanged.Add(fn)
}

// OnAttributePresentChanged registers fn for a turning null or non-null.
func (e *Entity) OnAttributePresentChanged(a metadata.Attribute, fn func(bool)) *event.Subscription {
	return e.listeners(a).presentChanged.Add(fn)
}

// OnAnyValueChanged registers fn for value changes of every attribute.
func (e *Entity) OnAnyValueChanged(fn func(ValueChange)) *event.Subscription {
	return e.anyValueChanged.Add(fn)
}

// OnModifiedChanged registers fn for changes of the entity modified state.
func (e *Entity) OnModifiedChanged(fn func(bool)) *event.Subscription {
	return e.modifiedChanged.Add(fn)
}

// OnExistsChanged registers fn for changes of the entity existence state.
func (e *Entity) OnExistsChanged(fn func(bool)) *event.Subscription {
	return e.existsChanged.Add(fn)
}

// OnValidChanged registers fn for changes of Valid.
func (e *Entity) OnValidChanged(fn func(bool)) *event.Subscription {
	return e.validChanged.Add(fn)
}

// OnInvalidated registers fn to be called with a foreign key whose cached
// entity was cleared because a reference column changed. The hook runs once
// the write has completed and may call SetForeignKey with a fresh entity.
func (e *Entity) OnInvalidated(fn func(fk metadata.Attribute)) *event.Subscription {
	return e.invalidated.Add(fn)
}
