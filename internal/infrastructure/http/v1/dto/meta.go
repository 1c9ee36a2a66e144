// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"entigraph/internal/metadata"
)

// EntitySummary lists one entity type.
type EntitySummary struct {
	Name       string `json:"name"`
	Caption    string `json:"caption"`
	Table      string `json:"table"`
	Attributes int    `json:"attributes"`
}

// AttributeInfo describes one attribute definition.
type AttributeInfo struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Type       string   `json:"type"`
	Caption    string   `json:"caption"`
	Nullable   bool     `json:"nullable"`
	PrimaryKey bool     `json:"primaryKey,omitempty"`
	Column     string   `json:"column,omitempty"`
	ReadOnly   bool     `json:"readOnly,omitempty"`
	Referenced string   `json:"referenced,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	Expression string   `json:"expression,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Dependents []string `json:"dependents,omitempty"`
	MaxLength  int      `json:"maxLength,omitempty"`
	Min        *string  `json:"min,omitempty"`
	Max        *string  `json:"max,omitempty"`
	Values     []any    `json:"values,omitempty"`
}

// EntityDetail describes an entity type with its evaluation order.
type EntityDetail struct {
	Name       string          `json:"name"`
	Caption    string          `json:"caption"`
	Table      string          `json:"table"`
	PrimaryKey []string        `json:"primaryKey"`
	Attributes []AttributeInfo `json:"attributes"`
	Order      []string        `json:"order"`
}

// NewEntitySummary converts an entity type for listing.
func NewEntitySummary(et *metadata.EntityType) EntitySummary {
	return EntitySummary{
		Name:       et.Name(),
		Caption:    et.Caption(),
		Table:      et.Table(),
		Attributes: len(et.Definitions()),
	}
}

// NewEntityDetail converts an entity type with every attribute definition.
func NewEntityDetail(et *metadata.EntityType) EntityDetail {
	g := et.Graph()
	d := EntityDetail{
		Name:       et.Name(),
		Caption:    et.Caption(),
		Table:      et.Table(),
		PrimaryKey: names(et.PrimaryKey()),
		Order:      names(g.Order()),
	}
	for _, def := range et.Definitions() {
		c := def.Base()
		info := AttributeInfo{
			Name:       c.Attr.Name,
			Kind:       def.Kind().String(),
			Type:       string(c.Type),
			Caption:    c.Label(),
			Nullable:   c.Nullable,
			PrimaryKey: c.IsPrimaryKey(),
			Sources:    names(g.Sources(c.Attr)),
			Dependents: names(g.DirectDependents(c.Attr)),
			MaxLength:  c.MaxLength,
			Values:     c.Values,
		}
		if c.Min != nil {
			s := c.Min.String()
			info.Min = &s
		}
		if c.Max != nil {
			s := c.Max.String()
			info.Max = &s
		}
		switch v := def.(type) {
		case *metadata.Stored:
			info.Column = v.Column
			info.ReadOnly = v.ReadOnly
		case *metadata.ForeignKey:
			info.Referenced = v.Referenced
			for _, ref := range v.References {
				info.Columns = append(info.Columns, ref.Column.Name)
			}
		case *metadata.Derived:
			info.Expression = v.Expr
		}
		d.Attributes = append(d.Attributes, info)
	}
	return d
}

func names(attrs []metadata.Attribute) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Name
	}
	return out
}

// Write is one attribute assignment of an evaluate or save request.
type Write struct {
	Attribute string `json:"attribute" binding:"required"`
	Value     any    `json:"value"`
}

// EvaluateRequest applies writes in order to a blank entity.
type EvaluateRequest struct {
	Writes []Write `json:"writes"`
}

// SaveRequest applies writes to the stored entity with Key, or to a new
// entity when Key is empty, and saves the result.
type SaveRequest struct {
	Key    []any   `json:"key"`
	Writes []Write `json:"writes"`
}

// Change is one delivered value-change notification.
type Change struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
	Previous  any    `json:"previous"`
}

// EntityState is the observable state of an edited entity.
type EntityState struct {
	Entity     string            `json:"entity"`
	Status     string            `json:"status"`
	Exists     bool              `json:"exists"`
	Values     map[string]any    `json:"values"`
	Modified   []string          `json:"modified"`
	Changes    []Change          `json:"changes,omitempty"`
	Validation map[string]string `json:"validation,omitempty"`
}
