package metadata

import (
	"fmt"
	"slices"
	"sort"

	"entigraph/internal/core/apperror"
)

// EntityDef describes a business entity before it is built into an EntityType.
type EntityDef struct {
	Name       string
	Caption    string
	Table      string
	Attributes []Definition
}

// Registry collects entity definitions. It is used once at domain-definition
// time; Build turns it into an immutable Domain.
type Registry struct {
	entities map[string]EntityDef
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]EntityDef),
	}
}

// Register adds an entity definition.
func (r *Registry) Register(def EntityDef) error {
	if def.Name == "" {
		return apperror.NewInvalidDefinition("<entity>", "entity name is required")
	}
	if _, dup := r.entities[def.Name]; dup {
		return apperror.NewInvalidDefinition(def.Name, "entity type registered twice")
	}
	r.entities[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister is Register that panics on error. Use for static domains.
func (r *Registry) MustRegister(def EntityDef) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns a registered definition.
func (r *Registry) Get(name string) (EntityDef, bool) {
	d, ok := r.entities[name]
	return d, ok
}

// Build validates every registered entity type and returns the immutable domain.
// It fails with CYCLIC_DEPENDENCY or CROSS_ENTITY_SOURCE from the dependency
// graph builder, or INVALID_DEFINITION for inconsistent foreign keys.
func (r *Registry) Build() (*Domain, error) {
	d := &Domain{
		types: make(map[string]*EntityType, len(r.order)),
		order: make([]*EntityType, 0, len(r.order)),
	}
	for _, name := range r.order {
		et, err := newEntityType(r.entities[name])
		if err != nil {
			return nil, err
		}
		d.types[name] = et
		d.order = append(d.order, et)
	}
	for _, et := range d.order {
		if err := d.checkForeignKeys(et); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MustBuild is Build that panics on error. Use for static domains.
func (r *Registry) MustBuild() *Domain {
	d, err := r.Build()
	if err != nil {
		panic(err)
	}
	return d
}

// Domain is the immutable set of entity types. Safe for concurrent reads.
type Domain struct {
	types map[string]*EntityType
	order []*EntityType
}

// Entity returns the entity type with the given name.
func (d *Domain) Entity(name string) (*EntityType, bool) {
	et, ok := d.types[name]
	return et, ok
}

// MustEntity returns the entity type with the given name or panics.
func (d *Domain) MustEntity(name string) *EntityType {
	et, ok := d.types[name]
	if !ok {
		panic(fmt.Sprintf("undefined entity type %s", name))
	}
	return et
}

// List returns every entity type in registration order.
func (d *Domain) List() []*EntityType {
	return slices.Clone(d.order)
}

func (d *Domain) checkForeignKeys(et *EntityType) error {
	for _, def := range et.defs {
		fk, ok := def.(*ForeignKey)
		if !ok {
			continue
		}
		target, ok := d.types[fk.Referenced]
		if !ok {
			return apperror.NewInvalidDefinition(fk.Attr.String(),
				fmt.Sprintf("referenced entity type %s is not defined", fk.Referenced))
		}
		for _, ref := range fk.References {
			col, ok := et.index[ref.Column].(*Stored)
			if !ok {
				return apperror.NewInvalidDefinition(fk.Attr.String(),
					fmt.Sprintf("reference column %s must be a stored attribute of %s", ref.Column, et.name))
			}
			refDef, ok := target.index[ref.Referenced]
			if !ok {
				return apperror.NewInvalidDefinition(fk.Attr.String(),
					fmt.Sprintf("referenced attribute %s is not defined", ref.Referenced))
			}
			if refDef.Base().Type != col.Type {
				return apperror.NewInvalidDefinition(fk.Attr.String(),
					fmt.Sprintf("column %s is %s but %s is %s", ref.Column, col.Type, ref.Referenced, refDef.Base().Type))
			}
		}
	}
	return nil
}

// EntityType is a built, immutable entity type: its definitions, primary key
// and dependency graph.
type EntityType struct {
	name       string
	caption    string
	table      string
	defs       []Definition
	index      map[Attribute]Definition
	byName     map[string]Attribute
	primaryKey []Attribute
	graph      *Graph
	columnFKs  map[Attribute][]*ForeignKey
}

func newEntityType(def EntityDef) (*EntityType, error) {
	graph, err := BuildGraph(def.Name, def.Attributes)
	if err != nil {
		return nil, err
	}
	et := &EntityType{
		name:      def.Name,
		caption:   def.Caption,
		table:     def.Table,
		defs:      slices.Clone(def.Attributes),
		index:     make(map[Attribute]Definition, len(def.Attributes)),
		byName:    make(map[string]Attribute, len(def.Attributes)),
		graph:     graph,
		columnFKs: make(map[Attribute][]*ForeignKey),
	}
	if et.table == "" {
		et.table = def.Name
	}

	var pk []*Stored
	for _, d := range et.defs {
		a := d.Attribute()
		et.index[a] = d
		et.byName[a.Name] = a
		switch v := d.(type) {
		case *Stored:
			if v.IsPrimaryKey() {
				pk = append(pk, v)
			}
		case *ForeignKey:
			for _, ref := range v.References {
				et.columnFKs[ref.Column] = append(et.columnFKs[ref.Column], v)
			}
		}
	}
	sort.SliceStable(pk, func(i, j int) bool { return pk[i].PrimaryKeyIndex < pk[j].PrimaryKeyIndex })
	for i, p := range pk {
		if i > 0 && p.PrimaryKeyIndex == pk[i-1].PrimaryKeyIndex {
			return nil, apperror.NewInvalidDefinition(p.Attr.String(), "duplicate primary key index")
		}
		et.primaryKey = append(et.primaryKey, p.Attr)
	}
	return et, nil
}

// Name returns the entity type name.
func (t *EntityType) Name() string { return t.name }

// Caption returns the display caption, or the name if none was given.
func (t *EntityType) Caption() string {
	if t.caption != "" {
		return t.caption
	}
	return t.name
}

// Table returns the backing table name.
func (t *EntityType) Table() string { return t.table }

// Graph returns the dependency graph.
func (t *EntityType) Graph() *Graph { return t.graph }

// Definitions returns every definition in declaration order.
func (t *EntityType) Definitions() []Definition { return slices.Clone(t.defs) }

// Definition returns the definition of a.
func (t *EntityType) Definition(a Attribute) (Definition, bool) {
	d, ok := t.index[a]
	return d, ok
}

// Attribute looks up an attribute by name.
func (t *EntityType) Attribute(name string) (Attribute, bool) {
	a, ok := t.byName[name]
	return a, ok
}

// MustAttribute looks up an attribute by name or panics.
func (t *EntityType) MustAttribute(name string) Attribute {
	a, ok := t.byName[name]
	if !ok {
		panic(fmt.Sprintf("%s has no attribute %s", t.name, name))
	}
	return a
}

// Has reports whether a belongs to this entity type.
func (t *EntityType) Has(a Attribute) bool {
	_, ok := t.index[a]
	return ok
}

// PrimaryKey returns the primary key attributes in key order.
func (t *EntityType) PrimaryKey() []Attribute { return slices.Clone(t.primaryKey) }

// ForeignKeysOf returns the foreign keys that use column as a reference column.
func (t *EntityType) ForeignKeysOf(column Attribute) []*ForeignKey {
	return t.columnFKs[column]
}

// Stored returns the stored definitions in declaration order.
func (t *EntityType) Stored() []*Stored {
	var out []*Stored
	for _, d := range t.defs {
		if s, ok := d.(*Stored); ok {
			out = append(out, s)
		}
	}
	return out
}
