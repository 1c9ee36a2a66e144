package metadata

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/id"
)

// schemaFile is the YAML layout of a domain definition:
//
//	entities:
//	  - name: employee
//	    table: employees
//	    attributes:
//	      - {name: id, kind: stored, type: integer, primaryKey: true}
//	      - {name: salary, kind: stored, type: money, min: "0"}
//	      - {name: bonus, kind: derived, type: money, sources: [salary], expr: "salary * 0.1"}
//	      - name: department
//	        kind: foreignKey
//	        references: department
//	        columns: [{column: department_id, referenced: id}]
//	      - {name: department_name, kind: denormalized, type: string, foreignKey: department, attribute: name}
type schemaFile struct {
	Entities []entitySpec `yaml:"entities"`
}

type entitySpec struct {
	Name       string          `yaml:"name"`
	Caption    string          `yaml:"caption"`
	Table      string          `yaml:"table"`
	Attributes []attributeSpec `yaml:"attributes"`
}

type attributeSpec struct {
	Name           string    `yaml:"name"`
	Kind           string    `yaml:"kind"`
	Type           ValueType `yaml:"type"`
	Caption        string    `yaml:"caption"`
	Column         string    `yaml:"column"`
	PrimaryKey     bool      `yaml:"primaryKey"`
	Nullable       *bool     `yaml:"nullable"`
	ReadOnly       bool      `yaml:"readOnly"`
	Insertable     *bool     `yaml:"insertable"`
	Updatable      *bool     `yaml:"updatable"`
	Min            *string   `yaml:"min"`
	Max            *string   `yaml:"max"`
	MaxLength      int       `yaml:"maxLength"`
	FractionDigits *int      `yaml:"fractionDigits"`
	Values         []any     `yaml:"values"`
	Default        any       `yaml:"default"`
	Sources        []string  `yaml:"sources"`
	Expr           string    `yaml:"expr"`
	References     string    `yaml:"references"`
	Columns        []refSpec `yaml:"columns"`
	ForeignKey     string    `yaml:"foreignKey"`
	Attribute      string    `yaml:"attribute"`
	NoModify       bool      `yaml:"noModify"`
}

type refSpec struct {
	Column     string `yaml:"column"`
	Referenced string `yaml:"referenced"`
	ReadOnly   bool   `yaml:"readOnly"`
}

// LoadOptions tunes how YAML definitions are interpreted.
type LoadOptions struct {
	// FractionDigits applies to number and money attributes that do not set
	// fractionDigits themselves; -1 keeps all digits.
	FractionDigits int
}

// DefaultLoadOptions keeps all fraction digits.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{FractionDigits: -1}
}

// LoadYAML reads entity definitions from r into a new Registry.
// Expressions are compiled while loading.
func LoadYAML(r io.Reader, opts LoadOptions) (*Registry, error) {
	var file schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, apperror.NewInvalidInput("malformed schema").WithCause(err)
	}

	reg := NewRegistry()
	for _, es := range file.Entities {
		def := EntityDef{Name: es.Name, Caption: es.Caption, Table: es.Table}
		pkIndex := 0
		for _, as := range es.Attributes {
			d, err := buildAttribute(es, as, &pkIndex, opts)
			if err != nil {
				return nil, err
			}
			def.Attributes = append(def.Attributes, d)
		}
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildAttribute(es entitySpec, as attributeSpec, pkIndex *int, lopts LoadOptions) (Definition, error) {
	entity := es.Name
	attr := Attr(entity, as.Name)
	var opts []Option

	if as.Caption != "" {
		opts = append(opts, WithCaption(as.Caption))
	}
	if as.Nullable != nil {
		opts = append(opts, WithNullable(*as.Nullable))
	}
	if as.Min != nil || as.Max != nil {
		lo, hi, err := parseRange(attr, as.Min, as.Max)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRange(lo, hi))
	}
	if as.MaxLength != 0 {
		opts = append(opts, WithMaxLength(as.MaxLength))
	}
	if as.FractionDigits != nil {
		opts = append(opts, WithFractionDigits(*as.FractionDigits))
	} else if lopts.FractionDigits >= 0 && (as.Type == TypeNumber || as.Type == TypeMoney) {
		opts = append(opts, WithFractionDigits(lopts.FractionDigits))
	}
	if len(as.Values) > 0 {
		values := make([]any, 0, len(as.Values))
		for _, v := range as.Values {
			cv, err := convertLiteral(attr, as.Type, v)
			if err != nil {
				return nil, err
			}
			values = append(values, cv)
		}
		opts = append(opts, WithValues(values...))
	}
	if as.Type == TypeID && as.Default == "new" {
		opts = append(opts, WithDefault(func() any { return id.New() }))
	} else if as.Default != nil {
		dv, err := convertLiteral(attr, as.Type, as.Default)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDefaultValue(dv))
	}

	switch as.Kind {
	case "", "stored":
		if as.PrimaryKey {
			opts = append(opts, WithPrimaryKey(*pkIndex))
			*pkIndex++
		}
		if as.Column != "" {
			opts = append(opts, WithColumn(as.Column))
		}
		if as.ReadOnly {
			opts = append(opts, ReadOnly())
		}
		if as.Insertable != nil && !*as.Insertable {
			opts = append(opts, NotInsertable())
		}
		if as.Updatable != nil && !*as.Updatable {
			opts = append(opts, NotUpdatable())
		}
		return NewStored(attr, as.Type, opts...)

	case "foreignKey":
		refs := make([]Reference, 0, len(as.Columns))
		for _, c := range as.Columns {
			refs = append(refs, Reference{
				Column:     Attr(entity, c.Column),
				Referenced: Attr(as.References, c.Referenced),
				ReadOnly:   c.ReadOnly,
			})
		}
		return NewForeignKey(attr, as.References, refs, opts...)

	case "derived":
		if as.Expr == "" {
			return nil, apperror.NewInvalidDefinition(attr.String(), "derived attributes loaded from YAML need an expr")
		}
		sources := make([]Attribute, 0, len(as.Sources))
		for _, s := range as.Sources {
			sources = append(sources, Attr(entity, s))
		}
		return NewExpression(attr, as.Type, as.Expr, sources, opts...)

	case "denormalized":
		for _, other := range es.Attributes {
			if other.Name == as.ForeignKey && other.Kind == "foreignKey" {
				return NewDenormalized(attr, as.Type, Attr(entity, other.Name), Attr(other.References, as.Attribute), opts...)
			}
		}
		return nil, apperror.NewInvalidDefinition(attr.String(), fmt.Sprintf("foreign key %q not found", as.ForeignKey))

	case "transient":
		if as.NoModify {
			opts = append(opts, NoModify())
		}
		return NewTransient(attr, as.Type, opts...)
	}
	return nil, apperror.NewInvalidDefinition(attr.String(), fmt.Sprintf("unknown attribute kind %q", as.Kind))
}

func parseRange(attr Attribute, minStr, maxStr *string) (*decimal.Decimal, *decimal.Decimal, error) {
	var lo, hi *decimal.Decimal
	if minStr != nil {
		d, err := decimal.NewFromString(*minStr)
		if err != nil {
			return nil, nil, apperror.NewInvalidDefinition(attr.String(), "invalid minimum").WithCause(err)
		}
		lo = &d
	}
	if maxStr != nil {
		d, err := decimal.NewFromString(*maxStr)
		if err != nil {
			return nil, nil, apperror.NewInvalidDefinition(attr.String(), "invalid maximum").WithCause(err)
		}
		hi = &d
	}
	return lo, hi, nil
}

// convertLiteral converts a YAML scalar to the runtime type of vt.
func convertLiteral(attr Attribute, vt ValueType, v any) (any, error) {
	fail := func(err error) (any, error) {
		e := apperror.NewInvalidDefinition(attr.String(), fmt.Sprintf("literal %v is not a %s", v, vt))
		if err != nil {
			e = e.WithCause(err)
		}
		return nil, e
	}
	switch vt {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeInteger:
		if n, ok := v.(int); ok {
			return int64(n), nil
		}
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		}
	case TypeMoney:
		switch n := v.(type) {
		case string:
			d, err := decimal.NewFromString(n)
			if err != nil {
				return fail(err)
			}
			return d, nil
		case int:
			return decimal.NewFromInt(int64(n)), nil
		case float64:
			return decimal.NewFromFloat(n), nil
		}
	case TypeDate:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			for _, layout := range []string{time.RFC3339, time.DateOnly} {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed, nil
				}
			}
		}
	case TypeID:
		if s, ok := v.(string); ok {
			u, err := id.Parse(s)
			if err != nil {
				return fail(err)
			}
			return u, nil
		}
	}
	return fail(nil)
}
