// Package metadata is the schema layer: attributes, their definitions, the
// per-entity-type dependency graph and the immutable domain built from them.
package metadata

import (
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/types"
)

// Attribute identifies a named value slot on an entity type.
// It never carries a value; it is a key into an entity's value store.
// Two attributes are equal iff their entity type and name are equal.
type Attribute struct {
	Entity string `json:"entity"`
	Name   string `json:"name"`
}

// Attr is a shorthand constructor for Attribute.
func Attr(entity, name string) Attribute {
	return Attribute{Entity: entity, Name: name}
}

func (a Attribute) String() string {
	return a.Entity + "." + a.Name
}

// IsZero reports whether a is the zero Attribute.
func (a Attribute) IsZero() bool {
	return a.Entity == "" && a.Name == ""
}

// ValueType defines the data type of an attribute value.
type ValueType string

const (
	TypeString    ValueType = "string"
	TypeInteger   ValueType = "integer" // int64
	TypeNumber    ValueType = "number"  // float64
	TypeMoney     ValueType = "money"   // decimal.Decimal
	TypeBoolean   ValueType = "boolean"
	TypeDate      ValueType = "date" // time.Time
	TypeID        ValueType = "id"   // uuid.UUID
	TypeReference ValueType = "reference"
)

// Valid reports whether t is one of the known value types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeMoney, TypeBoolean, TypeDate, TypeID, TypeReference:
		return true
	}
	return false
}

// Numeric reports whether values of t can carry a range.
func (t ValueType) Numeric() bool {
	return t == TypeInteger || t == TypeNumber || t == TypeMoney
}

// Referenced is implemented by entity values held by foreign-key attributes.
type Referenced interface {
	// EntityTypeName returns the name of the entity's type.
	EntityTypeName() string
	// Get returns the current value of an attribute of the entity.
	Get(Attribute) any
	// KeyValues returns the primary key values in key order.
	KeyValues() []any
}

// CheckValue validates v against the declared type of def and returns the
// normalized value: int and int32 widen to int64, float32 to float64, and
// numbers/money are rounded to the definition's fraction digits.
// A typed nil pointer is treated as nil.
func CheckValue(def Definition, v any) (any, error) {
	if isNil(v) {
		return nil, nil
	}
	c := def.Base()
	switch c.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case TypeNumber:
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case float32:
			f = float64(n)
		default:
			return nil, apperror.NewTypeMismatch(c.Attr.String(), string(c.Type), v)
		}
		// NaN never equals itself and would leave the attribute modified forever.
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, apperror.NewTypeMismatch(c.Attr.String(), "finite number", v)
		}
		return roundFloat(c, f), nil
	case TypeMoney:
		if d, ok := v.(decimal.Decimal); ok {
			if c.FractionDigits >= 0 {
				return types.RoundMoney(d, c.FractionDigits), nil
			}
			return d, nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeDate:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case TypeID:
		if u, ok := v.(uuid.UUID); ok {
			return u, nil
		}
	case TypeReference:
		if r, ok := v.(Referenced); ok {
			fk, isFK := def.(*ForeignKey)
			if !isFK || r.EntityTypeName() == fk.Referenced {
				return r, nil
			}
			return nil, apperror.NewTypeMismatch(c.Attr.String(), "reference to "+fk.Referenced, v)
		}
	}
	return nil, apperror.NewTypeMismatch(c.Attr.String(), string(c.Type), v)
}

func roundFloat(c *Common, f float64) float64 {
	if c.FractionDigits < 0 {
		return f
	}
	return types.RoundFloat(f, c.FractionDigits)
}

// Equal reports value equality as used for modified-state tracking:
// decimals compare by value, times by instant, entities by type and primary key
// (falling back to identity while a key is incomplete).
func Equal(a, b any) bool {
	aNil, bNil := isNil(a), isNil(b)
	if aNil || bNil {
		return aNil && bNil
	}
	switch av := a.(type) {
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case Referenced:
		bv, ok := b.(Referenced)
		if !ok || av.EntityTypeName() != bv.EntityTypeName() {
			return false
		}
		ak, bk := av.KeyValues(), bv.KeyValues()
		if len(ak) != len(bk) || len(ak) == 0 {
			return a == b
		}
		for i := range ak {
			if ak[i] == nil || bk[i] == nil {
				return a == b
			}
			if !Equal(ak[i], bk[i]) {
				return false
			}
		}
		return true
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}
