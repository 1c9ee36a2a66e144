package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/id"
)

var (
	idType      = reflect.TypeOf(id.ID{})
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// Inspect derives stored attribute definitions of entityType from the
// exported fields of a struct. Embedded structs are flattened.
//
// The attribute name is taken from the db tag, then the json tag, then the
// snake_cased field name; "-" skips the field. The attr tag accepts pk,
// readonly, noinsert and noupdate. Pointer fields and fields without
// binding:"required" are nullable. CreatedAt and UpdatedAt are read-only.
func Inspect(entityType string, v any) ([]Definition, error) {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, apperror.NewInvalidDefinition(entityType, fmt.Sprintf("cannot inspect %T, a struct is required", v))
	}
	var defs []Definition
	pk := 0
	if err := inspectStruct(entityType, t, &defs, &pk); err != nil {
		return nil, err
	}
	return defs, nil
}

func inspectStruct(entityType string, t reflect.Type, defs *[]Definition, pk *int) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.PkgPath != "" { // unexported
			continue
		}

		// Handle embedded structs (flattening)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := inspectStruct(entityType, field.Type, defs, pk); err != nil {
				return err
			}
			continue
		}

		name := columnName(field)
		if name == "-" {
			continue
		}
		vt, ok := mapFieldType(field.Type)
		if !ok {
			continue
		}

		flags := attrFlags(field)
		opts := []Option{WithCaption(guessLabel(field.Name))}
		if isRequired(field) {
			opts = append(opts, WithNullable(false))
		}
		if flags["pk"] {
			opts = append(opts, WithPrimaryKey(*pk))
			*pk++
		}
		if flags["readonly"] || isReadOnly(field) {
			opts = append(opts, ReadOnly())
		}
		if flags["noinsert"] {
			opts = append(opts, NotInsertable())
		}
		if flags["noupdate"] {
			opts = append(opts, NotUpdatable())
		}

		def, err := NewStored(Attr(entityType, name), vt, opts...)
		if err != nil {
			return err
		}
		*defs = append(*defs, def)
	}
	return nil
}

func mapFieldType(t reflect.Type) (ValueType, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case idType:
		return TypeID, true
	case timeType:
		return TypeDate, true
	case decimalType:
		return TypeMoney, true
	}

	switch t.Kind() {
	case reflect.String:
		return TypeString, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return TypeInteger, true
	case reflect.Float32, reflect.Float64:
		return TypeNumber, true
	case reflect.Bool:
		return TypeBoolean, true
	}
	return "", false
}

func columnName(field reflect.StructField) string {
	for _, key := range []string{"db", "json"} {
		if tag, ok := field.Tag.Lookup(key); ok {
			if name, _, _ := strings.Cut(tag, ","); name != "" {
				return name
			}
		}
	}
	return snakeCase(field.Name)
}

func attrFlags(field reflect.StructField) map[string]bool {
	flags := make(map[string]bool)
	if tag, ok := field.Tag.Lookup("attr"); ok {
		for _, f := range strings.Split(tag, ",") {
			flags[strings.TrimSpace(f)] = true
		}
	}
	return flags
}

func isRequired(field reflect.StructField) bool {
	if field.Type.Kind() == reflect.Ptr {
		return false
	}
	if tag, ok := field.Tag.Lookup("binding"); ok {
		return strings.Contains(tag, "required")
	}
	return false
}

func isReadOnly(field reflect.StructField) bool {
	return field.Name == "CreatedAt" || field.Name == "UpdatedAt"
}

// words splits a CamelCase identifier, keeping acronyms together:
// "HTTPServerID" -> HTTP, Server, ID.
func words(name string) []string {
	runes := []rune(name)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		upper := unicode.IsUpper(runes[i])
		prevLower := unicode.IsLower(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if upper && (prevLower || (unicode.IsUpper(runes[i-1]) && nextLower)) {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return append(out, string(runes[start:]))
}

func guessLabel(name string) string {
	return strings.Join(words(name), " ")
}

func snakeCase(name string) string {
	parts := words(name)
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, "_")
}
