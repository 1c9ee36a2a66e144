package metadata

import (
	"fmt"
	"unicode/utf8"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/types"
)

// Validate checks v against the nullability, value list, range and length
// constraints of def. It never runs implicitly on write.
//
// A null primary key attribute is valid: the entity is new and the key is
// generated when it is inserted.
func Validate(def Definition, v any) error {
	c := def.Base()
	if isNil(v) {
		if !c.Nullable && !c.IsPrimaryKey() {
			return validationError(c, v, "value is required")
		}
		return nil
	}

	if len(c.Values) > 0 && !containsValue(c.Values, v) {
		return validationError(c, v, fmt.Sprintf("value must be one of %v", c.Values))
	}

	if c.Type.Numeric() && (c.Min != nil || c.Max != nil) {
		n, err := types.ToDecimal(v)
		if err != nil {
			return validationError(c, v, "value is not numeric")
		}
		if c.Min != nil && n.LessThan(*c.Min) {
			return validationError(c, v, fmt.Sprintf("value must be at least %s", c.Min.String()))
		}
		if c.Max != nil && n.GreaterThan(*c.Max) {
			return validationError(c, v, fmt.Sprintf("value must be at most %s", c.Max.String()))
		}
	}

	if s, ok := v.(string); ok && c.MaxLength > 0 && utf8.RuneCountInString(s) > c.MaxLength {
		return validationError(c, v, fmt.Sprintf("length must be at most %d", c.MaxLength))
	}

	return nil
}

func containsValue(values []any, v any) bool {
	for _, allowed := range values {
		if Equal(allowed, v) {
			return true
		}
	}
	return false
}

func validationError(c *Common, v any, constraint string) *apperror.AppError {
	return apperror.NewValidation(fmt.Sprintf("%s: %s", c.Label(), constraint)).
		WithDetail("attribute", c.Attr.String()).
		WithDetail("value", v).
		WithDetail("constraint", constraint)
}
