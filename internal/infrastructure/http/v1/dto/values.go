package dto

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/id"
	"entigraph/internal/metadata"
)

// DecodeValue converts a JSON-decoded value to the Go type of def. Dates are
// parsed with layout, falling back to RFC 3339. Foreign keys cannot be written
// from JSON; write their reference columns instead.
func DecodeValue(def metadata.Definition, v any, layout string) (any, error) {
	if v == nil {
		return nil, nil
	}
	c := def.Base()
	var (
		out any
		err error
	)
	switch c.Type {
	case metadata.TypeString, metadata.TypeBoolean:
		out = v
	case metadata.TypeInteger:
		out, err = toInt(v)
	case metadata.TypeNumber:
		out, err = toFloat(v)
	case metadata.TypeMoney:
		out, err = toDecimal(v)
	case metadata.TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(c, v)
		}
		if out, err = time.Parse(layout, s); err != nil {
			out, err = time.Parse(time.RFC3339, s)
		}
	case metadata.TypeID:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(c, v)
		}
		out, err = id.Parse(s)
	default:
		return nil, apperror.NewNotWritable(c.Attr.String(), "write the reference columns instead")
	}
	if err != nil {
		return nil, mismatch(c, v).WithCause(err)
	}
	return out, nil
}

// DecodeText converts a path or query parameter to the Go type of def.
func DecodeText(def metadata.Definition, s string, layout string) (any, error) {
	switch def.Base().Type {
	case metadata.TypeInteger, metadata.TypeNumber, metadata.TypeMoney:
		return DecodeValue(def, json.Number(s), layout)
	case metadata.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, mismatch(def.Base(), s).WithCause(err)
		}
		return b, nil
	}
	return DecodeValue(def, s, layout)
}

func mismatch(c *metadata.Common, v any) *apperror.AppError {
	return apperror.NewTypeMismatch(c.Attr.String(), string(c.Type), v)
}

// maxExactFloat is the largest magnitude below which every integer has an
// exact float64 representation.
const maxExactFloat = 1 << 53

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unsupported %T", v)
}

// floatToInt accepts whole numbers whose integer value survived the float64
// conversion.
func floatToInt(f float64) (int64, error) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, fmt.Errorf("%v is not a finite number", f)
	case f != math.Trunc(f):
		return 0, fmt.Errorf("%v is not a whole number", f)
	case math.Abs(f) > maxExactFloat:
		return 0, fmt.Errorf("%v is beyond the exact integer range of a number; send it as a string", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unsupported %T", v)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(n)
	}
	return decimal.Zero, fmt.Errorf("unsupported %T", v)
}

// RenderValue converts an attribute value for a JSON response. Referenced
// entities render as their key values.
func RenderValue(v any, layout string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(layout)
	case uuid.UUID:
		return x.String()
	case metadata.Referenced:
		key := x.KeyValues()
		out := make([]any, len(key))
		for i, k := range key {
			out[i] = RenderValue(k, layout)
		}
		return out
	}
	return v
}
