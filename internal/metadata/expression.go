package metadata

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/cel-go/cel"
	celtypes "github.com/google/cel-go/common/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/id"
)

// NamedValues is implemented by referenced entities that can expose their
// values to expressions, keyed by attribute name.
type NamedValues interface {
	NamedValues() map[string]any
}

// NewExpression defines a derived attribute computed by a CEL expression over
// its sources, which are visible to the expression by attribute name. Money is
// exposed as double, ids as strings, referenced entities as maps.
//
// Money arithmetic runs in binary floating point and is therefore lossy: a
// money result keeps 15 significant digits and is then rounded to the
// attribute's fraction digits, if any. Integer results must be whole and
// within the exactly representable range.
//
// Evaluation is null-propagating: when any source is null the result is null.
// The expression is compiled here, so syntax and reference errors surface as
// INVALID_DEFINITION rather than at write time.
func NewExpression(attr Attribute, vt ValueType, expr string, sources []Attribute, opts ...Option) (*Derived, error) {
	decls := make([]cel.EnvOption, 0, len(sources))
	for _, src := range sources {
		decls = append(decls, cel.Variable(src.Name, cel.DynType))
	}
	env, err := cel.NewEnv(decls...)
	if err != nil {
		return nil, apperror.NewInvalidDefinition(attr.String(), "expression environment").WithCause(err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewInvalidDefinition(attr.String(), "invalid expression "+expr).WithCause(iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, apperror.NewInvalidDefinition(attr.String(), "invalid expression "+expr).WithCause(err)
	}

	srcs := append([]Attribute(nil), sources...)
	fn := func(values SourceValues) any {
		vars := make(map[string]any, len(srcs))
		for _, src := range srcs {
			v := values.Get(src)
			if isNil(v) {
				return nil
			}
			vars[src.Name] = toCEL(v)
		}
		out, _, err := prg.Eval(vars)
		if err != nil {
			panic(fmt.Errorf("evaluate %s = %s: %w", attr, expr, err))
		}
		if _, null := out.(celtypes.Null); null {
			return nil
		}
		result, err := fromCEL(vt, out.Value())
		if err != nil {
			panic(fmt.Errorf("evaluate %s = %s: %w", attr, expr, err))
		}
		return result
	}

	d, err := NewDerived(attr, vt, sources, fn, opts...)
	if err != nil {
		return nil, err
	}
	d.Expr = expr
	return d, nil
}

func toCEL(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case uuid.UUID:
		return x.String()
	case NamedValues:
		m := x.NamedValues()
		out := make(map[string]any, len(m))
		for k, mv := range m {
			if isNil(mv) {
				out[k] = nil
				continue
			}
			out[k] = toCEL(mv)
		}
		return out
	}
	return v
}

const (
	// floatDigits is the number of significant decimal digits a float64
	// carries exactly. Money results are cut to it so that binary rounding
	// noise such as 0.8999999999999999 does not reach a decimal.
	floatDigits = 15
	// maxExactFloat bounds the integers a float64 represents exactly.
	maxExactFloat = 1 << 53
)

func fromCEL(vt ValueType, v any) (any, error) {
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
		switch n := v.(type) {
		case int64:
			return n, nil
		case uint64:
			if n > math.MaxInt64 {
				return nil, fmt.Errorf("expression result %d overflows an integer", n)
			}
			return int64(n), nil
		case float64:
			if n == math.Trunc(n) && math.Abs(n) <= maxExactFloat {
				return int64(n), nil
			}
		}
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case TypeMoney:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				break
			}
			return decimal.NewFromString(strconv.FormatFloat(n, 'g', floatDigits, 64))
		case int64:
			return decimal.NewFromInt(n), nil
		case string:
			return decimal.NewFromString(n)
		}
	case TypeDate:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case TypeID:
		if s, ok := v.(string); ok {
			return id.Parse(s)
		}
	}
	return nil, fmt.Errorf("expression result %v (%T) is not a %s", v, v, vt)
}
