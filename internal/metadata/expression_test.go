package metadata

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entigraph/internal/core/apperror"
)

type namedRef struct {
	fakeRef
	named map[string]any
}

func (n namedRef) NamedValues() map[string]any { return n.named }

func eval(t *testing.T, d *Derived, values map[Attribute]any) any {
	t.Helper()
	return d.Compute(NewSourceValues(values))
}

func TestNewExpression_Money(t *testing.T) {
	salary := Attr("employee", "salary")
	d, err := NewExpression(Attr("employee", "bonus"), TypeMoney, "salary * 0.1", []Attribute{salary})
	require.NoError(t, err)

	assert.Equal(t, "salary * 0.1", d.Expr)
	got := eval(t, d, map[Attribute]any{salary: decimal.NewFromInt(250)})
	assert.True(t, decimal.NewFromInt(25).Equal(got.(decimal.Decimal)))
}

func TestNewExpression_MoneyDropsFloatNoise(t *testing.T) {
	qty := Attr("line", "qty")
	d, err := NewExpression(Attr("line", "total"), TypeMoney, "qty * 0.3", []Attribute{qty})
	require.NoError(t, err)

	got := eval(t, d, map[Attribute]any{qty: decimal.NewFromInt(3)})
	assert.Equal(t, "0.9", got.(decimal.Decimal).String())
}

func TestNewExpression_IntegerRange(t *testing.T) {
	a := Attr("e", "a")
	tests := []struct {
		name string
		expr string
	}{
		{"uint overflow", "uint(a) + 9223372036854775807u"},
		{"double overflow", "double(a) * 1e19"},
		{"double beyond precision", "double(a) * 1152921504606846976.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewExpression(Attr("e", "x"), TypeInteger, tt.expr, []Attribute{a})
			require.NoError(t, err)
			assert.Panics(t, func() { eval(t, d, map[Attribute]any{a: int64(1)}) })
		})
	}

	d, err := NewExpression(Attr("e", "x"), TypeInteger, "uint(a) + 41u", []Attribute{a})
	require.NoError(t, err)
	assert.Equal(t, int64(42), eval(t, d, map[Attribute]any{a: int64(1)}))
}

func TestNewExpression_NullPropagates(t *testing.T) {
	a, b := Attr("e", "a"), Attr("e", "b")
	d, err := NewExpression(Attr("e", "sum"), TypeInteger, "a + b", []Attribute{a, b})
	require.NoError(t, err)

	assert.Nil(t, eval(t, d, map[Attribute]any{a: int64(1)}))
	assert.Equal(t, int64(3), eval(t, d, map[Attribute]any{a: int64(1), b: int64(2)}))
}

func TestNewExpression_ResultTypes(t *testing.T) {
	first, last := Attr("p", "first"), Attr("p", "last")
	qty := Attr("p", "qty")
	key := Attr("p", "key")

	full, err := NewExpression(Attr("p", "full"), TypeString, `first + " " + last`, []Attribute{first, last})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", eval(t, full, map[Attribute]any{first: "Ada", last: "Lovelace"}))

	big, err := NewExpression(Attr("p", "big"), TypeBoolean, "qty > 10", []Attribute{qty})
	require.NoError(t, err)
	assert.Equal(t, true, eval(t, big, map[Attribute]any{qty: int64(11)}))

	ratio, err := NewExpression(Attr("p", "ratio"), TypeNumber, "double(qty) / 4.0", []Attribute{qty})
	require.NoError(t, err)
	assert.Equal(t, 2.5, eval(t, ratio, map[Attribute]any{qty: int64(10)}))

	u := uuid.New()
	same, err := NewExpression(Attr("p", "same"), TypeID, "key", []Attribute{key})
	require.NoError(t, err)
	assert.Equal(t, u, eval(t, same, map[Attribute]any{key: u}))
}

func TestNewExpression_ReferencedEntityAsMap(t *testing.T) {
	dept := Attr("employee", "department")
	d, err := NewExpression(Attr("employee", "dept_label"), TypeString, `department.name + "!"`, []Attribute{dept})
	require.NoError(t, err)

	ref := namedRef{fakeRef: fakeRef{entity: "department"}, named: map[string]any{"name": "R&D", "budget": nil}}
	assert.Equal(t, "R&D!", eval(t, d, map[Attribute]any{dept: ref}))
}

func TestNewExpression_InvalidDefinitions(t *testing.T) {
	a := Attr("e", "a")
	for _, expr := range []string{"a +", "b * 2"} {
		_, err := NewExpression(Attr("e", "x"), TypeInteger, expr, []Attribute{a})
		assert.True(t, apperror.Is(err, apperror.CodeInvalidDefinition), "expr %q: %v", expr, err)
	}
}

func TestNewExpression_EvaluationFailurePanics(t *testing.T) {
	a, b := Attr("e", "a"), Attr("e", "b")
	d, err := NewExpression(Attr("e", "q"), TypeInteger, "a / b", []Attribute{a, b})
	require.NoError(t, err)

	assert.Panics(t, func() { eval(t, d, map[Attribute]any{a: int64(1), b: int64(0)}) })

	wrong, err := NewExpression(Attr("e", "w"), TypeBoolean, "a + 1", []Attribute{a})
	require.NoError(t, err)
	assert.Panics(t, func() { eval(t, wrong, map[Attribute]any{a: int64(1)}) })
}
