package dto

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entigraph/internal/core/apperror"
	"entigraph/internal/metadata"
)

func TestDecodeValue_Integer(t *testing.T) {
	def, err := metadata.NewStored(metadata.Attr("e", "n"), metadata.TypeInteger)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   any
		want int64
		err  bool
	}{
		{"number", json.Number("1000000"), 1000000, false},
		{"beyond float precision", json.Number("9007199254740993"), 9007199254740993, false},
		{"max int64", json.Number("9223372036854775807"), math.MaxInt64, false},
		{"exponent", json.Number("1e3"), 1000, false},
		{"float", float64(1e6), 1000000, false},
		{"string", "42", 42, false},
		{"overflow", json.Number("1e19"), 0, true},
		{"overflow digits", json.Number("9223372036854775808"), 0, true},
		{"float overflow", float64(1e19), 0, true},
		{"float negative overflow", float64(-1e19), 0, true},
		{"float beyond precision", float64(1 << 60), 0, true},
		{"fraction", json.Number("1.5"), 0, true},
		{"float fraction", 2.5, 0, true},
		{"nan", math.NaN(), 0, true},
		{"infinity", math.Inf(1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodeValue(def, tt.in, "2006-01-02")
			if tt.err {
				assert.True(t, apperror.Is(err, apperror.CodeTypeMismatch), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestDecodeValue_Money(t *testing.T) {
	def, err := metadata.NewStored(metadata.Attr("e", "m"), metadata.TypeMoney)
	require.NoError(t, err)

	v, err := DecodeValue(def, json.Number("0.1"), "")
	require.NoError(t, err)
	assert.Equal(t, "0.1", RenderValue(v, ""))
}

func TestDecodeText_Key(t *testing.T) {
	def, err := metadata.NewStored(metadata.Attr("e", "id"), metadata.TypeInteger)
	require.NoError(t, err)

	v, err := DecodeText(def, "1000000", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), v)

	_, err = DecodeText(def, "1e+06.5", "")
	assert.True(t, apperror.Is(err, apperror.CodeTypeMismatch))
}
