package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entigraph/internal/core/apperror"
	"entigraph/internal/metadata"
)

func TestFromDB(t *testing.T) {
	u := uuid.New()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		vt   metadata.ValueType
		raw  any
		want any
	}{
		{"int32 widens", metadata.TypeInteger, int32(7), int64(7)},
		{"int16 widens", metadata.TypeInteger, int16(7), int64(7)},
		{"float32 widens", metadata.TypeNumber, float32(0.5), 0.5},
		{"numeric as number", metadata.TypeNumber, pgtype.Numeric{Int: big.NewInt(125), Exp: -2, Valid: true}, 1.25},
		{"uuid bytes", metadata.TypeID, [16]byte(u), u},
		{"uuid text", metadata.TypeID, u.String(), u},
		{"date", metadata.TypeDate, at, at},
		{"null", metadata.TypeString, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := must[*metadata.Stored](t)(metadata.NewStored(metadata.Attr("row", "v"), tt.vt))
			got, err := fromDB(s, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromDB_Money(t *testing.T) {
	s := must[*metadata.Stored](t)(metadata.NewStored(metadata.Attr("row", "v"), metadata.TypeMoney, metadata.WithFractionDigits(2)))

	got, err := fromDB(s, pgtype.Numeric{Int: big.NewInt(12345), Exp: -3, Valid: true})
	require.NoError(t, err)
	d, ok := got.(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("12.35").Equal(d), "got %s", d)

	got, err = fromDB(s, "3.5")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.5").Equal(got.(decimal.Decimal)))
}

func TestFromDB_Mismatch(t *testing.T) {
	s := must[*metadata.Stored](t)(metadata.NewStored(metadata.Attr("row", "v"), metadata.TypeInteger))

	_, err := fromDB(s, "seven")
	assert.True(t, apperror.Is(err, apperror.CodeTypeMismatch))

	m := must[*metadata.Stored](t)(metadata.NewStored(metadata.Attr("row", "m"), metadata.TypeMoney))
	_, err = fromDB(m, pgtype.Numeric{NaN: true, Valid: true})
	assert.True(t, apperror.Is(err, apperror.CodeTypeMismatch))
}

func TestRowValues_MapsColumnsToAttributes(t *testing.T) {
	et := testDomain(t).MustEntity("employee")

	values, err := rowValues(et, map[string]any{
		"id":        int32(5),
		"full_name": "Ann",
		"unknown":   true,
	})
	require.NoError(t, err)

	assert.Equal(t, map[metadata.Attribute]any{
		empID:   int64(5),
		empName: "Ann",
	}, values)
}
