package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/id"
	"entigraph/internal/core/types"
	"entigraph/internal/metadata"
)

// rowValues converts a scanned row keyed by column name into attribute values.
func rowValues(et *metadata.EntityType, row map[string]any) (map[metadata.Attribute]any, error) {
	stored, _ := Columns(et)
	values := make(map[metadata.Attribute]any, len(stored))
	for _, s := range stored {
		raw, ok := row[s.Column]
		if !ok {
			continue
		}
		v, err := fromDB(s, raw)
		if err != nil {
			return nil, err
		}
		values[s.Attr] = v
	}
	return values, nil
}

// fromDB maps a value decoded by pgx onto the Go type of the attribute.
func fromDB(s *metadata.Stored, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	var (
		v   any = raw
		err error
	)
	switch s.Type {
	case metadata.TypeInteger:
		switch n := raw.(type) {
		case int16:
			v = int64(n)
		case int32:
			v = int64(n)
		}
	case metadata.TypeNumber:
		switch n := raw.(type) {
		case float32:
			v = float64(n)
		case pgtype.Numeric:
			var f pgtype.Float8
			if f, err = n.Float64Value(); err == nil {
				v = f.Float64
			}
		}
	case metadata.TypeMoney:
		switch n := raw.(type) {
		case pgtype.Numeric:
			v, err = numericToDecimal(n)
		case string, int64, int32, float64:
			v, err = types.ToDecimal(n)
		}
	case metadata.TypeID:
		switch n := raw.(type) {
		case [16]byte:
			v = id.FromBytes(n)
		case string:
			v, err = id.Parse(n)
		}
	}
	if err != nil {
		return nil, apperror.NewTypeMismatch(s.Attr.String(), string(s.Type), raw).WithCause(err)
	}
	return metadata.CheckValue(s, v)
}

func numericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, fmt.Errorf("null numeric")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, fmt.Errorf("numeric is not finite")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
