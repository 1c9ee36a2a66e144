package postgres

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"entigraph/internal/core/apperror"
	"entigraph/internal/entity"
	"entigraph/internal/metadata"
)

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Columns returns the stored attributes of et with their column names, in
// declaration order.
func Columns(et *metadata.EntityType) ([]*metadata.Stored, []string) {
	stored := et.Stored()
	cols := make([]string, len(stored))
	for i, s := range stored {
		cols[i] = s.Column
	}
	return stored, cols
}

// SelectWhere builds a single-row SELECT of every stored column of et
// matching the given attribute values.
func SelectWhere(et *metadata.EntityType, where map[metadata.Attribute]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, apperror.NewInvalidInput("select without condition on " + et.Name())
	}
	eq := squirrel.Eq{}
	for a, v := range where {
		s, err := storedOf(et, a)
		if err != nil {
			return "", nil, err
		}
		eq[s.Column] = v
	}
	_, cols := Columns(et)
	return Builder().
		Select(cols...).
		From(et.Table()).
		Where(eq).
		Limit(1).
		ToSql()
}

// SelectByKey builds a SELECT by primary key values in key order.
func SelectByKey(et *metadata.EntityType, key ...any) (string, []any, error) {
	pk := et.PrimaryKey()
	if len(pk) == 0 {
		return "", nil, apperror.NewInvalidInput(et.Name() + " has no primary key")
	}
	if len(key) != len(pk) {
		return "", nil, apperror.NewInvalidInput(
			fmt.Sprintf("%s key has %d attributes, got %d values", et.Name(), len(pk), len(key)))
	}
	where := make(map[metadata.Attribute]any, len(pk))
	for i, a := range pk {
		where[a] = key[i]
	}
	return SelectWhere(et, where)
}

// InsertStatement builds an INSERT of the insertable columns of e. Null
// primary key columns are left to column defaults. Every stored column is
// returned so that generated values reach the edit state.
func InsertStatement(e *entity.Entity) (string, []any, error) {
	et := e.Type()
	stored, cols := Columns(et)

	data := make(map[string]any, len(stored))
	for _, s := range stored {
		if !s.Insertable || s.ReadOnly {
			continue
		}
		v := e.Get(s.Attr)
		if v == nil && s.IsPrimaryKey() {
			continue
		}
		data[s.Column] = v
	}
	if len(data) == 0 {
		return "", nil, apperror.NewInvalidInput("nothing to insert into " + et.Table())
	}

	return Builder().
		Insert(et.Table()).
		SetMap(data).
		Suffix("RETURNING " + strings.Join(cols, ", ")).
		ToSql()
}

// UpdateStatement builds an UPDATE of the modified updatable columns of e,
// matching the original primary key so that key changes are written too.
// It returns an empty statement when no column needs updating.
func UpdateStatement(e *entity.Entity) (string, []any, error) {
	et := e.Type()
	pk := et.PrimaryKey()
	if len(pk) == 0 {
		return "", nil, apperror.NewInvalidInput(et.Name() + " has no primary key")
	}

	set := make(map[string]any)
	for _, a := range e.ModifiedAttributes() {
		def, _ := et.Definition(a)
		s, ok := def.(*metadata.Stored)
		if !ok || !s.Updatable || s.ReadOnly {
			continue
		}
		set[s.Column] = e.Get(a)
	}
	if len(set) == 0 {
		return "", nil, nil
	}

	where := squirrel.Eq{}
	original := e.OriginalKeyValues()
	for i, a := range pk {
		if original[i] == nil {
			return "", nil, apperror.NewInvalidInput(et.Name() + " was never stored")
		}
		s, _ := storedOf(et, a)
		where[s.Column] = original[i]
	}

	_, cols := Columns(et)
	return Builder().
		Update(et.Table()).
		SetMap(set).
		Where(where).
		Suffix("RETURNING " + strings.Join(cols, ", ")).
		ToSql()
}

func storedOf(et *metadata.EntityType, a metadata.Attribute) (*metadata.Stored, error) {
	def, ok := et.Definition(a)
	if !ok {
		return nil, apperror.NewUnknownAttribute(et.Name(), a.String())
	}
	s, ok := def.(*metadata.Stored)
	if !ok {
		return nil, apperror.NewInvalidInput(a.String() + " is not a stored attribute")
	}
	return s, nil
}
