package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entigraph/internal/core/apperror"
)

func department(t *testing.T) EntityDef {
	t.Helper()
	id, err := NewStored(Attr("department", "id"), TypeInteger, WithPrimaryKey(0))
	require.NoError(t, err)
	name, err := NewStored(Attr("department", "name"), TypeString)
	require.NoError(t, err)
	return EntityDef{Name: "department", Caption: "Department", Attributes: []Definition{id, name}}
}

func employeeWithFK(t *testing.T, column Definition, refs ...Reference) EntityDef {
	t.Helper()
	fk, err := NewForeignKey(Attr("employee", "department"), "department", refs)
	require.NoError(t, err)
	return EntityDef{Name: "employee", Table: "employees", Attributes: []Definition{column, fk}}
}

func TestRegistry_Build(t *testing.T) {
	col, err := NewStored(Attr("employee", "department_id"), TypeInteger)
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, reg.Register(department(t)))
	require.NoError(t, reg.Register(employeeWithFK(t, col, Reference{
		Column: col.Attr, Referenced: Attr("department", "id"),
	})))

	d, err := reg.Build()
	require.NoError(t, err)

	emp, ok := d.Entity("employee")
	require.True(t, ok)
	assert.Equal(t, "employees", emp.Table())
	assert.Equal(t, "employee", emp.Caption())
	assert.Equal(t, "Department", d.MustEntity("department").Caption())
	assert.Equal(t, "department", d.MustEntity("department").Table())
	assert.Len(t, emp.ForeignKeysOf(col.Attr), 1)
	assert.Len(t, emp.Stored(), 1)
	assert.Equal(t, []string{"department", "employee"}, []string{d.List()[0].Name(), d.List()[1].Name()})

	a, ok := emp.Attribute("department")
	require.True(t, ok)
	assert.True(t, emp.Has(a))
	assert.Panics(t, func() { emp.MustAttribute("nope") })
	assert.Panics(t, func() { d.MustEntity("nope") })
}

func TestRegistry_RejectsBadForeignKeys(t *testing.T) {
	intCol, err := NewStored(Attr("employee", "department_id"), TypeInteger)
	require.NoError(t, err)
	strCol, err := NewStored(Attr("employee", "department_id"), TypeString)
	require.NoError(t, err)
	transientCol, err := NewTransient(Attr("employee", "department_id"), TypeInteger)
	require.NoError(t, err)

	tests := []struct {
		name   string
		emp    EntityDef
		noDept bool
	}{
		{"unknown referenced type", employeeWithFK(t, intCol, Reference{Column: intCol.Attr, Referenced: Attr("department", "id")}), true},
		{"column type differs", employeeWithFK(t, strCol, Reference{Column: strCol.Attr, Referenced: Attr("department", "id")}), false},
		{"column not stored", employeeWithFK(t, transientCol, Reference{Column: transientCol.Attr, Referenced: Attr("department", "id")}), false},
		{"unknown referenced attribute", employeeWithFK(t, intCol, Reference{Column: intCol.Attr, Referenced: Attr("department", "code")}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			if !tt.noDept {
				reg.MustRegister(department(t))
			}
			reg.MustRegister(tt.emp)

			_, err := reg.Build()

			assert.True(t, apperror.Is(err, apperror.CodeInvalidDefinition), "got %v", err)
		})
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(department(t)))

	assert.True(t, apperror.Is(reg.Register(department(t)), apperror.CodeInvalidDefinition))
	assert.True(t, apperror.Is(reg.Register(EntityDef{}), apperror.CodeInvalidDefinition))
	_, ok := reg.Get("department")
	assert.True(t, ok)
}

func TestEntityType_PrimaryKeyOrder(t *testing.T) {
	second, err := NewStored(Attr("line", "no"), TypeInteger, WithPrimaryKey(1))
	require.NoError(t, err)
	first, err := NewStored(Attr("line", "doc"), TypeID, WithPrimaryKey(0))
	require.NoError(t, err)

	reg := NewRegistry()
	reg.MustRegister(EntityDef{Name: "line", Attributes: []Definition{second, first}})
	d := reg.MustBuild()

	assert.Equal(t, []Attribute{first.Attr, second.Attr}, d.MustEntity("line").PrimaryKey())
}

func TestEntityType_DuplicatePrimaryKeyIndex(t *testing.T) {
	a, err := NewStored(Attr("line", "a"), TypeInteger, WithPrimaryKey(0))
	require.NoError(t, err)
	b, err := NewStored(Attr("line", "b"), TypeInteger, WithPrimaryKey(0))
	require.NoError(t, err)

	reg := NewRegistry()
	reg.MustRegister(EntityDef{Name: "line", Attributes: []Definition{a, b}})
	_, err = reg.Build()

	assert.True(t, apperror.Is(err, apperror.CodeInvalidDefinition))
}
