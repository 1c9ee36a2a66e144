package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"entigraph/internal/metadata"
)

var (
	deptID   = metadata.Attr("department", "id")
	deptName = metadata.Attr("department", "name")

	empID       = metadata.Attr("employee", "id")
	empName     = metadata.Attr("employee", "name")
	empSalary   = metadata.Attr("employee", "salary")
	empBonus    = metadata.Attr("employee", "bonus")
	empTotal    = metadata.Attr("employee", "total")
	empDeptID   = metadata.Attr("employee", "department_id")
	empDept     = metadata.Attr("employee", "department")
	empDeptName = metadata.Attr("employee", "department_name")
	empMgrID    = metadata.Attr("employee", "manager_id")
	empMgr      = metadata.Attr("employee", "manager")
	empNote     = metadata.Attr("employee", "note")
	empStamp    = metadata.Attr("employee", "stamp")
)

func must[T any](t *testing.T) func(T, error) T {
	return func(v T, err error) T {
		t.Helper()
		require.NoError(t, err)
		return v
	}
}

// testDomain builds department and employee:
//
//	employee.bonus = salary * 0.1
//	employee.total = salary + bonus
//	employee.department_name = department.name
func testDomain(t *testing.T) *metadata.Domain {
	t.Helper()
	stored := must[*metadata.Stored](t)
	derived := must[*metadata.Derived](t)
	fk := must[*metadata.ForeignKey](t)
	transient := must[*metadata.Transient](t)

	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(metadata.EntityDef{
		Name: "department",
		Attributes: []metadata.Definition{
			stored(metadata.NewStored(deptID, metadata.TypeInteger, metadata.WithPrimaryKey(0))),
			stored(metadata.NewStored(deptName, metadata.TypeString)),
		},
	}))

	tenth := decimal.RequireFromString("0.1")
	require.NoError(t, reg.Register(metadata.EntityDef{
		Name: "employee",
		Attributes: []metadata.Definition{
			stored(metadata.NewStored(empID, metadata.TypeInteger, metadata.WithPrimaryKey(0))),
			stored(metadata.NewStored(empName, metadata.TypeString, metadata.WithNullable(false), metadata.WithMaxLength(10))),
			stored(metadata.NewStored(empSalary, metadata.TypeMoney,
				metadata.WithFractionDigits(2), metadata.WithRange(metadata.Decimal("0"), nil))),
			derived(metadata.NewDerived(empBonus, metadata.TypeMoney, []metadata.Attribute{empSalary},
				func(s metadata.SourceValues) any {
					salary, ok := metadata.Value[decimal.Decimal](s, empSalary)
					if !ok {
						return nil
					}
					return salary.Mul(tenth)
				})),
			derived(metadata.NewDerived(empTotal, metadata.TypeMoney, []metadata.Attribute{empSalary, empBonus},
				func(s metadata.SourceValues) any {
					salary, ok := metadata.Value[decimal.Decimal](s, empSalary)
					bonus, ok2 := metadata.Value[decimal.Decimal](s, empBonus)
					if !ok || !ok2 {
						return nil
					}
					return salary.Add(bonus)
				})),
			stored(metadata.NewStored(empDeptID, metadata.TypeInteger)),
			fk(metadata.NewForeignKey(empDept, "department", []metadata.Reference{
				{Column: empDeptID, Referenced: deptID},
			})),
			derived(metadata.NewDenormalized(empDeptName, metadata.TypeString, empDept, deptName)),
			stored(metadata.NewStored(empMgrID, metadata.TypeInteger)),
			fk(metadata.NewForeignKey(empMgr, "employee", []metadata.Reference{
				{Column: empMgrID, Referenced: empID},
			})),
			transient(metadata.NewTransient(empNote, metadata.TypeString)),
			stored(metadata.NewStored(empStamp, metadata.TypeInteger, metadata.ReadOnly())),
		},
	}))

	return reg.MustBuild()
}

// recorder captures notifications in delivery order.
type recorder struct {
	changed []string
	edited  []string
}

func (r *recorder) reset() {
	r.changed, r.edited = nil, nil
}

func record(e *Entity) *recorder {
	r := &recorder{}
	e.OnAnyValueChanged(func(c ValueChange) { r.changed = append(r.changed, c.Attribute.Name) })
	for _, def := range e.Type().Definitions() {
		e.OnEdited(def.Attribute(), func(ed Edit) { r.edited = append(r.edited, ed.Attribute.Name) })
	}
	return r
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, expected string, actual any) {
	t.Helper()
	d, ok := actual.(decimal.Decimal)
	require.True(t, ok, "expected decimal, got %T", actual)
	require.True(t, dec(expected).Equal(d), "expected %s, got %s", expected, d)
}
