package edit

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"entigraph/internal/core/apperror"
	"entigraph/internal/entity"
	"entigraph/internal/metadata"
	"entigraph/pkg/logger"
)

var (
	deptID   = metadata.Attr("department", "id")
	deptName = metadata.Attr("department", "name")

	empID     = metadata.Attr("employee", "id")
	empName   = metadata.Attr("employee", "name")
	empStatus = metadata.Attr("employee", "status")
	empSalary = metadata.Attr("employee", "salary")
	empBonus  = metadata.Attr("employee", "bonus")
	empDeptID = metadata.Attr("employee", "department_id")
	empDept   = metadata.Attr("employee", "department")
)

func testDomain(t *testing.T) *metadata.Domain {
	t.Helper()
	def := func(d metadata.Definition, err error) metadata.Definition {
		t.Helper()
		require.NoError(t, err)
		return d
	}
	stored := func(a metadata.Attribute, vt metadata.ValueType, opts ...metadata.Option) metadata.Definition {
		return def(metadata.NewStored(a, vt, opts...))
	}

	reg := metadata.NewRegistry()
	reg.MustRegister(metadata.EntityDef{Name: "department", Attributes: []metadata.Definition{
		stored(deptID, metadata.TypeInteger, metadata.WithPrimaryKey(0)),
		stored(deptName, metadata.TypeString),
	}})
	reg.MustRegister(metadata.EntityDef{Name: "employee", Attributes: []metadata.Definition{
		stored(empID, metadata.TypeInteger, metadata.WithPrimaryKey(0)),
		stored(empName, metadata.TypeString, metadata.WithNullable(false), metadata.WithMaxLength(5)),
		stored(empStatus, metadata.TypeString, metadata.WithValues("active", "retired"), metadata.WithDefaultValue("active")),
		stored(empSalary, metadata.TypeMoney, metadata.WithRange(metadata.Decimal("0"), metadata.Decimal("10000"))),
		def(metadata.NewExpression(empBonus, metadata.TypeMoney, "salary * 0.1", []metadata.Attribute{empSalary})),
		stored(empDeptID, metadata.TypeInteger),
		def(metadata.NewForeignKey(empDept, "department", []metadata.Reference{{Column: empDeptID, Referenced: deptID}})),
	}})
	return reg.MustBuild()
}

func newState(t *testing.T, d *metadata.Domain) *State {
	t.Helper()
	return New(d.MustEntity("employee"), WithLogger(logger.Nop()))
}

func load(t *testing.T, d *metadata.Domain, name string, values map[metadata.Attribute]any) *entity.Entity {
	t.Helper()
	e, err := entity.Load(d.MustEntity(name), values)
	require.NoError(t, err)
	return e
}

func TestNew_AppliesDefaults(t *testing.T) {
	s := newState(t, testDomain(t))

	assert.Equal(t, "active", s.Get(empStatus))
	assert.False(t, s.Modified())
	assert.False(t, s.Exists())
	assert.Equal(t, StatusBlank, s.Status())
}

func TestStatusTransitions(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)

	require.NoError(t, s.Set(empName, "Ann"))
	assert.Equal(t, StatusDirtyNew, s.Status())

	require.NoError(t, s.SetEntity(load(t, d, "employee", map[metadata.Attribute]any{empID: int64(1), empName: "Bob"})))
	assert.Equal(t, StatusClean, s.Status())

	require.NoError(t, s.Set(empName, "Cy"))
	assert.Equal(t, StatusDirty, s.Status())

	require.NoError(t, s.Commit(nil))
	assert.Equal(t, StatusClean, s.Status())
	assert.Equal(t, "Cy", s.Entity().Original(empName))

	require.NoError(t, s.Set(empName, "Dee"))
	require.NoError(t, s.RevertAll())
	assert.Equal(t, StatusClean, s.Status())
	assert.Equal(t, "Cy", s.Get(empName))

	require.NoError(t, s.Defaults())
	assert.Equal(t, StatusBlank, s.Status())
	assert.Nil(t, s.Get(empName))
}

func TestSetEntity_PersistsFlaggedAttributes(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)
	require.NoError(t, s.SetPersist(empSalary, true))
	require.NoError(t, s.Set(empSalary, decimal.NewFromInt(500)))
	require.NoError(t, s.Set(empName, "Ann"))

	other := load(t, d, "employee", map[metadata.Attribute]any{
		empID:     int64(9),
		empName:   "Other",
		empSalary: decimal.NewFromInt(100),
	})
	require.NoError(t, s.SetEntity(other))

	assert.True(t, decimal.NewFromInt(500).Equal(s.Get(empSalary).(decimal.Decimal)))
	assert.True(t, decimal.NewFromInt(50).Equal(s.Get(empBonus).(decimal.Decimal)))
	assert.Equal(t, "Other", s.Get(empName))
	assert.False(t, s.Entity().IsModified(empName))

	require.NoError(t, s.SetEntity(nil))
	assert.True(t, decimal.NewFromInt(500).Equal(s.Get(empSalary).(decimal.Decimal)))
	assert.Nil(t, s.Get(empName))
	assert.Equal(t, "active", s.Get(empStatus))
}

func TestSetEntity_PersistentForeignKeyKeepsColumns(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)
	rd := load(t, d, "department", map[metadata.Attribute]any{deptID: int64(4), deptName: "R&D"})
	require.NoError(t, s.SetPersist(empDept, true))
	require.NoError(t, s.SetForeignKey(empDept, rd))

	require.NoError(t, s.SetEntity(load(t, d, "employee", map[metadata.Attribute]any{
		empID:     int64(1),
		empDeptID: int64(8),
	})))

	assert.Same(t, rd, s.Get(empDept))
	assert.Equal(t, int64(4), s.Get(empDeptID))
}

func TestSetEntity_RejectsOtherEntityType(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)

	err := s.SetEntity(load(t, d, "department", nil))

	assert.True(t, apperror.Is(err, apperror.CodeTypeMismatch))
}

func TestSetPersist_Errors(t *testing.T) {
	s := newState(t, testDomain(t))

	assert.True(t, apperror.Is(s.SetPersist(empBonus, true), apperror.CodeNotWritable))
	assert.True(t, apperror.Is(s.SetPersist(metadata.Attr("employee", "x"), true), apperror.CodeUnknownAttribute))

	require.NoError(t, s.SetPersist(empName, true))
	assert.True(t, s.Persist(empName))
	require.NoError(t, s.SetPersist(empName, false))
	assert.False(t, s.Persist(empName))
}

func TestRevertScenario(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)
	require.NoError(t, s.SetEntity(load(t, d, "employee", map[metadata.Attribute]any{
		empID:     int64(1),
		empName:   "Ann",
		empSalary: decimal.NewFromInt(1000),
	})))
	require.NoError(t, s.Set(empName, "X"))
	require.NoError(t, s.Set(empSalary, decimal.NewFromInt(2000)))

	var recomputed []metadata.Attribute
	s.OnValueChanged(empBonus, func(c entity.ValueChange) { recomputed = append(recomputed, c.Attribute) })

	require.NoError(t, s.RevertAll())

	assert.Equal(t, "Ann", s.Get(empName))
	assert.True(t, decimal.NewFromInt(1000).Equal(s.Get(empSalary).(decimal.Decimal)))
	assert.True(t, decimal.NewFromInt(100).Equal(s.Get(empBonus).(decimal.Decimal)))
	assert.Equal(t, []metadata.Attribute{empBonus}, recomputed)
	assert.False(t, s.Modified())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		attr       metadata.Attribute
		value      any
		constraint string
	}{
		{"required", empName, nil, "value is required"},
		{"too long", empName, "Maximilian", "length must be at most 5"},
		{"not in list", empStatus, "fired", "value must be one of [active retired]"},
		{"below range", empSalary, decimal.NewFromInt(-1), "value must be at least 0"},
		{"above range", empSalary, decimal.NewFromInt(10001), "value must be at most 10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(t, testDomain(t))
			require.NoError(t, s.Set(tt.attr, tt.value), "writes are never blocked by validation")

			err := s.Validate(tt.attr)

			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.attr.String(), appErr.Details["attribute"])
			assert.Equal(t, tt.constraint, appErr.Details["constraint"])
		})
	}
}

func TestValidateAll(t *testing.T) {
	s := newState(t, testDomain(t))

	err := s.ValidateAll()
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	require.NoError(t, s.Set(empID, 1))
	require.NoError(t, s.Set(empName, "Ann"))
	require.NoError(t, s.Set(empSalary, decimal.NewFromInt(10)))
	assert.NoError(t, s.ValidateAll())
	assert.True(t, apperror.Is(s.Validate(metadata.Attr("employee", "x")), apperror.CodeUnknownAttribute))
}

func TestCommit_WithSavedEntity(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)
	require.NoError(t, s.Set(empName, "Ann"))

	saved := load(t, d, "employee", map[metadata.Attribute]any{empID: int64(77), empName: "Ann"})
	require.NoError(t, s.Commit(saved))

	assert.Equal(t, int64(77), s.Get(empID))
	assert.Equal(t, StatusClean, s.Status())
	assert.Empty(t, s.ModifiedAttributes())
}

func TestCurrentValuesAndModifiedAttributes(t *testing.T) {
	s := newState(t, testDomain(t))
	require.NoError(t, s.Set(empSalary, decimal.NewFromInt(10)))
	require.NoError(t, s.Set(empName, "Ann"))

	values := s.CurrentValues()

	assert.Equal(t, "Ann", values[empName])
	assert.True(t, decimal.NewFromInt(1).Equal(values[empBonus].(decimal.Decimal)))
	assert.Equal(t, []metadata.Attribute{empName, empSalary}, s.ModifiedAttributes())
}

func TestListenerPassthroughs(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)
	var modified, exists []bool
	var edited []string
	s.OnModifiedChanged(func(m bool) { modified = append(modified, m) })
	s.OnExistsChanged(func(x bool) { exists = append(exists, x) })
	sub := s.OnEdited(empName, func(e entity.Edit) { edited = append(edited, e.Value.(string)) })
	var anyChanged int
	s.OnAnyValueChanged(func(entity.ValueChange) { anyChanged++ })

	require.NoError(t, s.Set(empName, "A"))
	sub.Cancel()
	require.NoError(t, s.Set(empName, "B"))
	require.NoError(t, s.Set(empID, 3))

	assert.Equal(t, []string{"A"}, edited)
	assert.Equal(t, []bool{true}, modified)
	assert.Equal(t, []bool{true}, exists)
	assert.Equal(t, 3, anyChanged)
}

func TestOnInvalidated_IsLogged(t *testing.T) {
	d := testDomain(t)
	core, logs := observer.New(zapcore.DebugLevel)
	s := New(d.MustEntity("employee"), WithLogger(logger.FromZap(zap.New(core))))
	require.NoError(t, s.SetForeignKey(empDept, load(t, d, "department", map[metadata.Attribute]any{deptID: int64(1)})))

	var hooked []metadata.Attribute
	s.OnInvalidated(func(fk metadata.Attribute) { hooked = append(hooked, fk) })
	require.NoError(t, s.Set(empDeptID, 2))

	assert.Equal(t, []metadata.Attribute{empDept}, hooked)
	assert.Equal(t, 1, logs.FilterMessage("foreign key invalidated").Len())
}

func TestSetEntity_ChangingAndChangedEvents(t *testing.T) {
	d := testDomain(t)
	s := newState(t, d)
	var log []string
	s.OnEntityChanging(func(e *entity.Entity) {
		log = append(log, fmt.Sprintf("changing %v name=%v", e, s.Get(empName)))
	})
	s.OnAnyValueChanged(func(c entity.ValueChange) { log = append(log, "value "+c.Attribute.Name) })
	s.OnEntityChanged(func(e *entity.Entity) {
		log = append(log, fmt.Sprintf("changed %v name=%v", e, s.Get(empName)))
	})

	ann := load(t, d, "employee", map[metadata.Attribute]any{empID: int64(1), empName: "Ann", empStatus: "active"})
	require.NoError(t, s.SetEntity(ann))
	assert.Equal(t, []string{
		"changing employee{id=1} name=<nil>",
		"value id",
		"value name",
		"changed employee{id=1} name=Ann",
	}, log)

	log = nil
	require.NoError(t, s.SetEntity(nil))
	assert.Equal(t, "changing <nil> name=Ann", log[0])
	assert.Equal(t, "changed <nil> name=<nil>", log[len(log)-1])

	log = nil
	err := s.SetEntity(load(t, d, "department", map[metadata.Attribute]any{deptID: int64(1)}))
	assert.True(t, apperror.Is(err, apperror.CodeTypeMismatch))
	assert.Empty(t, log)
}

func TestAttributeStates(t *testing.T) {
	s := newState(t, testDomain(t))
	var modified, valid, present, entityValid []bool
	s.OnAttributeModifiedChanged(empName, func(m bool) { modified = append(modified, m) })
	s.OnAttributeValidChanged(empName, func(v bool) { valid = append(valid, v) })
	s.OnAttributePresentChanged(empName, func(p bool) { present = append(present, p) })
	s.OnValidChanged(func(v bool) { entityValid = append(entityValid, v) })

	assert.False(t, s.Valid())
	assert.False(t, s.IsValid(empName))
	assert.False(t, s.IsPresent(empName))

	require.NoError(t, s.Set(empName, "Ann"))
	assert.True(t, s.IsModified(empName))
	assert.True(t, s.IsPresent(empName))
	assert.True(t, s.Valid())

	require.NoError(t, s.Set(empName, "Maximilian"))
	assert.False(t, s.IsValid(empName))

	require.NoError(t, s.RevertAll())

	assert.Equal(t, []bool{true, false}, modified)
	assert.Equal(t, []bool{true, false}, valid)
	assert.Equal(t, []bool{true, false}, present)
	assert.Equal(t, []bool{true, false}, entityValid)
	assert.Equal(t, StatusBlank, s.Status())
}
