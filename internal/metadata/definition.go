package metadata

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/types"
)

// Kind identifies the variant of a Definition.
type Kind uint8

const (
	KindStored Kind = iota + 1
	KindForeignKey
	KindDerived
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindStored:
		return "stored"
	case KindForeignKey:
		return "foreignKey"
	case KindDerived:
		return "derived"
	case KindTransient:
		return "transient"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Definition describes one attribute of an entity type. The set of variants is
// closed: *Stored, *ForeignKey, *Derived and *Transient. Dispatch with a type
// switch.
//
// Definitions are immutable once registered.
type Definition interface {
	Attribute() Attribute
	Kind() Kind
	Base() *Common
	definition()
}

// Common holds the capabilities shared by every variant.
type Common struct {
	Attr     Attribute
	Type     ValueType
	Caption  string
	Nullable bool
	// Default supplies the value of a blank entity. Nil means null.
	Default func() any
	// Min and Max bound numeric values; nil means unbounded.
	Min *decimal.Decimal
	Max *decimal.Decimal
	// MaxLength bounds string length in runes; 0 means unbounded.
	MaxLength int
	// FractionDigits is the maximum number of fraction digits kept for
	// number and money values; -1 keeps all digits.
	FractionDigits int
	// Values restricts the attribute to a list of allowed values.
	Values []any
	// PrimaryKeyIndex is the position within the primary key, -1 if the
	// attribute is not part of it.
	PrimaryKeyIndex int
}

// Attribute returns the attribute being defined.
func (c *Common) Attribute() Attribute { return c.Attr }

// Base returns the shared capability set.
func (c *Common) Base() *Common { return c }

// IsPrimaryKey reports whether the attribute is part of the primary key.
func (c *Common) IsPrimaryKey() bool { return c.PrimaryKeyIndex >= 0 }

// DefaultValue returns the value of the default supplier, or nil.
func (c *Common) DefaultValue() any {
	if c.Default == nil {
		return nil
	}
	return c.Default()
}

// Label returns the caption, or the attribute name if none was given.
func (c *Common) Label() string {
	if c.Caption != "" {
		return c.Caption
	}
	return c.Attr.Name
}

// Stored maps 1:1 to a persisted column.
type Stored struct {
	Common
	Column     string
	ReadOnly   bool
	Insertable bool
	Updatable  bool
}

// Reference is one (local column -> referenced attribute) pair of a foreign key.
type Reference struct {
	Column     Attribute
	Referenced Attribute
	// ReadOnly suppresses writing the column when the foreign key is set,
	// for columns that are maintained through another foreign key.
	ReadOnly bool
}

// ForeignKey is an entity-valued attribute backed by reference columns.
type ForeignKey struct {
	Common
	Referenced string
	References []Reference
}

// Column returns the reference pair for a local column.
func (f *ForeignKey) Column(column Attribute) (Reference, bool) {
	for _, ref := range f.References {
		if ref.Column == column {
			return ref, true
		}
	}
	return Reference{}, false
}

// ComputeFunc computes a derived value from its sources. It must be pure and
// total over the declared domain of the attribute; a panic is treated as a
// domain-definition bug.
type ComputeFunc func(SourceValues) any

// Derived is computed from other attributes of the same entity type.
type Derived struct {
	Common
	Sources []Attribute
	Compute ComputeFunc
	// Expr is the source expression for expression-backed attributes.
	Expr string
	// Denormalized is set when the value is copied from Referenced of the
	// entity held by the single foreign-key source.
	Denormalized *Attribute
}

// Transient lives only in memory and is never persisted.
type Transient struct {
	Common
	// NoModify excludes the attribute from the entity modified state.
	NoModify bool
}

func (*Stored) Kind() Kind     { return KindStored }
func (*ForeignKey) Kind() Kind { return KindForeignKey }
func (*Derived) Kind() Kind    { return KindDerived }
func (*Transient) Kind() Kind  { return KindTransient }

func (*Stored) definition()     {}
func (*ForeignKey) definition() {}
func (*Derived) definition()    {}
func (*Transient) definition()  {}

// SourceValues is the read-only view a ComputeFunc receives. Only the declared
// sources are visible; any other attribute reads as nil.
type SourceValues struct {
	values map[Attribute]any
}

// NewSourceValues creates a view over the given values.
func NewSourceValues(values map[Attribute]any) SourceValues {
	return SourceValues{values: values}
}

// Get returns the value of a source attribute, nil when absent.
func (s SourceValues) Get(a Attribute) any {
	return s.values[a]
}

// Has reports whether a non-nil value is present for a.
func (s SourceValues) Has(a Attribute) bool {
	return !isNil(s.values[a])
}

// Value returns the source value of a as T. ok is false when the value is
// absent or of another type.
func Value[T any](s SourceValues, a Attribute) (T, bool) {
	v, ok := s.values[a].(T)
	return v, ok
}

// --- Options ---

type options struct {
	common   Common
	column   string
	readOnly bool
	noInsert bool
	noUpdate bool
	noModify bool
	applied  map[string]bool
}

func (o *options) mark(name string) { o.applied[name] = true }

// Option configures a definition at construction time.
type Option func(*options)

// WithCaption sets the display caption.
func WithCaption(caption string) Option {
	return func(o *options) { o.common.Caption = caption; o.mark("caption") }
}

// WithNullable sets whether null is a valid value. Attributes are nullable by default.
func WithNullable(nullable bool) Option {
	return func(o *options) { o.common.Nullable = nullable; o.mark("nullable") }
}

// WithDefault sets the default-value supplier used for blank entities.
func WithDefault(fn func() any) Option {
	return func(o *options) { o.common.Default = fn; o.mark("default") }
}

// WithDefaultValue is WithDefault for a constant value.
func WithDefaultValue(v any) Option {
	return WithDefault(func() any { return v })
}

// WithRange bounds a numeric attribute. Either bound may be nil.
func WithRange(lo, hi *decimal.Decimal) Option {
	return func(o *options) { o.common.Min, o.common.Max = lo, hi; o.mark("range") }
}

// WithMaxLength bounds the length of a string attribute.
func WithMaxLength(n int) Option {
	return func(o *options) { o.common.MaxLength = n; o.mark("maxLength") }
}

// WithFractionDigits sets the maximum fraction digits kept for number and money values.
func WithFractionDigits(n int) Option {
	return func(o *options) { o.common.FractionDigits = n; o.mark("fractionDigits") }
}

// WithValues restricts the attribute to a list of allowed values.
func WithValues(values ...any) Option {
	return func(o *options) { o.common.Values = append([]any(nil), values...); o.mark("values") }
}

// WithPrimaryKey marks the attribute as the index-th primary key attribute.
func WithPrimaryKey(index int) Option {
	return func(o *options) { o.common.PrimaryKeyIndex = index; o.common.Nullable = false; o.mark("primaryKey") }
}

// WithColumn sets the column name of a stored attribute. Defaults to the attribute name.
func WithColumn(name string) Option {
	return func(o *options) { o.column = name; o.mark("column") }
}

// ReadOnly marks a stored attribute as not writable by callers.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true; o.mark("readOnly") }
}

// NotInsertable excludes a stored attribute from insert statements.
func NotInsertable() Option {
	return func(o *options) { o.noInsert = true; o.mark("insertable") }
}

// NotUpdatable excludes a stored attribute from update statements.
func NotUpdatable() Option {
	return func(o *options) { o.noUpdate = true; o.mark("updatable") }
}

// NoModify excludes a transient attribute from the entity modified state.
func NoModify() Option {
	return func(o *options) { o.noModify = true; o.mark("noModify") }
}

func applyOptions(attr Attribute, vt ValueType, opts []Option) *options {
	o := &options{
		common: Common{
			Attr:            attr,
			Type:            vt,
			Nullable:        true,
			FractionDigits:  -1,
			PrimaryKeyIndex: -1,
		},
		applied: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// rejectOptions fails when any of the named options was applied.
func (o *options) rejectOptions(kind Kind, names ...string) error {
	for _, name := range names {
		if o.applied[name] {
			return apperror.NewInvalidDefinition(o.common.Attr.String(),
				fmt.Sprintf("option %s does not apply to %s attributes", name, kind))
		}
	}
	return nil
}

// --- Constructors ---

// NewStored defines a persisted column attribute.
func NewStored(attr Attribute, vt ValueType, opts ...Option) (*Stored, error) {
	o := applyOptions(attr, vt, opts)
	if vt == TypeReference {
		return nil, apperror.NewInvalidDefinition(attr.String(), "stored attributes cannot hold references, use a foreign key")
	}
	if err := o.rejectOptions(KindStored, "noModify"); err != nil {
		return nil, err
	}
	d := &Stored{
		Common:     o.common,
		Column:     o.column,
		ReadOnly:   o.readOnly,
		Insertable: !o.noInsert,
		Updatable:  !o.noUpdate,
	}
	if d.Column == "" {
		d.Column = attr.Name
	}
	if err := validateCommon(d); err != nil {
		return nil, err
	}
	return d, nil
}

// NewForeignKey defines an entity-valued attribute referencing entities of
// type referenced through the given column pairs.
func NewForeignKey(attr Attribute, referenced string, refs []Reference, opts ...Option) (*ForeignKey, error) {
	o := applyOptions(attr, TypeReference, opts)
	if err := o.rejectOptions(KindForeignKey, "range", "maxLength", "fractionDigits", "values",
		"primaryKey", "column", "readOnly", "insertable", "updatable", "noModify"); err != nil {
		return nil, err
	}
	if referenced == "" {
		return nil, apperror.NewInvalidDefinition(attr.String(), "referenced entity type is required")
	}
	if len(refs) == 0 {
		return nil, apperror.NewInvalidDefinition(attr.String(), "at least one reference column is required")
	}
	seen := make(map[Attribute]bool, len(refs))
	for _, ref := range refs {
		if ref.Column.Entity != attr.Entity {
			return nil, apperror.NewInvalidDefinition(attr.String(),
				fmt.Sprintf("reference column %s belongs to another entity type", ref.Column))
		}
		if ref.Referenced.Entity != referenced {
			return nil, apperror.NewInvalidDefinition(attr.String(),
				fmt.Sprintf("referenced attribute %s does not belong to %s", ref.Referenced, referenced))
		}
		if seen[ref.Column] {
			return nil, apperror.NewInvalidDefinition(attr.String(),
				fmt.Sprintf("reference column %s listed twice", ref.Column))
		}
		seen[ref.Column] = true
	}
	d := &ForeignKey{
		Common:     o.common,
		Referenced: referenced,
		References: append([]Reference(nil), refs...),
	}
	if err := validateCommon(d); err != nil {
		return nil, err
	}
	return d, nil
}

// NewDerived defines an attribute computed by fn from sources.
func NewDerived(attr Attribute, vt ValueType, sources []Attribute, fn ComputeFunc, opts ...Option) (*Derived, error) {
	o := applyOptions(attr, vt, opts)
	if err := o.rejectOptions(KindDerived, "default", "primaryKey", "column", "readOnly",
		"insertable", "updatable", "noModify"); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, apperror.NewInvalidDefinition(attr.String(), "derived attributes need at least one source")
	}
	if fn == nil {
		return nil, apperror.NewInvalidDefinition(attr.String(), "compute function is required")
	}
	unique := make([]Attribute, 0, len(sources))
	seen := make(map[Attribute]bool, len(sources))
	for _, src := range sources {
		if src == attr {
			return nil, apperror.NewInvalidDefinition(attr.String(), "derived attribute cannot be its own source")
		}
		if !seen[src] {
			seen[src] = true
			unique = append(unique, src)
		}
	}
	d := &Derived{
		Common:  o.common,
		Sources: unique,
		Compute: fn,
	}
	if err := validateCommon(d); err != nil {
		return nil, err
	}
	return d, nil
}

// NewDenormalized defines an attribute whose value is copied from attribute
// referenced of the entity held by foreign key fk.
func NewDenormalized(attr Attribute, vt ValueType, fk Attribute, referenced Attribute, opts ...Option) (*Derived, error) {
	d, err := NewDerived(attr, vt, []Attribute{fk}, func(src SourceValues) any {
		if ref, ok := src.Get(fk).(Referenced); ok && !isNil(ref) {
			return ref.Get(referenced)
		}
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	d.Denormalized = &referenced
	return d, nil
}

// NewTransient defines a memory-only attribute.
func NewTransient(attr Attribute, vt ValueType, opts ...Option) (*Transient, error) {
	o := applyOptions(attr, vt, opts)
	if vt == TypeReference {
		return nil, apperror.NewInvalidDefinition(attr.String(), "transient attributes cannot hold references")
	}
	if err := o.rejectOptions(KindTransient, "primaryKey", "column", "readOnly", "insertable", "updatable"); err != nil {
		return nil, err
	}
	d := &Transient{Common: o.common, NoModify: o.noModify}
	if err := validateCommon(d); err != nil {
		return nil, err
	}
	return d, nil
}

func validateCommon(def Definition) error {
	c := def.Base()
	name := c.Attr.String()
	if c.Attr.Entity == "" || c.Attr.Name == "" {
		return apperror.NewInvalidDefinition(name, "entity type and name are required")
	}
	if strings.ContainsAny(c.Attr.Name, ". ") {
		return apperror.NewInvalidDefinition(name, "name must not contain dots or spaces")
	}
	if !c.Type.Valid() {
		return apperror.NewInvalidDefinition(name, fmt.Sprintf("unknown value type %q", c.Type))
	}
	if (c.Min != nil || c.Max != nil) && !c.Type.Numeric() {
		return apperror.NewInvalidDefinition(name, "range applies to numeric attributes only")
	}
	if c.Min != nil && c.Max != nil && c.Min.GreaterThan(*c.Max) {
		return apperror.NewInvalidDefinition(name, "minimum exceeds maximum")
	}
	if c.MaxLength != 0 && c.Type != TypeString {
		return apperror.NewInvalidDefinition(name, "max length applies to string attributes only")
	}
	if c.MaxLength < 0 {
		return apperror.NewInvalidDefinition(name, "max length must not be negative")
	}
	if c.FractionDigits >= 0 && c.Type != TypeNumber && c.Type != TypeMoney {
		return apperror.NewInvalidDefinition(name, "fraction digits apply to number and money attributes only")
	}
	if c.FractionDigits < -1 {
		return apperror.NewInvalidDefinition(name, "fraction digits must not be negative")
	}
	if c.Default != nil {
		if _, err := CheckValue(def, c.Default()); err != nil {
			return apperror.NewInvalidDefinition(name, "default value does not match the attribute type").WithCause(err)
		}
	}
	for i, v := range c.Values {
		nv, err := CheckValue(def, v)
		if err != nil {
			return apperror.NewInvalidDefinition(name, fmt.Sprintf("allowed value %v does not match the attribute type", v)).WithCause(err)
		}
		c.Values[i] = nv
	}
	return nil
}

// Decimal is a helper for range options.
func Decimal(s string) *decimal.Decimal {
	d := types.MustMoney(s)
	return &d
}
