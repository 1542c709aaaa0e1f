package schema

import "github.com/astro-dev-lab/tablekit/runtime/types"

// DefaultValue is either a literal or one of the sentinel defaults the CRUD
// layer fills at insert time ("now", "uuid").
type DefaultValue struct {
	Literal  interface{}
	Sentinel string
}

const (
	SentinelNow  = "now"
	SentinelUUID = "uuid"
)

// ForeignKeyDescriptor relates an owning column to a referenced table. The
// referenced column defaults to the target table's primary key and is
// resolved during Resolve.
type ForeignKeyDescriptor struct {
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
	OnUpdate  string
	NoIndex   bool
}

// Referential actions.
const (
	ActionCascade    = "CASCADE"
	ActionRestrict   = "RESTRICT"
	ActionSetNull    = "SET NULL"
	ActionSetDefault = "SET DEFAULT"
	ActionNoAction   = "NO ACTION"
)

// ColumnDescriptor is the canonical metadata for one table field. Each field
// is declared once by calling a constructor and chaining modifiers; the
// descriptor is a plain value, with no side table or implicit registry
// behind it.
type ColumnDescriptor struct {
	Name          string
	Type          types.LogicalType
	Nullable      bool
	Default       *DefaultValue
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Indexed       bool
	Computed      string // generation expression; computed columns are never writable
	ForeignKey    *ForeignKeyDescriptor

	// Provenance for derived full-text tables: this column mirrors
	// MirrorColumn of MirrorTable and is kept in sync by triggers.
	MirrorTable  string
	MirrorColumn string
}

func newColumn(name string, t types.LogicalType) *ColumnDescriptor {
	return &ColumnDescriptor{Name: name, Type: t}
}

// Integer declares an integer column.
func Integer(name string) *ColumnDescriptor { return newColumn(name, types.Integer) }

// Real declares a floating-point column.
func Real(name string) *ColumnDescriptor { return newColumn(name, types.Real) }

// Text declares a text column.
func Text(name string) *ColumnDescriptor { return newColumn(name, types.Text) }

// Blob declares a binary column.
func Blob(name string) *ColumnDescriptor { return newColumn(name, types.Blob) }

// Boolean declares a boolean column, stored as INTEGER 0/1.
func Boolean(name string) *ColumnDescriptor { return newColumn(name, types.Boolean) }

// Date declares a date column, stored as RFC 3339 text.
func Date(name string) *ColumnDescriptor { return newColumn(name, types.Date) }

// JSON declares a structured column, stored as binary JSON.
func JSON(name string) *ColumnDescriptor { return newColumn(name, types.JSON) }

// Nullable marks the column as accepting NULL.
func (c *ColumnDescriptor) SetNullable() *ColumnDescriptor {
	c.Nullable = true
	return c
}

// WithDefault sets a literal default value.
func (c *ColumnDescriptor) WithDefault(v interface{}) *ColumnDescriptor {
	c.Default = &DefaultValue{Literal: v}
	return c
}

// DefaultNow defaults the column to the current timestamp at insert.
func (c *ColumnDescriptor) DefaultNow() *ColumnDescriptor {
	c.Default = &DefaultValue{Sentinel: SentinelNow}
	return c
}

// DefaultUUID defaults the column to a freshly generated UUID at insert.
func (c *ColumnDescriptor) DefaultUUID() *ColumnDescriptor {
	c.Default = &DefaultValue{Sentinel: SentinelUUID}
	return c
}

// AsPrimaryKey marks the column as (part of) the primary key.
func (c *ColumnDescriptor) AsPrimaryKey() *ColumnDescriptor {
	c.PrimaryKey = true
	return c
}

// AutoInc marks an integer primary key as auto-incrementing; such a column
// may be omitted on insert.
func (c *ColumnDescriptor) AutoInc() *ColumnDescriptor {
	c.PrimaryKey = true
	c.AutoIncrement = true
	return c
}

// SetUnique adds a unique constraint on the column.
func (c *ColumnDescriptor) SetUnique() *ColumnDescriptor {
	c.Unique = true
	return c
}

// SetIndexed requests a single-column supporting index. Multi-column indexes
// are declared at table granularity with WithIndex.
func (c *ColumnDescriptor) SetIndexed() *ColumnDescriptor {
	c.Indexed = true
	return c
}

// References declares a foreign key to another table. The referenced column
// resolves to that table's primary key during Resolve unless RefColumn is
// set explicitly. A supporting index is auto-created unless NoIndex.
func (c *ColumnDescriptor) References(table string, onDelete, onUpdate string) *ColumnDescriptor {
	c.ForeignKey = &ForeignKeyDescriptor{RefTable: table, OnDelete: onDelete, OnUpdate: onUpdate}
	return c
}

// ReferencesColumn declares a foreign key to an explicit column.
func (c *ColumnDescriptor) ReferencesColumn(table, column, onDelete, onUpdate string) *ColumnDescriptor {
	c.ForeignKey = &ForeignKeyDescriptor{RefTable: table, RefColumn: column, OnDelete: onDelete, OnUpdate: onUpdate}
	return c
}

// NoIndex suppresses the automatic foreign-key index.
func (c *ColumnDescriptor) NoIndex() *ColumnDescriptor {
	if c.ForeignKey != nil {
		c.ForeignKey.NoIndex = true
	}
	return c
}

// ComputedFrom makes this a generated column derived from the expression.
// Computed columns are skipped by payload validation and never writable.
func (c *ColumnDescriptor) ComputedFrom(expr string) *ColumnDescriptor {
	c.Computed = expr
	return c
}

// Mirrors records that this column shadows base.column, used by derived
// full-text tables to generate synchronization triggers.
func (c *ColumnDescriptor) Mirrors(table, column string) *ColumnDescriptor {
	c.MirrorTable = table
	c.MirrorColumn = column
	return c
}

// Writable reports whether a payload may supply a value for this column.
func (c *ColumnDescriptor) Writable() bool {
	return c.Computed == ""
}
