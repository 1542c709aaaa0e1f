// Package schemafile loads table schemas from declarative YAML files.
package schemafile

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/astro-dev-lab/tablekit/query/sqlgen"
	"github.com/astro-dev-lab/tablekit/schema"
)

// File is the top-level YAML document.
type File struct {
	Tables []Table `yaml:"tables"`
}

// Table declares one table.
type Table struct {
	Name       string    `yaml:"name"`
	SoftDelete bool      `yaml:"softDelete"`
	Columns    []Column  `yaml:"columns"`
	Indexes    []Index   `yaml:"indexes"`
	Checks     []Check   `yaml:"checks"`
	FullText   *FullText `yaml:"fullText"`
}

// Column declares one column. Default carries a literal; DefaultSentinel
// carries "now" or "uuid".
type Column struct {
	Name            string      `yaml:"name"`
	Type            string      `yaml:"type"`
	Nullable        bool        `yaml:"nullable"`
	PrimaryKey      bool        `yaml:"primaryKey"`
	AutoIncrement   bool        `yaml:"autoIncrement"`
	Unique          bool        `yaml:"unique"`
	Indexed         bool        `yaml:"indexed"`
	Default         interface{} `yaml:"default"`
	DefaultSentinel string      `yaml:"defaultSentinel"`
	Computed        string      `yaml:"computed"`
	References      *Reference  `yaml:"references"`
	Mirrors         *Mirror     `yaml:"mirrors"`
}

// Reference declares a foreign key.
type Reference struct {
	Table    string `yaml:"table"`
	Column   string `yaml:"column"`
	OnDelete string `yaml:"onDelete"`
	OnUpdate string `yaml:"onUpdate"`
	NoIndex  bool   `yaml:"noIndex"`
}

// Mirror records full-text column provenance.
type Mirror struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

// Index declares a table-level index.
type Index struct {
	Columns    []string               `yaml:"columns"`
	Expression string                 `yaml:"expression"`
	Unique     bool                   `yaml:"unique"`
	Where      map[string]interface{} `yaml:"where"`
}

// Check declares a named check constraint as a condition tree.
type Check struct {
	Name   string                 `yaml:"name"`
	Filter map[string]interface{} `yaml:"filter"`
}

// FullText declares a full-text virtual table.
type FullText struct {
	Tokenizer    string `yaml:"tokenizer"`
	ContentTable string `yaml:"contentTable"`
	ContentRowID string `yaml:"contentRowid"`
}

var constructors = map[string]func(string) *schema.ColumnDescriptor{
	"integer": schema.Integer,
	"real":    schema.Real,
	"text":    schema.Text,
	"blob":    schema.Blob,
	"boolean": schema.Boolean,
	"date":    schema.Date,
	"json":    schema.JSON,
}

// Load reads a YAML schema file and builds the resolved table set.
func Load(path string) ([]*schema.TableSchema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(content)
}

// Parse builds the resolved table set from YAML content.
func Parse(content []byte) ([]*schema.TableSchema, error) {
	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	var tables []*schema.TableSchema
	for _, t := range file.Tables {
		ts, err := buildTable(t)
		if err != nil {
			return nil, err
		}
		tables = append(tables, ts)
	}

	if err := schema.Resolve(tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func buildTable(t Table) (*schema.TableSchema, error) {
	cols := make([]*schema.ColumnDescriptor, 0, len(t.Columns))
	for _, c := range t.Columns {
		col, err := buildColumn(t.Name, c)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	var opts []schema.TableOption
	if t.SoftDelete {
		opts = append(opts, schema.WithSoftDelete())
	}
	for _, idx := range t.Indexes {
		opts = append(opts, schema.WithIndex(schema.IndexSpec{
			Columns:    idx.Columns,
			Expression: idx.Expression,
			Unique:     idx.Unique,
			Where:      sqlgen.Filter(idx.Where),
		}))
	}
	for _, chk := range t.Checks {
		opts = append(opts, schema.WithCheck(chk.Name, sqlgen.Filter(chk.Filter)))
	}
	if t.FullText != nil {
		opts = append(opts, schema.WithFullText(t.FullText.Tokenizer, t.FullText.ContentTable, t.FullText.ContentRowID))
	}

	return schema.NewTable(t.Name, cols, opts...)
}

func buildColumn(table string, c Column) (*schema.ColumnDescriptor, error) {
	construct, ok := constructors[c.Type]
	if !ok {
		return nil, fmt.Errorf("table %q column %q: unknown type %q", table, c.Name, c.Type)
	}
	col := construct(c.Name)

	if c.Nullable {
		col.SetNullable()
	}
	if c.AutoIncrement {
		col.AutoInc()
	} else if c.PrimaryKey {
		col.AsPrimaryKey()
	}
	if c.Unique {
		col.SetUnique()
	}
	if c.Indexed {
		col.SetIndexed()
	}
	switch c.DefaultSentinel {
	case "":
		if c.Default != nil {
			col.WithDefault(c.Default)
		}
	case schema.SentinelNow:
		col.DefaultNow()
	case schema.SentinelUUID:
		col.DefaultUUID()
	default:
		return nil, fmt.Errorf("table %q column %q: unknown default sentinel %q", table, c.Name, c.DefaultSentinel)
	}
	if c.Computed != "" {
		col.ComputedFrom(c.Computed)
	}
	if ref := c.References; ref != nil {
		if ref.Column != "" {
			col.ReferencesColumn(ref.Table, ref.Column, ref.OnDelete, ref.OnUpdate)
		} else {
			col.References(ref.Table, ref.OnDelete, ref.OnUpdate)
		}
		if ref.NoIndex {
			col.NoIndex()
		}
	}
	if c.Mirrors != nil {
		col.Mirrors(c.Mirrors.Table, c.Mirrors.Column)
	}
	return col, nil
}
