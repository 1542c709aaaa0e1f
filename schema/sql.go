package schema

import (
	"fmt"
	"strings"

	"github.com/astro-dev-lab/tablekit/runtime/types"
)

// ToSQL renders the CREATE statements for a table: the table itself (or the
// full-text virtual table), its indexes, and any synchronization triggers a
// derived full-text table needs. The registry supplies storage affinities.
func ToSQL(ts *TableSchema, reg *types.Registry) []string {
	if ts.FullText != nil {
		return fullTextSQL(ts)
	}

	var stmts []string
	stmts = append(stmts, CreateTableSQL(ts, reg))
	for _, idx := range ts.Indexes {
		stmts = append(stmts, CreateIndexSQL(ts.Name, idx))
	}
	return stmts
}

// CreateTableSQL renders the CREATE TABLE statement alone, without indexes.
func CreateTableSQL(ts *TableSchema, reg *types.Registry) string {
	var items []string

	pk := ts.PrimaryKeyColumns()
	compositePK := len(pk) > 1

	for _, col := range ts.Columns {
		items = append(items, ColumnSQL(col, reg, compositePK))
	}
	if compositePK {
		items = append(items, "PRIMARY KEY ("+quoteJoin(pk)+")")
	}
	for _, fk := range ts.ForeignKeys {
		line := fmt.Sprintf("FOREIGN KEY (%q) REFERENCES %q(%q)", fk.Column, fk.RefTable, fk.RefColumn)
		if fk.OnDelete != "" {
			line += " ON DELETE " + fk.OnDelete
		}
		if fk.OnUpdate != "" {
			line += " ON UPDATE " + fk.OnUpdate
		}
		items = append(items, line)
	}
	for _, chk := range ts.Checks {
		items = append(items, "CHECK ("+chk.SQL+")")
	}

	return fmt.Sprintf("CREATE TABLE %q (%s);", ts.Name, strings.Join(items, ", "))
}

// ColumnSQL renders one column definition. compositePK suppresses the inline
// PRIMARY KEY clause when the key spans several columns.
func ColumnSQL(col *ColumnDescriptor, reg *types.Registry, compositePK bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%q %s", col.Name, reg.Affinity(col.Type))

	if col.Computed != "" {
		fmt.Fprintf(&sb, " GENERATED ALWAYS AS (%s)", col.Computed)
		return sb.String()
	}
	if col.PrimaryKey && !compositePK {
		sb.WriteString(" PRIMARY KEY")
		if col.AutoIncrement {
			sb.WriteString(" AUTOINCREMENT")
		}
	}
	if !col.Nullable && !col.PrimaryKey {
		sb.WriteString(" NOT NULL")
	}
	if d := defaultSQL(col); d != "" {
		sb.WriteString(" DEFAULT " + d)
	}
	if col.Unique {
		sb.WriteString(" UNIQUE")
	}
	return sb.String()
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = `"` + name + `"`
	}
	return strings.Join(quoted, ", ")
}

// defaultSQL renders a DDL default. The uuid sentinel has no DDL form; the
// CRUD layer fills it at insert time.
func defaultSQL(col *ColumnDescriptor) string {
	if col.Default == nil {
		return ""
	}
	if col.Default.Sentinel == SentinelNow {
		return "CURRENT_TIMESTAMP"
	}
	if col.Default.Sentinel != "" {
		return ""
	}
	switch v := col.Default.Literal.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CreateIndexSQL renders one CREATE INDEX statement.
func CreateIndexSQL(table string, idx IndexDescriptor) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	target := quoteJoin(idx.Columns)
	if idx.Expression != "" {
		target = idx.Expression
	}
	sql := fmt.Sprintf("CREATE %s %q ON %q (%s)", kind, idx.Name, table, target)
	if idx.Where != "" {
		sql += " WHERE " + idx.Where
	}
	return sql + ";"
}

// fullTextSQL renders a CREATE VIRTUAL TABLE plus, for tables mirroring a
// base table, the triggers that keep the index in sync with its content.
func fullTextSQL(ts *TableSchema) []string {
	spec := ts.FullText

	args := make([]string, 0, len(ts.Columns)+3)
	for _, col := range ts.Columns {
		args = append(args, fmt.Sprintf("%q", col.Name))
	}
	if spec.ContentTable != "" {
		args = append(args, fmt.Sprintf("content=%q", spec.ContentTable))
		rowid := spec.ContentRowID
		if rowid == "" {
			rowid = "rowid"
		}
		args = append(args, fmt.Sprintf("content_rowid=%q", rowid))
	}
	if spec.Tokenizer != "" {
		args = append(args, fmt.Sprintf("tokenize='%s'", strings.ReplaceAll(spec.Tokenizer, "'", "''")))
	}

	stmts := []string{fmt.Sprintf("CREATE VIRTUAL TABLE %q USING fts5(%s);", ts.Name, strings.Join(args, ", "))}
	if spec.ContentTable != "" {
		stmts = append(stmts, syncTriggers(ts)...)
	}
	return stmts
}

// syncTriggers uses the per-column mirror provenance to generate the
// insert/update/delete triggers for an external-content full-text table.
func syncTriggers(ts *TableSchema) []string {
	spec := ts.FullText
	rowid := spec.ContentRowID
	if rowid == "" {
		rowid = "rowid"
	}

	var ftsCols, newVals, oldVals []string
	for _, col := range ts.Columns {
		src := col.MirrorColumn
		if src == "" {
			src = col.Name
		}
		ftsCols = append(ftsCols, fmt.Sprintf("%q", col.Name))
		newVals = append(newVals, "new."+fmt.Sprintf("%q", src))
		oldVals = append(oldVals, "old."+fmt.Sprintf("%q", src))
	}
	cols := strings.Join(ftsCols, ", ")
	news := strings.Join(newVals, ", ")
	olds := strings.Join(oldVals, ", ")

	base := spec.ContentTable
	return []string{
		fmt.Sprintf(
			"CREATE TRIGGER %q AFTER INSERT ON %q BEGIN INSERT INTO %q(rowid, %s) VALUES (new.%q, %s); END;",
			ts.Name+"_ai", base, ts.Name, cols, rowid, news),
		fmt.Sprintf(
			"CREATE TRIGGER %q AFTER DELETE ON %q BEGIN INSERT INTO %q(%q, rowid, %s) VALUES ('delete', old.%q, %s); END;",
			ts.Name+"_ad", base, ts.Name, ts.Name, cols, rowid, olds),
		fmt.Sprintf(
			"CREATE TRIGGER %q AFTER UPDATE ON %q BEGIN INSERT INTO %q(%q, rowid, %s) VALUES ('delete', old.%q, %s); INSERT INTO %q(rowid, %s) VALUES (new.%q, %s); END;",
			ts.Name+"_au", base, ts.Name, ts.Name, cols, rowid, olds, ts.Name, cols, rowid, news),
	}
}
