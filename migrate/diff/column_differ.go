package diff

import (
	"fmt"

	"github.com/astro-dev-lab/tablekit/schema"
)

// diffColumns emits the incremental column statements for a table that does
// not need a rebuild. A pending removal and a pending addition whose
// non-name attributes are identical pair into a RENAME COLUMN so the data
// survives; leftovers become plain adds and drops.
func diffColumns(d *Differ, prev, next *schema.TableSchema) []string {
	var removed []*schema.ColumnDescriptor
	for _, col := range prev.Columns {
		if !next.HasColumn(col.Name) {
			removed = append(removed, col)
		}
	}
	var added []*schema.ColumnDescriptor
	for _, col := range next.Columns {
		if !prev.HasColumn(col.Name) {
			added = append(added, col)
		}
	}

	var stmts []string
	renamed := map[string]bool{}
	renamedTo := map[string]bool{}
	for _, col := range added {
		match := matchRename(col, removed, renamed)
		if match == nil {
			continue
		}
		renamed[match.Name] = true
		renamedTo[col.Name] = true
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %q RENAME COLUMN %q TO %q;", next.Name, match.Name, col.Name))
	}

	for _, col := range added {
		if renamedTo[col.Name] {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %q ADD COLUMN %s;", next.Name, schema.ColumnSQL(col, d.reg, false)))
	}
	for _, col := range removed {
		if renamed[col.Name] {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %q DROP COLUMN %q;", next.Name, col.Name))
	}
	return stmts
}

// matchRename finds the first unclaimed removed column whose non-name
// attributes equal the added column's.
func matchRename(added *schema.ColumnDescriptor, removed []*schema.ColumnDescriptor, claimed map[string]bool) *schema.ColumnDescriptor {
	for _, col := range removed {
		if claimed[col.Name] {
			continue
		}
		if columnSignature(col) == columnSignature(added) {
			return col
		}
	}
	return nil
}

// columnSignature fingerprints every attribute of a column except its name.
func columnSignature(col *schema.ColumnDescriptor) string {
	return fmt.Sprintf("%s|%v|%s|%v|%v|%v|%v|%s|%s",
		col.Type, col.Nullable, defaultSignature(col.Default),
		col.PrimaryKey, col.AutoIncrement, col.Unique, col.Indexed,
		col.Computed, fkColumnSignature(col.ForeignKey))
}

func defaultSignature(d *schema.DefaultValue) string {
	if d == nil {
		return ""
	}
	if d.Sentinel != "" {
		return "sentinel:" + d.Sentinel
	}
	return fmt.Sprintf("literal:%v", d.Literal)
}

func fkColumnSignature(fk *schema.ForeignKeyDescriptor) string {
	if fk == nil {
		return ""
	}
	return fk.RefTable + "." + fk.RefColumn + "|" + fk.OnDelete + "|" + fk.OnUpdate
}

// fkSignature fingerprints a resolved table-level foreign key, owning column
// included.
func fkSignature(fk *schema.ForeignKeyDescriptor) string {
	return fk.Column + "->" + fk.RefTable + "." + fk.RefColumn + "|" + fk.OnDelete + "|" + fk.OnUpdate
}
