package diff

import (
	"fmt"
	"strings"

	"github.com/astro-dev-lab/tablekit/schema"
)

// TempSuffix is appended to a table's name during a rebuild.
const TempSuffix = "__new"

// diffTable compares one table present in both snapshots. Constraint changes
// the dialect cannot alter in place force a full rebuild; everything else is
// emitted as incremental ALTER statements plus index maintenance.
func (d *Differ) diffTable(prev, next *schema.TableSchema) []string {
	if prev.FullText != nil || next.FullText != nil {
		if fullTextEqual(prev, next) {
			return nil
		}
		return append(dropTableSQL(prev), schema.ToSQL(next, d.reg)...)
	}

	if d.needsRecreate(prev, next) {
		return d.recreateTable(prev, next)
	}

	var stmts []string
	stmts = append(stmts, diffColumns(d, prev, next)...)
	stmts = append(stmts, diffIndexes(prev, next)...)
	return stmts
}

// needsRecreate reports whether the change set includes anything that cannot
// be applied with ALTER TABLE: a changed check constraint, a changed primary
// key, a removed foreign key, or a retained column whose descriptor changed.
func (d *Differ) needsRecreate(prev, next *schema.TableSchema) bool {
	if !checksEqual(prev.Checks, next.Checks) {
		return true
	}
	if !stringSetEqual(prev.PrimaryKeyColumns(), next.PrimaryKeyColumns()) {
		return true
	}
	nextFKs := map[string]bool{}
	for _, fk := range next.ForeignKeys {
		nextFKs[fkSignature(&fk)] = true
	}
	for _, fk := range prev.ForeignKeys {
		if !nextFKs[fkSignature(&fk)] {
			return true
		}
	}
	for _, col := range prev.Columns {
		after := next.Column(col.Name)
		if after != nil && columnSignature(col) != columnSignature(after) {
			return true
		}
	}
	return false
}

// recreateTable rebuilds the table under a temporary name with the current
// shape, copies the intersection of old and new columns across, swaps the
// names, restores the indexes, and appends a foreign-key consistency check.
func (d *Differ) recreateTable(prev, next *schema.TableSchema) []string {
	temp := *next
	temp.Name = next.Name + TempSuffix
	temp.Indexes = nil

	var common []string
	for _, col := range next.Columns {
		if col.Computed != "" {
			continue
		}
		if prev.HasColumn(col.Name) {
			common = append(common, `"`+col.Name+`"`)
		}
	}

	stmts := []string{schema.CreateTableSQL(&temp, d.reg)}
	if len(common) > 0 {
		cols := strings.Join(common, ", ")
		stmts = append(stmts, fmt.Sprintf(
			"INSERT INTO %q (%s) SELECT %s FROM %q;", temp.Name, cols, cols, prev.Name))
	}
	stmts = append(stmts,
		fmt.Sprintf("DROP TABLE %q;", prev.Name),
		fmt.Sprintf("ALTER TABLE %q RENAME TO %q;", temp.Name, next.Name),
	)
	for _, idx := range next.Indexes {
		stmts = append(stmts, schema.CreateIndexSQL(next.Name, idx))
	}
	stmts = append(stmts, fmt.Sprintf("PRAGMA foreign_key_check(%q);", next.Name))
	return stmts
}

// diffIndexes leaves unchanged indexes alone and drops/re-creates the rest,
// comparing by a content hash so a renamed-but-identical index still counts
// as changed.
func diffIndexes(prev, next *schema.TableSchema) []string {
	prevIdx := map[string]string{}
	for _, idx := range prev.Indexes {
		prevIdx[idx.Name] = indexHash(idx)
	}
	nextIdx := map[string]string{}
	for _, idx := range next.Indexes {
		nextIdx[idx.Name] = indexHash(idx)
	}

	var stmts []string
	for _, idx := range prev.Indexes {
		if hash, kept := nextIdx[idx.Name]; !kept || hash != indexHash(idx) {
			stmts = append(stmts, fmt.Sprintf("DROP INDEX %q;", idx.Name))
		}
	}
	for _, idx := range next.Indexes {
		if hash, existed := prevIdx[idx.Name]; !existed || hash != indexHash(idx) {
			stmts = append(stmts, schema.CreateIndexSQL(next.Name, idx))
		}
	}
	return stmts
}

// indexHash fingerprints what an index does: kind, target, and predicate.
func indexHash(idx schema.IndexDescriptor) string {
	return fmt.Sprintf("%v|%s|%s|%s", idx.Unique, strings.Join(idx.Columns, ","), idx.Expression, idx.Where)
}

func checksEqual(prev, next []schema.CheckConstraint) bool {
	if len(prev) != len(next) {
		return false
	}
	nextSet := map[string]bool{}
	for _, chk := range next {
		nextSet[chk.Name+"|"+chk.SQL] = true
	}
	for _, chk := range prev {
		if !nextSet[chk.Name+"|"+chk.SQL] {
			return false
		}
	}
	return true
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]bool{}
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func fullTextEqual(prev, next *schema.TableSchema) bool {
	if (prev.FullText == nil) != (next.FullText == nil) {
		return false
	}
	if prev.FullText != nil && *prev.FullText != *next.FullText {
		return false
	}
	if len(prev.Columns) != len(next.Columns) {
		return false
	}
	for i, col := range prev.Columns {
		if columnSignature(col) != columnSignature(next.Columns[i]) || col.Name != next.Columns[i].Name {
			return false
		}
	}
	return true
}
