// Package diff computes a migration script between two schema snapshots. It
// is a pure function over in-memory descriptors: it never inspects a live
// database and never executes anything.
package diff

import (
	"sort"
	"strings"

	"github.com/astro-dev-lab/tablekit/runtime/types"
	"github.com/astro-dev-lab/tablekit/schema"
)

// Differ compares two schema snapshots and renders the migration script.
type Differ struct {
	reg *types.Registry
}

// NewDiffer creates a differ. The registry supplies storage affinities for
// the DDL it renders.
func NewDiffer(reg *types.Registry) *Differ {
	return &Differ{reg: reg}
}

// Diff returns the SQL script that migrates previous to current, or the
// empty string when the snapshots are identical. New tables are created,
// removed tables dropped, and tables present in both are either altered
// incrementally or rebuilt under a temporary name when the dialect cannot
// apply the change in place.
func (d *Differ) Diff(previous, current []*schema.TableSchema) string {
	prev := byName(previous)
	next := byName(current)

	var stmts []string

	for _, name := range sortedNames(next) {
		if _, existed := prev[name]; !existed {
			stmts = append(stmts, schema.ToSQL(next[name], d.reg)...)
		}
	}

	for _, name := range sortedNames(next) {
		before, existed := prev[name]
		if !existed {
			continue
		}
		stmts = append(stmts, d.diffTable(before, next[name])...)
	}

	for _, name := range sortedNames(prev) {
		if _, kept := next[name]; !kept {
			stmts = append(stmts, dropTableSQL(prev[name])...)
		}
	}

	if len(stmts) == 0 {
		return ""
	}
	return wrapScript(stmts)
}

// wrapScript brackets the statements so foreign keys do not fire mid-rebuild
// and the whole script applies atomically.
func wrapScript(stmts []string) string {
	var sb strings.Builder
	sb.WriteString("PRAGMA foreign_keys = OFF;\n")
	sb.WriteString("BEGIN TRANSACTION;\n")
	for _, s := range stmts {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("COMMIT;\n")
	sb.WriteString("PRAGMA foreign_keys = ON;\n")
	return sb.String()
}

func dropTableSQL(ts *schema.TableSchema) []string {
	var stmts []string
	if ts.FullText != nil && ts.FullText.ContentTable != "" {
		for _, suffix := range []string{"_ai", "_ad", "_au"} {
			stmts = append(stmts, `DROP TRIGGER IF EXISTS "`+ts.Name+suffix+`";`)
		}
	}
	return append(stmts, `DROP TABLE "`+ts.Name+`";`)
}

func byName(schemas []*schema.TableSchema) map[string]*schema.TableSchema {
	out := make(map[string]*schema.TableSchema, len(schemas))
	for _, ts := range schemas {
		out[ts.Name] = ts
	}
	return out
}

func sortedNames(m map[string]*schema.TableSchema) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
