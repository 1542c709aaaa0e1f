// Package paginate builds offset and cursor pagination plans over compiled
// read statements.
package paginate

import (
	"github.com/astro-dev-lab/tablekit/query/crud"
	"github.com/astro-dev-lab/tablekit/query/sqlgen"
)

// MaxPageSize caps offset page sizes.
const MaxPageSize = 1000

// OffsetRequest pages a query by page number.
type OffsetRequest struct {
	Query    sqlgen.Query
	Page     int
	PageSize int
	Deleted  crud.DeletedPolicy
}

// OffsetPlan holds the two statements an offset page needs: a count over
// the same WHERE clause, and the data page itself.
type OffsetPlan struct {
	Count    *sqlgen.CompiledStatement
	Data     *sqlgen.CompiledStatement
	Page     int
	PageSize int
}

// OffsetResult is the shaped outcome once both statements have run.
type OffsetResult struct {
	Items      []map[string]interface{}
	Page       int
	PageSize   int
	TotalCount int64
	TotalPages int64
	HasMore    bool
}

// Offset builds an offset pagination plan. Page is clamped to at least 1
// and page size to [1, MaxPageSize].
func Offset(g *crud.Generator, req OffsetRequest) (*OffsetPlan, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	count, err := g.CompileCount(req.Query, req.Deleted)
	if err != nil {
		return nil, err
	}

	q := req.Query
	limit := size
	offset := (page - 1) * size
	q.Limit = &limit
	q.Offset = &offset
	data, err := g.CompileRead(q, req.Deleted)
	if err != nil {
		return nil, err
	}

	return &OffsetPlan{Count: count, Data: data, Page: page, PageSize: size}, nil
}

// Result shapes the executed plan's outputs.
func (p *OffsetPlan) Result(totalCount int64, rows []map[string]interface{}) OffsetResult {
	size := int64(p.PageSize)
	totalPages := (totalCount + size - 1) / size
	return OffsetResult{
		Items:      rows,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
		HasMore:    int64(p.Page) < totalPages,
	}
}

// CursorRequest pages a query by carrying forward the last-seen value of
// the cursor column.
type CursorRequest struct {
	Query        sqlgen.Query
	CursorColumn string
	Cursor       interface{} // nil for the first page
	Limit        int
	Backward     bool
	Deleted      crud.DeletedPolicy
}

// CursorPlan holds the single statement a cursor page needs. The statement
// requests limit+1 rows; the extra row only signals that more exist.
type CursorPlan struct {
	Stmt         *sqlgen.CompiledStatement
	CursorColumn string
	Limit        int
	Backward     bool
}

// CursorPage is the shaped outcome once the statement has run.
type CursorPage struct {
	Items      []map[string]interface{}
	HasMore    bool
	NextCursor interface{} // nil when HasMore is false
}

// Cursor builds a cursor pagination plan: a strict inequality on the cursor
// column ANDed onto the caller's filter, ordered by the cursor column with
// the direction flipped when paging backward.
func Cursor(g *crud.Generator, req CursorRequest) (*CursorPlan, error) {
	limit := req.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	q := req.Query
	if req.Cursor != nil {
		op := "gt"
		if req.Backward {
			op = "lt"
		}
		bound := sqlgen.Filter{req.CursorColumn: sqlgen.Op{op: req.Cursor}}
		if len(q.Filter) == 0 {
			q.Filter = bound
		} else {
			q.Filter = sqlgen.Filter{"and": []sqlgen.Filter{q.Filter, bound}}
		}
	}

	fetch := limit + 1
	q.Limit = &fetch
	q.OrderBy = append([]sqlgen.OrderBy{{Field: req.CursorColumn, Desc: req.Backward}}, q.OrderBy...)

	stmt, err := g.CompileRead(q, req.Deleted)
	if err != nil {
		return nil, err
	}
	return &CursorPlan{Stmt: stmt, CursorColumn: req.CursorColumn, Limit: limit, Backward: req.Backward}, nil
}

// Page trims the sentinel row, restores ascending order for backward pages
// (they are fetched in reverse to keep the inequality efficient), and
// reports the cursor value of the last fetched row when more rows exist.
func (p *CursorPlan) Page(rows []map[string]interface{}) CursorPage {
	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}

	var next interface{}
	if hasMore && len(rows) > 0 {
		next = rows[len(rows)-1][p.CursorColumn]
	}

	if p.Backward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	return CursorPage{Items: rows, HasMore: hasMore, NextCursor: next}
}
