package sqlgen

// Compiler compiles the fragments of one statement against a shared
// placeholder namespace. Other generators (CRUD, pagination) use it to mix
// their own SQL with compiled condition trees without placeholder
// collisions. State is scoped to the instance; a fresh Compiler per
// statement keeps compilation reentrant.
type Compiler struct {
	c *compiler
}

// NewStatementCompiler starts a placeholder namespace for one statement.
// knownTables lets dotted filter keys resolve as table-qualified columns.
func NewStatementCompiler(knownTables ...string) *Compiler {
	c := newCompiler()
	for _, t := range knownTables {
		c.tables[t] = true
	}
	return &Compiler{c: c}
}

// Bind allocates the next placeholder for a value and returns its SQL form.
func (s *Compiler) Bind(v interface{}) string {
	return s.c.bind(v)
}

// Filter compiles a condition tree into a boolean fragment.
func (s *Compiler) Filter(f Filter) (string, error) {
	expr, err := s.c.filterExpr(f)
	if err != nil {
		return "", err
	}
	return s.c.compileExpr(expr)
}

// Params returns the accumulated parameter map.
func (s *Compiler) Params() map[string]interface{} {
	return s.c.params
}

// Prefix returns the WITH block for any hoisted subqueries, or "".
func (s *Compiler) Prefix() string {
	return s.c.withClause()
}

// QuoteIdent validates and quotes an identifier.
func QuoteIdent(name string) (string, error) {
	if err := checkIdent(name); err != nil {
		return "", err
	}
	return quoteIdent(name), nil
}
