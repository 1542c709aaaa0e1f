package sqlgen

import (
	"strconv"
	"strings"

	"github.com/astro-dev-lab/tablekit/runtime/types"
)

// Search describes a full-text predicate against an FTS virtual table. The
// composed match string is always bound as a parameter, never spliced into
// the SQL text.
type Search struct {
	Match     Match
	RankOrder bool      // order results by bm25 relevance
	Weights   []float64 // optional per-column bm25 weights
	Highlight *Highlight
	Snippet   *Snippet
}

// Match composes the dialect's match-operator syntax. Exactly one of
// Phrase, Prefix, Near, And, or Or must be set; Not, when present, excludes
// its sub-match from the base.
type Match struct {
	Phrase string
	Prefix string
	Near   []interface{} // two or more phrase terms, optional trailing numeric distance
	And    []Match
	Or     []Match
	Not    *Match
}

// Highlight projects a highlight() virtual column.
type Highlight struct {
	Column int
	Alias  string
	Open   string
	Close  string
}

// Snippet projects a snippet() virtual column.
type Snippet struct {
	Column   int
	Alias    string
	Open     string
	Close    string
	Ellipsis string
	Tokens   int
}

func (c *compiler) searchPredicate(table string, s *Search) (string, error) {
	match, err := composeMatch(s.Match)
	if err != nil {
		return "", err
	}
	return quoteIdent(table) + " MATCH " + c.bind(match), nil
}

func (c *compiler) searchOrder(table string, s *Search) string {
	args := []string{quoteIdent(table)}
	for _, w := range s.Weights {
		args = append(args, strconv.FormatFloat(w, 'g', -1, 64))
	}
	return "bm25(" + strings.Join(args, ", ") + ")"
}

func (c *compiler) searchProjections(table string, s *Search, plan *RowPlan) ([]string, error) {
	var items []string
	if h := s.Highlight; h != nil {
		if err := checkIdent(h.Alias); err != nil {
			return nil, err
		}
		sql := "highlight(" + quoteIdent(table) + ", " + strconv.Itoa(h.Column) + ", " +
			c.bind(h.Open) + ", " + c.bind(h.Close) + ") AS " + quoteIdent(h.Alias)
		items = append(items, sql)
		plan.Columns[h.Alias] = types.Text
	}
	if sn := s.Snippet; sn != nil {
		if err := checkIdent(sn.Alias); err != nil {
			return nil, err
		}
		tokens := sn.Tokens
		if tokens <= 0 {
			tokens = 32
		}
		sql := "snippet(" + quoteIdent(table) + ", " + strconv.Itoa(sn.Column) + ", " +
			c.bind(sn.Open) + ", " + c.bind(sn.Close) + ", " + c.bind(sn.Ellipsis) + ", " +
			strconv.Itoa(tokens) + ") AS " + quoteIdent(sn.Alias)
		items = append(items, sql)
		plan.Columns[sn.Alias] = types.Text
	}
	return items, nil
}

// composeMatch renders the structured match description into the dialect's
// match-operator syntax.
func composeMatch(m Match) (string, error) {
	base, err := composeMatchBase(m)
	if err != nil {
		return "", err
	}
	if m.Not != nil {
		excluded, err := composeMatch(*m.Not)
		if err != nil {
			return "", err
		}
		if isComposite(*m.Not) {
			excluded = "(" + excluded + ")"
		}
		return base + " NOT " + excluded, nil
	}
	return base, nil
}

func isComposite(m Match) bool {
	return len(m.And) > 0 || len(m.Or) > 0 || m.Not != nil
}

func composeMatchBase(m Match) (string, error) {
	set := 0
	if m.Phrase != "" {
		set++
	}
	if m.Prefix != "" {
		set++
	}
	if len(m.Near) > 0 {
		set++
	}
	if len(m.And) > 0 {
		set++
	}
	if len(m.Or) > 0 {
		set++
	}
	if set != 1 {
		return "", errCompile("match requires exactly one of phrase, prefix, near, and, or")
	}

	switch {
	case m.Phrase != "":
		return quotePhrase(m.Phrase), nil
	case m.Prefix != "":
		return quotePhrase(m.Prefix) + "*", nil
	case len(m.Near) > 0:
		return composeNear(m.Near)
	case len(m.And) > 0:
		return composeList(m.And, " AND ")
	default:
		return composeList(m.Or, " OR ")
	}
}

func composeList(children []Match, sep string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, err := composeMatch(child)
		if err != nil {
			return "", err
		}
		if isComposite(child) {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, sep), nil
}

// composeNear renders NEAR(a b, dist). The array holds phrase terms with an
// optional trailing numeric distance. Fewer than two terms is rejected
// rather than guessing intent.
func composeNear(items []interface{}) (string, error) {
	distance := 10
	terms := items
	if len(items) > 0 {
		if d, ok := numericValue(items[len(items)-1]); ok {
			distance = d
			terms = items[:len(items)-1]
		}
	}
	if len(terms) < 2 {
		return "", errOperator("near", "requires at least two phrase terms")
	}
	phrases := make([]string, 0, len(terms))
	for _, t := range terms {
		s, ok := t.(string)
		if !ok {
			return "", errOperator("near", "phrase terms must be strings")
		}
		phrases = append(phrases, quotePhrase(s))
	}
	return "NEAR(" + strings.Join(phrases, " ") + ", " + strconv.Itoa(distance) + ")", nil
}

func numericValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func quotePhrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
