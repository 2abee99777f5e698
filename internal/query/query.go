// Package query implements the gallery filter language.
//
// A query is a pipeline of clauses separated by "|":
//
//	where exif.make = Canon and exif.iso >= 800 | sort dateTaken desc | limit 12
//
// A clause without a keyword is a where clause. Field names resolve through
// the content field registry. Only images are ever selected.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"git.home.luguber.info/inful/photobuilder/internal/content"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
)

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpGe       Op = ">="
	OpLt       Op = "<"
	OpLe       Op = "<="
	OpContains Op = "~"
)

// ErrEmpty is returned for blank expressions.
var ErrEmpty = errors.New("empty query")

type condition struct {
	field string
	op    Op
	value content.Value
	get   content.Accessor
}

// Query is a compiled filter expression. Obtain one with ParseQuery.
type Query struct {
	expr  string
	where []condition
	sort  *content.SortSpec
	limit int
}

// ParseQuery compiles expr.
func ParseQuery(expr string) (*Query, error) {
	q := &Query{expr: strings.TrimSpace(expr)}
	if q.expr == "" {
		return nil, ErrEmpty
	}
	for i, raw := range strings.Split(q.expr, "|") {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			return nil, fmt.Errorf("clause %d is empty", i+1)
		}
		keyword, rest := splitKeyword(clause)
		var err error
		switch keyword {
		case "where":
			err = q.parseWhere(rest)
		case "sort":
			err = q.parseSort(rest)
		case "limit":
			err = q.parseLimit(rest)
		default:
			err = q.parseWhere(clause)
		}
		if err != nil {
			return nil, fmt.Errorf("clause %d %q: %w", i+1, clause, err)
		}
	}
	return q, nil
}

// HasSort reports whether the query orders its own results.
func (q *Query) HasSort() bool { return q != nil && q.sort != nil }

func (q *Query) String() string { return q.expr }

// Apply returns the images of items matching every condition, sorted when the
// query has a sort clause and truncated to its limit. Input order is kept
// otherwise.
func (q *Query) Apply(items []manifest.GalleryContent) []manifest.GalleryContent {
	cmp := content.NewComparer()
	fold := cases.Fold()
	out := make([]manifest.GalleryContent, 0, len(items))
	for _, it := range items {
		if it.Image == nil {
			continue
		}
		if q.matches(it, cmp, fold) {
			out = append(out, it)
		}
	}
	if q.sort != nil {
		content.Sort(out, *q.sort)
	}
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}

// ApplyQuery parses expr and applies it to items.
func ApplyQuery(items []manifest.GalleryContent, expr string) ([]manifest.GalleryContent, error) {
	q, err := ParseQuery(expr)
	if err != nil {
		return nil, err
	}
	return q.Apply(items), nil
}

func (q *Query) matches(it manifest.GalleryContent, cmp *content.Comparer, fold cases.Caser) bool {
	for _, c := range q.where {
		v := c.get(it)
		if v.IsZero() {
			if c.op != OpNe {
				return false
			}
			continue
		}
		if !c.test(v, cmp, fold) {
			return false
		}
	}
	return true
}

func (c condition) test(v content.Value, cmp *content.Comparer, fold cases.Caser) bool {
	if c.op == OpContains {
		return strings.Contains(fold.String(v.String()), fold.String(c.value.String()))
	}
	r := cmp.Compare(v, c.value)
	if (v.Kind == content.KindString || c.value.Kind == content.KindString) && strings.EqualFold(v.String(), c.value.String()) {
		r = 0
	}
	switch c.op {
	case OpEq:
		return r == 0
	case OpNe:
		return r != 0
	case OpGt:
		return r > 0
	case OpGe:
		return r >= 0
	case OpLt:
		return r < 0
	case OpLe:
		return r <= 0
	}
	return false
}

func splitKeyword(clause string) (string, string) {
	word, rest, _ := strings.Cut(clause, " ")
	switch kw := strings.ToLower(word); kw {
	case "where", "sort", "limit":
		return kw, strings.TrimSpace(rest)
	}
	return "", clause
}

func (q *Query) parseWhere(s string) error {
	if s == "" {
		return errors.New("missing condition")
	}
	for _, part := range splitAnd(s) {
		c, err := parseCondition(part)
		if err != nil {
			return err
		}
		q.where = append(q.where, c)
	}
	return nil
}

// splitAnd splits on the word "and", case-insensitively.
func splitAnd(s string) []string {
	fields := strings.Fields(s)
	var parts []string
	var cur []string
	for _, f := range fields {
		if strings.EqualFold(f, "and") {
			parts = append(parts, strings.Join(cur, " "))
			cur = nil
			continue
		}
		cur = append(cur, f)
	}
	return append(parts, strings.Join(cur, " "))
}

var operators = []Op{OpGe, OpLe, OpNe, OpEq, OpGt, OpLt, OpContains}

func parseCondition(s string) (condition, error) {
	idx, op := -1, Op("")
	for i := 0; i < len(s) && idx < 0; i++ {
		for _, candidate := range operators {
			if strings.HasPrefix(s[i:], string(candidate)) {
				idx, op = i, candidate
				break
			}
		}
	}
	if idx < 0 {
		return condition{}, fmt.Errorf("no operator in %q", s)
	}
	field := strings.TrimSpace(s[:idx])
	literal := strings.TrimSpace(s[idx+len(op):])
	if field == "" {
		return condition{}, fmt.Errorf("missing field in %q", s)
	}
	if literal == "" {
		return condition{}, fmt.Errorf("missing value in %q", s)
	}
	get, err := content.Lookup(field)
	if err != nil {
		return condition{}, err
	}
	return condition{field: field, op: op, value: content.ParseLiteral(literal), get: get}, nil
}

func (q *Query) parseSort(s string) error {
	if q.sort != nil {
		return errors.New("duplicate sort")
	}
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 2 {
		return errors.New("expected: sort <field> [asc|desc]")
	}
	if _, err := content.Lookup(parts[0]); err != nil {
		return err
	}
	spec := &content.SortSpec{Field: parts[0]}
	if len(parts) == 2 {
		switch strings.ToLower(parts[1]) {
		case "asc":
		case "desc":
			spec.Descending = true
		default:
			return fmt.Errorf("unknown direction %q", parts[1])
		}
	}
	q.sort = spec
	return nil
}

func (q *Query) parseLimit(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("limit must be a positive integer, got %q", s)
	}
	q.limit = n
	return nil
}
