// Package query filters, sorts and limits document sets.
//
// Filters are expr-lang expressions evaluated against the flattened
// document (payload fields plus envelope keys such as _id and createdAt).
// Missing fields evaluate to nil, so `done != true` matches documents
// without a done field.
package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/roach88/docsync/internal/doc"
)

// SortField orders by one flattened document key.
type SortField struct {
	Field string
	Desc  bool
}

func (s SortField) String() string {
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}

// Query selects documents.
type Query struct {
	// Filter is an expr-lang boolean expression. Empty matches everything.
	Filter string

	// Match is an additional Go predicate. Nil matches everything.
	Match func(doc.Document) bool

	// Sort orders the result; id breaks ties. Empty keeps input order.
	Sort []SortField

	// Limit caps the result size when positive.
	Limit int

	// Since keeps documents last touched at or after it when non-zero.
	Since time.Time
}

// ParseSort parses "title,-createdAt" into sort fields.
func ParseSort(s string) ([]SortField, error) {
	fields := []SortField{}
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := SortField{Field: part}
		if rest, ok := strings.CutPrefix(part, "-"); ok {
			f = SortField{Field: rest, Desc: true}
		}
		if f.Field == "" {
			return nil, fmt.Errorf("parse sort %q: empty field", s)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Compiled is a Query with its filter program ready to run.
type Compiled struct {
	q       Query
	program *exprvm.Program
}

// Compile prepares q. Filter programs are cached by expression text.
func Compile(q Query) (*Compiled, error) {
	c := &Compiled{q: q}
	if strings.TrimSpace(q.Filter) == "" {
		return c, nil
	}
	program, err := programs.loadOrCompile(q.Filter)
	if err != nil {
		return nil, err
	}
	c.program = program
	return c, nil
}

// Apply runs q over docs. See Compiled.Apply.
func Apply(q Query, docs []doc.Document) ([]doc.Document, error) {
	c, err := Compile(q)
	if err != nil {
		return nil, err
	}
	return c.Apply(docs)
}

// Match reports whether d passes the filter, the predicate and Since.
func (c *Compiled) Match(d doc.Document) (bool, error) {
	if !c.q.Since.IsZero() && lastTouched(d).Before(c.q.Since) {
		return false, nil
	}
	if c.q.Match != nil && !c.q.Match(d) {
		return false, nil
	}
	if c.program == nil {
		return true, nil
	}
	out, err := exprlang.Run(c.program, d.Map())
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q on %s: %w", c.q.Filter, d.ID, err)
	}
	// Non-boolean results do not match.
	ok, _ := out.(bool)
	return ok, nil
}

// Apply returns the matching documents of docs, sorted and limited, in a
// new slice.
func (c *Compiled) Apply(docs []doc.Document) ([]doc.Document, error) {
	out := make([]doc.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := c.Match(d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	if len(c.q.Sort) > 0 {
		slices.SortStableFunc(out, c.Compare)
	}
	if c.q.Limit > 0 && len(out) > c.q.Limit {
		out = out[:c.q.Limit]
	}
	return out, nil
}

// Compare orders two documents by the sort fields, then by id.
func (c *Compiled) Compare(a, b doc.Document) int {
	if len(c.q.Sort) > 0 {
		am, bm := a.Map(), b.Map()
		for _, f := range c.q.Sort {
			r := compareValues(am[f.Field], bm[f.Field])
			if f.Desc {
				r = -r
			}
			if r != 0 {
				return r
			}
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Predicate adapts the compiled query to a plain filter. Evaluation errors
// count as no match.
func (c *Compiled) Predicate() func(doc.Document) bool {
	return func(d doc.Document) bool {
		ok, err := c.Match(d)
		return err == nil && ok
	}
}

func lastTouched(d doc.Document) time.Time {
	t := d.CreatedAt
	for _, o := range []time.Time{d.UpdatedAt, d.DirtyAt, d.DeletedAt} {
		if o.After(t) {
			t = o
		}
	}
	return t
}

// compareValues orders nil first, then bools, numbers, strings, and
// anything else by its printed form.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(av, b.(string))
	}
	if fa, ok := number(a); ok {
		fb, _ := number(b)
		return cmp.Compare(fa, fb)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := number(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	return 4
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

type programCache struct {
	mu       sync.Mutex
	programs map[string]*exprvm.Program
}

var programs = &programCache{programs: map[string]*exprvm.Program{}}

func (c *programCache) loadOrCompile(expression string) (*exprvm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.programs[expression]; ok {
		return p, nil
	}
	p, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expression, err)
	}
	c.programs[expression] = p
	return p, nil
}
