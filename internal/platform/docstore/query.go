// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package docstore

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// fieldPattern restricts queryable field paths to lower_snake dotted paths.
var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)*$`)

// jsonText compiles a dotted field path into a body text extraction.
func jsonText(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", fmt.Errorf("invalid field path %q", field)
	}
	return fmt.Sprintf("body #>> '{%s}'", strings.ReplaceAll(field, ".", ",")), nil
}

// jsonValue compiles a dotted field path into a body jsonb extraction.
func jsonValue(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", fmt.Errorf("invalid field path %q", field)
	}
	return fmt.Sprintf("body #> '{%s}'", strings.ReplaceAll(field, ".", ",")), nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied substrings.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// Query accumulates filter conditions over a collection's JSONB bodies.
// Conditions are ANDed together; a nil or empty query matches everything.
// Construction errors (bad field paths) are deferred to Compile so the
// builder stays chainable.
type Query struct {
	conds []condition
	err   error
}

type condition struct {
	// sql uses %s placeholders for argument positions, expanded at compile.
	sql  string
	args []any
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{}
}

func (q *Query) add(sql string, args ...any) *Query {
	q.conds = append(q.conds, condition{sql: sql, args: args})
	return q
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Term matches documents whose field equals value.
func (q *Query) Term(field, value string) *Query {
	expr, err := jsonText(field)
	if err != nil {
		return q.fail(err)
	}
	return q.add(expr+" = %s", value)
}

// Has matches documents whose array field contains element.
func (q *Query) Has(field, element string) *Query {
	expr, err := jsonValue(field)
	if err != nil {
		return q.fail(err)
	}
	return q.add(expr+" ? %s", element)
}

// Contains matches documents whose field contains substr, case-insensitively.
func (q *Query) Contains(field, substr string) *Query {
	expr, err := jsonText(field)
	if err != nil {
		return q.fail(err)
	}
	return q.add(expr+" ILIKE %s", "%"+escapeLike(substr)+"%")
}

// AnyContains matches documents where at least one of the fields
// contains substr, case-insensitively.
func (q *Query) AnyContains(fields []string, substr string) *Query {
	pattern := "%" + escapeLike(substr) + "%"
	parts := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		expr, err := jsonText(field)
		if err != nil {
			return q.fail(err)
		}
		parts = append(parts, expr+" ILIKE %s")
		args = append(args, pattern)
	}
	if len(parts) == 0 {
		return q
	}
	return q.add("("+strings.Join(parts, " OR ")+")", args...)
}

// Exists matches documents whose field is present and non-null.
func (q *Query) Exists(field string) *Query {
	expr, err := jsonText(field)
	if err != nil {
		return q.fail(err)
	}
	return q.add(expr + " IS NOT NULL")
}

// NotExists matches documents whose field is absent or null.
func (q *Query) NotExists(field string) *Query {
	expr, err := jsonText(field)
	if err != nil {
		return q.fail(err)
	}
	return q.add(expr + " IS NULL")
}

// Since matches documents whose timestamp field is at or after cutoff.
func (q *Query) Since(field string, cutoff time.Time) *Query {
	expr, err := jsonText(field)
	if err != nil {
		return q.fail(err)
	}
	return q.add("("+expr+")::timestamptz >= %s", cutoff)
}

// Compile renders the accumulated conditions into a WHERE clause whose
// placeholders start at argIndex. An empty query compiles to "".
func (q *Query) Compile(argIndex int) (string, []any, error) {
	if q == nil || len(q.conds) == 0 {
		if q != nil && q.err != nil {
			return "", nil, q.err
		}
		return "", nil, nil
	}
	if q.err != nil {
		return "", nil, q.err
	}

	var (
		parts []string
		args  []any
	)
	for _, cond := range q.conds {
		placeholders := make([]any, len(cond.args))
		for i := range cond.args {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			argIndex++
		}
		parts = append(parts, fmt.Sprintf(cond.sql, placeholders...))
		args = append(args, cond.args...)
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// Sort describes result ordering for Search.
type Sort struct {
	// By is a document field path, or "version" for the revision column.
	By string
	// Order is "asc" or "desc".
	Order string
}

// timestampFields are body fields stored as RFC3339 text. Trailing zeros
// are trimmed on encode, so their text order diverges from time order
// within a second; sorting casts them instead.
var timestampFields = map[string]bool{
	"created": true,
	"updated": true,
	"deleted": true,
}

// Compile renders the ORDER BY clause.
func (s Sort) Compile() (string, error) {
	direction := strings.ToLower(s.Order)
	switch direction {
	case "asc", "desc":
	case "":
		direction = "asc"
	default:
		return "", fmt.Errorf("invalid sort order %q", s.Order)
	}

	// version lives in its own column, everything else in the body.
	expr := "version"
	if s.By != "version" {
		var err error
		expr, err = jsonText(s.By)
		if err != nil {
			return "", err
		}
		if timestampFields[s.By] {
			expr = "(" + expr + ")::timestamptz"
		}
	}

	// id as a tiebreaker keeps pagination stable across identical keys.
	return fmt.Sprintf("ORDER BY %s %s, id %s", expr, strings.ToUpper(direction), strings.ToUpper(direction)), nil
}
