// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package docstore

import (
	"context"
	"fmt"
	"math/bits"
	"strings"

	"github.com/egregore/egregore/internal/platform/apperr"
)

// Bucket is one node of a hierarchical aggregation result. Count is the
// number of documents under the node; Distinct is the cardinality of the
// distinct field among them. Child buckets subdivide by the next field.
type Bucket struct {
	Key      string   `json:"key"`
	Count    int64    `json:"count"`
	Distinct int64    `json:"distinctDocuments"`
	Buckets  []Bucket `json:"buckets,omitempty"`
}

// aggregateRow is one GROUP BY ROLLUP output row. A nil value means the
// column was either rolled up (its grouping bit is set) or genuinely
// null in every document of the group.
type aggregateRow struct {
	values   []*string
	grouping int
	count    int64
	distinct int64
}

// Aggregate computes nested bucket counts over the matching documents,
// grouping by each field in order. The root bucket carries the grand
// total; distinctField feeds the per-bucket cardinality.
func (c *Collection) Aggregate(ctx context.Context, query *Query, fields []string, distinctField string) (*Bucket, error) {
	if len(fields) == 0 {
		return nil, apperr.Server(fmt.Errorf("docstore: aggregate %s: no group fields", c.name))
	}

	exprs := make([]string, len(fields))
	for i, field := range fields {
		expr, err := jsonText(field)
		if err != nil {
			return nil, apperr.Server(fmt.Errorf("docstore: aggregate %s: %w", c.name, err))
		}
		exprs[i] = expr
	}

	distinctExpr, err := jsonText(distinctField)
	if err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: aggregate %s: %w", c.name, err))
	}

	where, args, err := query.Compile(1)
	if err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: aggregate %s: %w", c.name, err))
	}

	// Ordering by the grouping flag before each key guarantees that every
	// rollup (parent) row arrives before the rows it subsumes.
	orderParts := make([]string, 0, len(exprs)*2)
	for _, expr := range exprs {
		orderParts = append(orderParts, fmt.Sprintf("GROUPING(%s) DESC", expr), expr)
	}

	sql := fmt.Sprintf(
		"SELECT %s, GROUPING(%s), COUNT(*), COUNT(DISTINCT %s) FROM %s%s GROUP BY ROLLUP(%s) ORDER BY %s",
		strings.Join(exprs, ", "),
		strings.Join(exprs, ", "),
		distinctExpr,
		c.name,
		where,
		strings.Join(exprs, ", "),
		strings.Join(orderParts, ", "),
	)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: aggregate %s: %w", c.name, err))
	}
	defer rows.Close()

	var collected []aggregateRow
	for rows.Next() {
		row := aggregateRow{values: make([]*string, len(fields))}
		dest := make([]any, 0, len(fields)+3)
		for i := range row.values {
			dest = append(dest, &row.values[i])
		}
		dest = append(dest, &row.grouping, &row.count, &row.distinct)
		if err := rows.Scan(dest...); err != nil {
			return nil, apperr.Server(fmt.Errorf("docstore: aggregate %s: %w", c.name, err))
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: aggregate %s: %w", c.name, err))
	}

	return assembleBuckets(len(fields), collected), nil
}

// assembleBuckets folds ordered rollup rows into a bucket tree. Groups
// keyed by a genuinely null value (the field is absent from those
// documents) produce no bucket of their own; their documents still count
// toward every ancestor.
func assembleBuckets(fieldCount int, rows []aggregateRow) *Bucket {
	root := &Bucket{}

	// stack[d] is the most recently emitted bucket at depth d.
	stack := make([]*Bucket, fieldCount+1)
	stack[0] = root

	for _, row := range rows {
		depth := fieldCount - bits.OnesCount(uint(row.grouping))

		if depth == 0 {
			root.Count = row.count
			root.Distinct = row.distinct
			continue
		}

		// Drop groups keyed by a real null at any grouped level, along
		// with their descendants.
		skip := false
		for i := 0; i < depth; i++ {
			if row.values[i] == nil {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		parent := stack[depth-1]
		if parent == nil {
			continue
		}
		parent.Buckets = append(parent.Buckets, Bucket{
			Key:      *row.values[depth-1],
			Count:    row.count,
			Distinct: row.distinct,
		})
		stack[depth] = &parent.Buckets[len(parent.Buckets)-1]
	}

	return root
}
