// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

// row builds an aggregateRow from key values (nil means rolled up or null).
func row(grouping int, count, distinct int64, values ...*string) aggregateRow {
	return aggregateRow{values: values, grouping: grouping, count: count, distinct: distinct}
}

/*
TestAssembleBuckets folds a two-level rollup (component, action) into a
nested tree and checks counts at every level.
*/
func TestAssembleBuckets(t *testing.T) {
	// Rows in the order the aggregation query produces them: rollup
	// (parent) rows before the rows they subsume.
	rows := []aggregateRow{
		row(0b11, 10, 4, nil, nil),
		row(0b01, 7, 3, strptr("tag"), nil),
		row(0b00, 5, 3, strptr("tag"), strptr("create")),
		row(0b00, 2, 1, strptr("tag"), strptr("delete")),
		row(0b01, 3, 2, strptr("taxonomy"), nil),
		row(0b00, 3, 2, strptr("taxonomy"), strptr("create")),
	}

	root := assembleBuckets(2, rows)

	assert.Equal(t, int64(10), root.Count)
	assert.Equal(t, int64(4), root.Distinct)
	require.Len(t, root.Buckets, 2)

	tag := root.Buckets[0]
	assert.Equal(t, "tag", tag.Key)
	assert.Equal(t, int64(7), tag.Count)
	require.Len(t, tag.Buckets, 2)
	assert.Equal(t, "create", tag.Buckets[0].Key)
	assert.Equal(t, int64(5), tag.Buckets[0].Count)
	assert.Equal(t, "delete", tag.Buckets[1].Key)
	assert.Equal(t, int64(2), tag.Buckets[1].Count)

	taxonomy := root.Buckets[1]
	assert.Equal(t, "taxonomy", taxonomy.Key)
	assert.Equal(t, int64(3), taxonomy.Count)
	require.Len(t, taxonomy.Buckets, 1)
}

/*
TestAssembleBuckets_NullKeysProduceNoBucket verifies that documents
missing a grouped field count toward their ancestors but never form a
bucket of their own.
*/
func TestAssembleBuckets_NullKeysProduceNoBucket(t *testing.T) {
	// "tag created without subcomponent": the subcomponent group keyed by
	// a real null must vanish, its descendants with it.
	rows := []aggregateRow{
		row(0b111, 6, 3, nil, nil, nil),
		row(0b011, 6, 3, strptr("tag"), nil, nil),
		row(0b001, 4, 2, strptr("tag"), nil, nil),              // real null subcomponent
		row(0b000, 4, 2, strptr("tag"), nil, nil),              // its child level
		row(0b001, 2, 1, strptr("tag"), strptr("references"), nil),
		row(0b000, 2, 1, strptr("tag"), strptr("references"), strptr("create")),
	}

	root := assembleBuckets(3, rows)

	assert.Equal(t, int64(6), root.Count)
	require.Len(t, root.Buckets, 1)

	tag := root.Buckets[0]
	assert.Equal(t, int64(6), tag.Count, "parent count includes docs with no subcomponent")
	require.Len(t, tag.Buckets, 1, "null-keyed subcomponent group must not appear")
	assert.Equal(t, "references", tag.Buckets[0].Key)
	require.Len(t, tag.Buckets[0].Buckets, 1)
	assert.Equal(t, "create", tag.Buckets[0].Buckets[0].Key)
}

/*
TestAssembleBuckets_ManySiblings exercises child reattachment across
slice growth when a parent accumulates many buckets.
*/
func TestAssembleBuckets_ManySiblings(t *testing.T) {
	keys := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"}

	rows := []aggregateRow{row(0b11, int64(len(keys))*2, 1, nil, nil)}
	for _, key := range keys {
		rows = append(rows,
			row(0b01, 2, 1, strptr(key), nil),
			row(0b00, 2, 1, strptr(key), strptr("create")),
		)
	}

	root := assembleBuckets(2, rows)

	require.Len(t, root.Buckets, len(keys))
	for i, key := range keys {
		assert.Equal(t, key, root.Buckets[i].Key)
		require.Len(t, root.Buckets[i].Buckets, 1, "every sibling keeps its subtree")
		assert.Equal(t, "create", root.Buckets[i].Buckets[0].Key)
	}
}

/*
TestAssembleBuckets_Empty returns a zero root for an empty collection.
*/
func TestAssembleBuckets_Empty(t *testing.T) {
	root := assembleBuckets(2, nil)
	assert.Equal(t, int64(0), root.Count)
	assert.Empty(t, root.Buckets)
}
