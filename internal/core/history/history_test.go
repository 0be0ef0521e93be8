// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package history_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egregore/egregore/internal/core/history"
	"github.com/egregore/egregore/internal/core/tag"
	"github.com/egregore/egregore/internal/platform/docstore"
	"github.com/egregore/egregore/internal/platform/sequence"
)

// fakeStore keeps snapshot bodies in memory and answers the per-tag
// Term filter by inspecting each body's id field.
type fakeStore struct {
	bodies [][]byte
}

func (f *fakeStore) Put(_ context.Context, id string, body []byte, _ *sequence.Sequence) (*docstore.Document, error) {
	if id == "" {
		id = fmt.Sprintf("rev-%d", len(f.bodies))
	}
	f.bodies = append(f.bodies, body)
	return &docstore.Document{ID: id, Source: body, Version: 1}, nil
}

func (f *fakeStore) Count(_ context.Context, query *docstore.Query) (int64, error) {
	matched, err := f.match(query)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (f *fakeStore) Search(_ context.Context, query *docstore.Query, _ docstore.Sort, limit, offset int) ([]docstore.Document, error) {
	matched, err := f.match(query)
	if err != nil {
		return nil, err
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (f *fakeStore) match(query *docstore.Query) ([]docstore.Document, error) {
	_, args, err := query.Compile(1)
	if err != nil {
		return nil, err
	}

	var matched []docstore.Document
	for i, body := range f.bodies {
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		if len(args) > 0 && fields["id"] != args[0] {
			continue
		}
		matched = append(matched, docstore.Document{ID: fmt.Sprintf("rev-%d", i), Source: body, Version: 1})
	}
	return matched, nil
}

func TestRecord_SnapshotShape(t *testing.T) {
	store := &fakeStore{}
	service := history.NewService(store, slog.Default())

	fields := tag.Fields{
		Name:    "Suspicious Parent-Child Chain",
		Type:    tag.TypeMaliciousBehavior,
		Editor:  "mkowalski",
		Updated: time.Date(2026, 5, 2, 11, 0, 0, 0, time.UTC),
	}

	require.NoError(t, service.Record(context.Background(), "tag-1", 3, fields))
	require.Len(t, store.bodies, 1)

	var snapshot history.Record
	require.NoError(t, json.Unmarshal(store.bodies[0], &snapshot))
	assert.Equal(t, "tag-1", snapshot.ID)
	assert.EqualValues(t, 3, snapshot.Version)
	assert.Equal(t, "Suspicious Parent-Child Chain", snapshot.Name)
	assert.Equal(t, "mkowalski", snapshot.Editor)
}

func TestList_FiltersByTag(t *testing.T) {
	store := &fakeStore{}
	service := history.NewService(store, slog.Default())
	ctx := context.Background()

	require.NoError(t, service.Record(ctx, "tag-1", 1, tag.Fields{Name: "one"}))
	require.NoError(t, service.Record(ctx, "tag-1", 2, tag.Fields{Name: "one renamed"}))
	require.NoError(t, service.Record(ctx, "tag-2", 1, tag.Fields{Name: "two"}))

	records, total, err := service.List(ctx, "tag-1", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "tag-1", record.ID)
	}
}

func TestList_UnknownTagIsEmpty(t *testing.T) {
	store := &fakeStore{}
	service := history.NewService(store, slog.Default())

	records, total, err := service.List(context.Background(), "missing", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, records)
}
