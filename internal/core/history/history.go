// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package history maintains the append-only revision log of the tag
catalog.

Every successful tag write appends a full snapshot of the resulting
field set, keyed by the tag identifier plus the revision counter the
write produced. Snapshots are never updated or deleted, so the log is a
complete replayable record of how each tag evolved.
*/
package history

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/egregore/egregore/internal/core/tag"
	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/docstore"
	"github.com/egregore/egregore/internal/platform/sequence"
)

// Record is one snapshot of a tag at a successfully written revision.
type Record struct {
	ID string `json:"id"`
	tag.Fields
	Version int64 `json:"version"`
}

// Store is the slice of the document store the revision log needs.
type Store interface {
	Put(ctx context.Context, id string, body []byte, seq *sequence.Sequence) (*docstore.Document, error)
	Count(ctx context.Context, query *docstore.Query) (int64, error)
	Search(ctx context.Context, query *docstore.Query, sort docstore.Sort, limit, offset int) ([]docstore.Document, error)
}

// Service appends and reads tag revision snapshots.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a new history [Service].
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Record appends one snapshot. The snapshot document gets its own
// generated identity; the tag identifier lives inside the body so one
// tag accumulates many snapshots.
func (service *Service) Record(ctx context.Context, tagID string, version int64, fields tag.Fields) error {
	body, err := json.Marshal(Record{ID: tagID, Fields: fields, Version: version})
	if err != nil {
		return apperr.Server(err)
	}

	service.logger.Debug("adding tag revision to history",
		slog.String("tag_id", tagID),
		slog.Int64("tag_version", version),
	)

	_, err = service.store.Put(ctx, "", body, nil)
	return err
}

// List returns the snapshots of one tag in revision order. Snapshots
// are ordered by their update stamp, which every mutation advances.
func (service *Service) List(ctx context.Context, tagID string, limit, offset int) ([]Record, int64, error) {
	query := docstore.NewQuery().Term("id", tagID)

	total, err := service.store.Count(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	documents, err := service.store.Search(ctx, query, docstore.Sort{By: "updated", Order: "asc"}, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(documents))
	for _, document := range documents {
		var record Record
		if err := json.Unmarshal(document.Source, &record); err != nil {
			return nil, 0, apperr.Server(err)
		}
		records = append(records, record)
	}

	return records, total, nil
}
