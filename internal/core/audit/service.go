// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/docstore"
	"github.com/egregore/egregore/internal/platform/sequence"
)

// aggregationFields is the bucket nesting order for the aggregate view.
var aggregationFields = []string{"component", "action", "subcomponent", "subcomponent_action"}

// Store is the slice of the document store the audit log needs. Audit
// writes are pure appends, so no conditional-write path exists here.
type Store interface {
	Put(ctx context.Context, id string, body []byte, seq *sequence.Sequence) (*docstore.Document, error)
	Count(ctx context.Context, query *docstore.Query) (int64, error)
	Search(ctx context.Context, query *docstore.Query, sort docstore.Sort, limit, offset int) ([]docstore.Document, error)
	Aggregate(ctx context.Context, query *docstore.Query, fields []string, distinctField string) (*docstore.Bucket, error)
}

// Service appends and reads audit entries.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a new audit [Service].
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Record appends one audit entry, timestamped now unless the caller
// already stamped it.
func (service *Service) Record(ctx context.Context, entry Entry) error {
	if entry.Created.IsZero() {
		entry.Created = time.Now().UTC()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return apperr.Server(err)
	}

	service.logger.Debug("adding audit entry",
		slog.String("action", entry.Action),
		slog.String("component", entry.Component),
		slog.String("user", entry.User),
		slog.String("tag_id", entry.TagID),
	)

	_, err = service.store.Put(ctx, "", body, nil)
	return err
}

// ListForTag returns the audit log of one tag, oldest first.
func (service *Service) ListForTag(ctx context.Context, tagID string, limit, offset int) ([]Entry, int64, error) {
	return service.list(ctx, docstore.NewQuery().Term("tag_id", tagID), limit, offset)
}

// ListForUser returns every action one user has taken, oldest first.
func (service *Service) ListForUser(ctx context.Context, username string, limit, offset int) ([]Entry, int64, error) {
	return service.list(ctx, docstore.NewQuery().Term("user", username), limit, offset)
}

func (service *Service) list(ctx context.Context, query *docstore.Query, limit, offset int) ([]Entry, int64, error) {
	total, err := service.store.Count(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	documents, err := service.store.Search(ctx, query, docstore.Sort{By: "created", Order: "asc"}, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]Entry, 0, len(documents))
	for _, document := range documents {
		var entry Entry
		if err := json.Unmarshal(document.Source, &entry); err != nil {
			return nil, 0, apperr.Server(err)
		}
		entries = append(entries, entry)
	}

	return entries, total, nil
}

// Aggregate summarizes the whole audit log into nested buckets of
// component, action, subcomponent, and subcomponent action, each with a
// count and a distinct-tag cardinality.
func (service *Service) Aggregate(ctx context.Context) (*docstore.Bucket, error) {
	return service.store.Aggregate(ctx, docstore.NewQuery(), aggregationFields, "tag_id")
}
