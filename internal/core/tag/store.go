// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package tag

import (
	"context"

	"github.com/egregore/egregore/internal/core/audit"
	"github.com/egregore/egregore/internal/platform/docstore"
	"github.com/egregore/egregore/internal/platform/sequence"
)

// DocumentStore is the slice of the document store the tag service
// needs: id reads, conditional writes, and filtered listing.
type DocumentStore interface {
	Get(ctx context.Context, id string, includeDeleted bool) (*docstore.Document, error)
	Put(ctx context.Context, id string, body []byte, seq *sequence.Sequence) (*docstore.Document, error)
	Count(ctx context.Context, query *docstore.Query) (int64, error)
	Search(ctx context.Context, query *docstore.Query, sort docstore.Sort, limit, offset int) ([]docstore.Document, error)
}

// HistoryRecorder appends one immutable snapshot per successfully
// written tag revision.
type HistoryRecorder interface {
	Record(ctx context.Context, tagID string, version int64, fields Fields) error
}

// AuditRecorder appends one structured record per dispatched mutation.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}
