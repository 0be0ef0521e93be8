// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package docstore implements a document-oriented access layer over
PostgreSQL for the Egregore catalog.

# Architecture

This package is part of the Infrastructure layer. Each collection is a
table holding one JSONB document per row, plus the revision bookkeeping
that makes optimistic concurrency work:

  - seq_no: drawn from a single global sequence on every write. Two
    writes can never share a (seq_no, primary_term) pair.
  - primary_term: bumped once per collection at process startup, so a
    token issued before a restart can never match a document written
    after it.
  - version: a monotonically increasing per-document revision counter.

Writes carrying a sequence precondition are compiled to a conditional
UPDATE; the database's row-level atomicity is the sole arbiter of which
racing writer wins. A zero-row conditional update is reported as an
Integrity error and nothing is modified.
*/
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/sequence"
)

// collectionPattern restricts collection names to safe SQL identifiers.
var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// documentColumns is the projection shared by every read path.
const documentColumns = "id, body, seq_no, primary_term, version"

// liveOnly excludes soft-deleted documents. It must stay textually
// identical to what NotExists("deleted") compiles to, so the partial
// index declared on this expression serves both paths.
const liveOnly = "body #>> '{deleted}' IS NULL"

// Document is one stored JSONB document plus its revision bookkeeping.
type Document struct {
	// ID is the stable document identifier.
	ID string
	// Source is the raw JSONB body.
	Source []byte
	// Seq is the revision pair a conditional write must match.
	Seq sequence.Sequence
	// Version is the store-maintained revision counter, starting at 1.
	Version int64
}

// Store wraps a PostgreSQL pool and hands out collections.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a document store on top of an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Collection opens a named collection and advances its primary term.
//
// The term bump invalidates every sequence token issued before this
// process started, which is exactly the semantics callers rely on: a
// token is only valid against the store incarnation that produced it.
func (s *Store) Collection(ctx context.Context, name string) (*Collection, error) {
	if !collectionPattern.MatchString(name) {
		return nil, fmt.Errorf("docstore: invalid collection name %q", name)
	}

	const bumpTerm = `
		INSERT INTO collection_terms (collection, term)
		VALUES ($1, 1)
		ON CONFLICT (collection) DO UPDATE SET term = collection_terms.term + 1
		RETURNING term`

	var term int64
	if err := s.pool.QueryRow(ctx, bumpTerm, name).Scan(&term); err != nil {
		return nil, fmt.Errorf("docstore: failed to open collection %q: %w", name, err)
	}

	return &Collection{pool: s.pool, name: name, term: term}, nil
}

// Collection is a handle on one document table at a fixed primary term.
type Collection struct {
	pool *pgxpool.Pool
	name string
	term int64
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// PrimaryTerm returns the term this process writes under.
func (c *Collection) PrimaryTerm() int64 { return c.term }

// Get fetches a single document by id.
//
// Soft-deleted documents (body carrying a non-null "deleted" field) are
// reported as NotFound unless includeDeleted is set; callers cannot
// distinguish absent from deleted, which is intentional.
func (c *Collection) Get(ctx context.Context, id string, includeDeleted bool) (*Document, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", documentColumns, c.name)
	if !includeDeleted {
		sql += " AND " + liveOnly
	}

	document, err := scanDocument(c.pool.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("Document %s not found", id))
		}
		return nil, apperr.Server(fmt.Errorf("docstore: get %s/%s: %w", c.name, id, err))
	}

	return document, nil
}

// Put writes a document body and returns the resulting revision.
//
// Three write modes:
//   - id == "": a fresh identifier is generated and the document inserted.
//   - seq == nil: unconditional create-or-replace by id.
//   - seq != nil: conditional write; fails with Integrity when the stored
//     (seq_no, primary_term) pair no longer matches.
func (c *Collection) Put(ctx context.Context, id string, body []byte, seq *sequence.Sequence) (*Document, error) {
	if id == "" {
		id = uuid.NewString()
	}

	var (
		row pgx.Row
		doc = &Document{ID: id, Source: body}
	)

	if seq == nil {
		sql := fmt.Sprintf(`
			INSERT INTO %[1]s (id, body, seq_no, primary_term, version)
			VALUES ($1, $2, nextval('document_seq'), $3, 1)
			ON CONFLICT (id) DO UPDATE
				SET body = EXCLUDED.body,
				    seq_no = nextval('document_seq'),
				    primary_term = $3,
				    version = %[1]s.version + 1
			RETURNING seq_no, primary_term, version`, c.name)
		row = c.pool.QueryRow(ctx, sql, id, body, c.term)
	} else {
		sql := fmt.Sprintf(`
			UPDATE %s
			SET body = $2,
			    seq_no = nextval('document_seq'),
			    primary_term = $5,
			    version = version + 1
			WHERE id = $1 AND seq_no = $3 AND primary_term = $4
			RETURNING seq_no, primary_term, version`, c.name)
		row = c.pool.QueryRow(ctx, sql, id, body, seq.SeqNo, seq.PrimaryTerm, c.term)
	}

	if err := row.Scan(&doc.Seq.SeqNo, &doc.Seq.PrimaryTerm, &doc.Version); err != nil {
		if seq != nil && errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Integrity("Supplied sequence does not match the current document revision")
		}
		return nil, apperr.Server(fmt.Errorf("docstore: put %s/%s: %w", c.name, id, err))
	}

	return doc, nil
}

// Count returns the number of documents matching the query.
func (c *Collection) Count(ctx context.Context, query *Query) (int64, error) {
	where, args, err := query.Compile(1)
	if err != nil {
		return 0, apperr.Server(fmt.Errorf("docstore: count %s: %w", c.name, err))
	}

	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", c.name, where)

	var total int64
	if err := c.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, apperr.Server(fmt.Errorf("docstore: count %s: %w", c.name, err))
	}

	return total, nil
}

// Search returns the matching page of documents.
func (c *Collection) Search(ctx context.Context, query *Query, sort Sort, limit, offset int) ([]Document, error) {
	where, args, err := query.Compile(1)
	if err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: search %s: %w", c.name, err))
	}

	orderBy, err := sort.Compile()
	if err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: search %s: %w", c.name, err))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s %s LIMIT $%d OFFSET $%d",
		documentColumns, c.name, where, orderBy, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: search %s: %w", c.name, err))
	}
	defer rows.Close()

	documents := make([]Document, 0, limit)
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, apperr.Server(fmt.Errorf("docstore: search %s: %w", c.name, err))
		}
		documents = append(documents, *document)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Server(fmt.Errorf("docstore: search %s: %w", c.name, err))
	}

	return documents, nil
}

// scanDocument reads one document row from the shared projection.
func scanDocument(row pgx.Row) (*Document, error) {
	var document Document
	err := row.Scan(&document.ID, &document.Source, &document.Seq.SeqNo, &document.Seq.PrimaryTerm, &document.Version)
	if err != nil {
		return nil, err
	}
	return &document, nil
}
