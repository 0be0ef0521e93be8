// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package tag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/egregore/egregore/internal/core/audit"
	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/constants"
	"github.com/egregore/egregore/internal/platform/ctxutil"
	"github.com/egregore/egregore/internal/platform/docstore"
	"github.com/egregore/egregore/internal/platform/sequence"
)

// # Service Layer

// Service orchestrates every read and mutation of the tag catalog.
//
// Mutations all run the same pipeline: fetch the current document,
// re-check the caller's sequence token, apply the change, restamp the
// edit metadata, and hand the result to a conditional write. The store's
// conditional write is the sole arbiter when two edits race; the loser
// gets an Integrity error and must re-read. History and audit appends
// happen only after a write lands, never for a rejected one.
type Service struct {
	docs    DocumentStore
	history HistoryRecorder
	audits  AuditRecorder
	logger  *slog.Logger
}

// NewService constructs a new tag [Service].
func NewService(docs DocumentStore, history HistoryRecorder, audits AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		docs:    docs,
		history: history,
		audits:  audits,
		logger:  logger,
	}
}

// ListOptions are the filter, sort, and page parameters of a listing.
type ListOptions struct {
	Query          string
	Type           string
	Visibility     string
	Groups         []string
	IncludeDeleted bool
	SortBy         string
	SortOrder      string
	Limit          int
	Offset         int
}

// # Reads

// Get fetches one tag by id. Soft-deleted tags are reported as NotFound
// unless includeDeleted is set.
func (service *Service) Get(ctx context.Context, id string, includeDeleted bool) (*Tag, error) {
	document, err := service.docs.Get(ctx, id, includeDeleted)
	if err != nil {
		return nil, tagNotFound(id, err)
	}
	return assemble(document)
}

// List performs a filtered, paginated tag listing. The total is counted
// with the same filters the page is drawn from.
func (service *Service) List(ctx context.Context, options ListOptions) ([]Tag, int64, error) {
	query := listQuery(options)

	total, err := service.docs.Count(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	sortBy := options.SortBy
	if sortBy == "" {
		sortBy = constants.DefaultSortField
	}
	sortOrder := options.SortOrder
	if sortOrder == "" {
		sortOrder = constants.DefaultSortOrder
	}

	documents, err := service.docs.Search(ctx, query, docstore.Sort{By: sortBy, Order: sortOrder}, options.Limit, options.Offset)
	if err != nil {
		return nil, 0, err
	}

	tags := make([]Tag, 0, len(documents))
	for i := range documents {
		assembled, err := assemble(&documents[i])
		if err != nil {
			return nil, 0, err
		}
		tags = append(tags, *assembled)
	}

	return tags, total, nil
}

// Count counts tags, by default excluding the soft-deleted.
func (service *Service) Count(ctx context.Context, includeDeleted bool) (int64, error) {
	query := docstore.NewQuery()
	if !includeDeleted {
		query.NotExists("deleted")
	}
	return service.docs.Count(ctx, query)
}

// listQuery compiles listing options into a document store query.
func listQuery(options ListOptions) *docstore.Query {
	query := docstore.NewQuery()
	if !options.IncludeDeleted {
		query.NotExists("deleted")
	}
	if options.Query != "" {
		query.AnyContains([]string{"name", "description"}, options.Query)
	}
	if options.Type != "" {
		query.Term("type", options.Type)
	}
	if options.Visibility != "" {
		query.Term("visibility", options.Visibility)
	}
	for _, group := range options.Groups {
		query.Has("groups", group)
	}
	return query
}

// # Mutations

// Create writes a brand-new tag with author and creation stamps.
func (service *Service) Create(ctx context.Context, request CreateRequest) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	fields := Fields{
		Name:        request.Name,
		Description: request.Description,
		Groups:      orEmpty(request.Groups),
		Type:        request.Type,
		Visibility:  request.Visibility,
		Related:     []string{},
		References:  []Reference{},
		Patterns:    []Pattern{},
	}
	stamp(&fields, editor)
	fields.Author = editor
	fields.Created = fields.Updated

	service.logger.Info("creating new tag", slog.String("name", fields.Name))

	result, err := service.write(ctx, "", fields, nil)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:    constants.ActionCreate,
		Component: constants.ComponentTag,
		Message:   "Creating new Tag",
		User:      editor,
	})

	return result, nil
}

// Update merges the supplied base fields into the tag. Only keys
// present in the request body are touched.
func (service *Service) Update(ctx context.Context, id string, seq sequence.Sequence, request UpdateRequest) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	if request.IsEmpty() {
		return nil, apperr.BadRequest("No fields supplied for update")
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	merged, err := mergeFields(fields, request)
	if err != nil {
		return nil, err
	}
	stamp(&merged, editor)

	service.logger.Info("updating tag base info", slog.String("tag_id", id))

	result, err := service.write(ctx, id, merged, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:    constants.ActionUpdate,
		Component: constants.ComponentTag,
		Message:   fmt.Sprintf("Tag [%s] had %v modified by [%s]", id, request.FieldNames(), editor),
		User:      editor,
	})

	return result, nil
}

// Delete soft-deletes the tag: the deletion stamp is set to the update
// stamp and the document stays in the store.
func (service *Service) Delete(ctx context.Context, id string, seq sequence.Sequence) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	stamp(&fields, editor)
	deletedAt := fields.Updated
	fields.Deleted = &deletedAt

	service.logger.Info("deleting tag", slog.String("tag_id", id))

	result, err := service.write(ctx, id, fields, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:    constants.ActionDelete,
		Component: constants.ComponentTag,
		Message:   fmt.Sprintf("Tag [%s] deleted", fields.Name),
		User:      editor,
	})

	return result, nil
}

// # Reference Mutations

// CreateReference appends a new reference to the tag. Identity is
// derived from the link, and two references may share one: the catalog
// tolerates duplicates rather than guessing which is authoritative.
func (service *Service) CreateReference(ctx context.Context, id string, seq sequence.Sequence, request ReferenceRequest) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	reference := request.Reference()
	fields.References = append(orEmpty(fields.References), reference)
	stamp(&fields, editor)

	service.logger.Info("creating new reference for tag", slog.String("tag_id", id))

	result, err := service.write(ctx, id, fields, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:             constants.ActionUpdate,
		Component:          constants.ComponentTag,
		Subcomponent:       constants.SubcomponentReferences,
		SubcomponentAction: constants.ActionCreate,
		Message:            fmt.Sprintf("Tag [%s] had reference %s created", id, reference.ID),
		User:               editor,
	})

	return result, nil
}

// UpdateReference merges the supplied fields into one reference. If the
// link changes, so does the reference's identifier; the response body
// carries the new one.
func (service *Service) UpdateReference(ctx context.Context, id string, seq sequence.Sequence, referenceID string, request ReferenceUpdate) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	index := referenceIndex(fields.References, referenceID)
	if index < 0 {
		return nil, apperr.NotFound(fmt.Sprintf("No reference with id %s found for the supplied Tag", referenceID))
	}
	fields.References[index] = request.Apply(fields.References[index])
	stamp(&fields, editor)

	service.logger.Info("updating reference for tag",
		slog.String("tag_id", id),
		slog.String("reference_id", referenceID),
	)

	result, err := service.write(ctx, id, fields, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:             constants.ActionUpdate,
		Component:          constants.ComponentTag,
		Subcomponent:       constants.SubcomponentReferences,
		SubcomponentAction: constants.ActionUpdate,
		Message:            fmt.Sprintf("Tag [%s] had reference %s updated", id, referenceID),
		User:               editor,
	})

	return result, nil
}

// DeleteReference removes every reference carrying the supplied id.
func (service *Service) DeleteReference(ctx context.Context, id string, seq sequence.Sequence, referenceID string) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	if len(fields.References) == 0 {
		return nil, apperr.NotFound("No references found for the supplied Tag")
	}

	kept := make([]Reference, 0, len(fields.References))
	for _, reference := range fields.References {
		if reference.ID != referenceID {
			kept = append(kept, reference)
		}
	}
	if len(kept) == len(fields.References) {
		return nil, apperr.NotFound(fmt.Sprintf("No reference with id %s found for the supplied Tag", referenceID))
	}
	fields.References = kept
	stamp(&fields, editor)

	service.logger.Info("deleting reference for tag",
		slog.String("tag_id", id),
		slog.String("reference_id", referenceID),
	)

	result, err := service.write(ctx, id, fields, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:             constants.ActionUpdate,
		Component:          constants.ComponentTag,
		Subcomponent:       constants.SubcomponentReferences,
		SubcomponentAction: constants.ActionDelete,
		Message:            fmt.Sprintf("Tag [%s] had reference %s deleted", id, referenceID),
		User:               editor,
	})

	return result, nil
}

// # Pattern Mutations

// CreatePattern appends a new pattern to the tag.
func (service *Service) CreatePattern(ctx context.Context, id string, seq sequence.Sequence, request PatternRequest) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	pattern := request.Pattern()
	fields.Patterns = append(orEmpty(fields.Patterns), pattern)
	stamp(&fields, editor)

	service.logger.Info("creating new pattern for tag", slog.String("tag_id", id))

	result, err := service.write(ctx, id, fields, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:             constants.ActionUpdate,
		Component:          constants.ComponentTag,
		Subcomponent:       constants.SubcomponentPatterns,
		SubcomponentAction: constants.ActionCreate,
		Message:            fmt.Sprintf("Tag [%s] had pattern %s created", id, pattern.ID),
		User:               editor,
	})

	return result, nil
}

// UpdatePattern merges the supplied fields into one pattern and
// restamps its derived identifiers.
func (service *Service) UpdatePattern(ctx context.Context, id string, seq sequence.Sequence, patternID string, request PatternUpdate) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	index := patternIndex(fields.Patterns, patternID)
	if index < 0 {
		return nil, apperr.NotFound(fmt.Sprintf("No pattern with id %s found for the supplied Tag", patternID))
	}
	fields.Patterns[index] = request.Apply(fields.Patterns[index])
	stamp(&fields, editor)

	service.logger.Info("updating pattern for tag",
		slog.String("tag_id", id),
		slog.String("pattern_id", patternID),
	)

	result, err := service.write(ctx, id, fields, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:             constants.ActionUpdate,
		Component:          constants.ComponentTag,
		Subcomponent:       constants.SubcomponentPatterns,
		SubcomponentAction: constants.ActionUpdate,
		Message:            fmt.Sprintf("Tag [%s] had pattern %s updated", id, patternID),
		User:               editor,
	})

	return result, nil
}

// DeletePattern removes every pattern carrying the supplied id.
func (service *Service) DeletePattern(ctx context.Context, id string, seq sequence.Sequence, patternID string) (*Tag, error) {
	editor, err := service.actor(ctx)
	if err != nil {
		return nil, err
	}

	fields, err := service.fetchForEdit(ctx, id, seq)
	if err != nil {
		return nil, err
	}

	if len(fields.Patterns) == 0 {
		return nil, apperr.NotFound("No patterns found for the supplied Tag")
	}

	kept := make([]Pattern, 0, len(fields.Patterns))
	for _, pattern := range fields.Patterns {
		if pattern.ID != patternID {
			kept = append(kept, pattern)
		}
	}
	if len(kept) == len(fields.Patterns) {
		return nil, apperr.NotFound(fmt.Sprintf("No pattern with id %s found for the supplied Tag", patternID))
	}
	fields.Patterns = kept
	stamp(&fields, editor)

	service.logger.Info("deleting pattern for tag",
		slog.String("tag_id", id),
		slog.String("pattern_id", patternID),
	)

	result, err := service.write(ctx, id, fields, &seq)
	if err != nil {
		return nil, err
	}

	service.recordOutcome(ctx, result, audit.Entry{
		Action:             constants.ActionUpdate,
		Component:          constants.ComponentTag,
		Subcomponent:       constants.SubcomponentPatterns,
		SubcomponentAction: constants.ActionDelete,
		Message:            fmt.Sprintf("Tag [%s] had pattern %s deleted", id, patternID),
		User:               editor,
	})

	return result, nil
}

// # Pipeline Internals

// actor resolves the acting user's name from the request context. Its
// absence is a server fault: the identity middleware must have run
// before any service entry point.
func (service *Service) actor(ctx context.Context) (string, error) {
	user := ctxutil.GetActor(ctx)
	if user == nil {
		return "", apperr.ServerMsg("actor missing from request context")
	}
	return user.Username, nil
}

// fetchForEdit loads the current document and re-validates the caller's
// token against it. The check is an early out; the conditional write
// remains authoritative for races that land in between.
func (service *Service) fetchForEdit(ctx context.Context, id string, seq sequence.Sequence) (Fields, error) {
	document, err := service.docs.Get(ctx, id, false)
	if err != nil {
		return Fields{}, tagNotFound(id, err)
	}

	if !seq.Matches(document.Seq.SeqNo, document.Seq.PrimaryTerm) {
		return Fields{}, apperr.Integrity("Supplied sequence does not match latest version")
	}

	var fields Fields
	if err := json.Unmarshal(document.Source, &fields); err != nil {
		return Fields{}, apperr.Server(err)
	}
	return fields, nil
}

// write marshals the field set and hands it to the store, returning the
// fully assembled tag at its new revision.
func (service *Service) write(ctx context.Context, id string, fields Fields, seq *sequence.Sequence) (*Tag, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, apperr.Server(err)
	}

	document, err := service.docs.Put(ctx, id, body, seq)
	if err != nil {
		return nil, err
	}

	return &Tag{
		ID:       document.ID,
		Fields:   fields,
		Version:  document.Version,
		Sequence: document.Seq.Encode(),
	}, nil
}

// recordOutcome appends the history snapshot and audit entry for a
// write that already landed. Append failures leave a recoverable gap in
// the logs, not a failed request; they are logged and swallowed.
func (service *Service) recordOutcome(ctx context.Context, result *Tag, entry audit.Entry) {
	if err := service.history.Record(ctx, result.ID, result.Version, result.Fields); err != nil {
		service.logger.Error("failed to append tag history",
			slog.String("tag_id", result.ID),
			slog.Int64("tag_version", result.Version),
			slog.Any("error", err),
		)
	}

	entry.TagID = result.ID
	entry.Version = result.Version
	if err := service.audits.Record(ctx, entry); err != nil {
		service.logger.Error("failed to append audit entry",
			slog.String("tag_id", result.ID),
			slog.Int64("tag_version", result.Version),
			slog.Any("error", err),
		)
	}
}

// stamp updates the edit metadata every mutation carries: the update
// time, the editor, and a cleared workflow state.
func stamp(fields *Fields, editor string) {
	fields.Updated = time.Now().UTC()
	fields.Editor = editor
	fields.State = nil
}

// mergeFields applies the request as a JSON merge patch over the stored
// field set, so key presence in the body decides what changes.
func mergeFields(fields Fields, request UpdateRequest) (Fields, error) {
	original, err := json.Marshal(fields)
	if err != nil {
		return Fields{}, apperr.Server(err)
	}
	patch, err := json.Marshal(request)
	if err != nil {
		return Fields{}, apperr.Server(err)
	}

	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return Fields{}, apperr.Server(err)
	}

	var out Fields
	if err := json.Unmarshal(merged, &out); err != nil {
		return Fields{}, apperr.Server(err)
	}
	return out, nil
}

// assemble decodes a stored document into the API-facing tag shape.
func assemble(document *docstore.Document) (*Tag, error) {
	var fields Fields
	if err := json.Unmarshal(document.Source, &fields); err != nil {
		return nil, apperr.Server(err)
	}
	return &Tag{
		ID:       document.ID,
		Fields:   fields,
		Version:  document.Version,
		Sequence: document.Seq.Encode(),
	}, nil
}

// tagNotFound rewrites a store-level NotFound into the tag-shaped one;
// every other error passes through unchanged.
func tagNotFound(id string, err error) error {
	if appErr := apperr.As(err); appErr != nil && appErr.Code == apperr.CodeNotFound {
		return apperr.NotFound(fmt.Sprintf("Tag %s not found", id))
	}
	return err
}

// referenceIndex finds the first reference with the supplied id, -1 if
// absent.
func referenceIndex(references []Reference, id string) int {
	for i, reference := range references {
		if reference.ID == id {
			return i
		}
	}
	return -1
}

// patternIndex finds the first pattern with the supplied id, -1 if
// absent.
func patternIndex(patterns []Pattern, id string) int {
	for i, pattern := range patterns {
		if pattern.ID == id {
			return i
		}
	}
	return -1
}

// orEmpty normalizes a nil slice to an empty one so stored documents
// never carry JSON nulls for list fields.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
