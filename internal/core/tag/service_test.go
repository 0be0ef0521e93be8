// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package tag_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egregore/egregore/internal/core/audit"
	"github.com/egregore/egregore/internal/core/tag"
	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/ctxutil"
	"github.com/egregore/egregore/internal/platform/docstore"
	"github.com/egregore/egregore/internal/platform/identity"
	"github.com/egregore/egregore/internal/platform/sequence"
	"github.com/egregore/egregore/pkg/pointer"
)

// # Fakes

// fakeStore is an in-memory document store honoring the same
// compare-and-swap contract the real one does.
type fakeStore struct {
	mu   sync.Mutex
	seq  int64
	docs map[string]docstore.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]docstore.Document)}
}

func (s *fakeStore) Get(_ context.Context, id string, includeDeleted bool) (*docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	document, ok := s.docs[id]
	if !ok || (!includeDeleted && isDeleted(document.Source)) {
		return nil, apperr.NotFound("Document " + id + " not found")
	}
	return &document, nil
}

func (s *fakeStore) Put(_ context.Context, id string, body []byte, seq *sequence.Sequence) (*docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}

	existing, exists := s.docs[id]
	if seq != nil && (!exists || !seq.Matches(existing.Seq.SeqNo, existing.Seq.PrimaryTerm)) {
		return nil, apperr.Integrity("Supplied sequence does not match the current document revision")
	}

	version := int64(1)
	if exists {
		version = existing.Version + 1
	}

	s.seq++
	document := docstore.Document{
		ID:      id,
		Source:  append([]byte(nil), body...),
		Seq:     sequence.New(s.seq, 1),
		Version: version,
	}
	s.docs[id] = document
	return &document, nil
}

func (s *fakeStore) Count(_ context.Context, query *docstore.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	excludeDeleted := queryExcludesDeleted(query)
	for _, document := range s.docs {
		if excludeDeleted && isDeleted(document.Source) {
			continue
		}
		total++
	}
	return total, nil
}

func (s *fakeStore) Search(_ context.Context, query *docstore.Query, _ docstore.Sort, limit, offset int) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []docstore.Document
	excludeDeleted := queryExcludesDeleted(query)
	for _, document := range s.docs {
		if excludeDeleted && isDeleted(document.Source) {
			continue
		}
		results = append(results, document)
	}
	if offset > len(results) {
		offset = len(results)
	}
	results = results[offset:]
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// queryExcludesDeleted inspects the compiled form of the query for the
// soft-delete exclusion, the only filter these tests rely on.
func queryExcludesDeleted(query *docstore.Query) bool {
	where, _, err := query.Compile(1)
	if err != nil {
		return false
	}
	return strings.Contains(where, "body #>> '{deleted}' IS NULL")
}

func isDeleted(source []byte) bool {
	var fields map[string]any
	if err := json.Unmarshal(source, &fields); err != nil {
		return false
	}
	return fields["deleted"] != nil
}

// fakeHistory records snapshots in memory.
type fakeHistory struct {
	mu        sync.Mutex
	snapshots []struct {
		tagID   string
		version int64
		fields  tag.Fields
	}
}

func (h *fakeHistory) Record(_ context.Context, tagID string, version int64, fields tag.Fields) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, struct {
		tagID   string
		version int64
		fields  tag.Fields
	}{tagID, version, fields})
	return nil
}

func (h *fakeHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

// fakeAudit records entries in memory.
type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAudit) Record(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// # Harness

type harness struct {
	service *tag.Service
	store   *fakeStore
	history *fakeHistory
	audits  *fakeAudit
	ctx     context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newFakeStore()
	history := &fakeHistory{}
	audits := &fakeAudit{}

	ctx := ctxutil.WithActor(context.Background(), &identity.User{
		Username: "mkowalski",
		Roles:    []string{identity.RoleEditor},
	})

	return &harness{
		service: tag.NewService(store, history, audits, slog.Default()),
		store:   store,
		history: history,
		audits:  audits,
		ctx:     ctx,
	}
}

func (h *harness) createEmotet(t *testing.T) *tag.Tag {
	t.Helper()
	created, err := h.service.Create(h.ctx, tag.CreateRequest{
		Name:        "Emotet",
		Description: "Banking trojan turned loader",
		Type:        tag.TypeMalwareFamily,
		Visibility:  tag.VisibilityPublic,
	})
	require.NoError(t, err)
	return created
}

func decodeToken(t *testing.T, tg *tag.Tag) sequence.Sequence {
	t.Helper()
	seq, err := sequence.Decode(tg.Sequence)
	require.NoError(t, err)
	return seq
}

// # Scenarios

/*
TestCreate assigns identity, stamps authorship, starts the version
counter at 1, and appends exactly one history snapshot and one audit
entry.
*/
func TestCreate(t *testing.T) {
	h := newHarness(t)

	created := h.createEmotet(t)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), created.Version)
	assert.NotEmpty(t, created.Sequence)
	assert.Equal(t, "mkowalski", created.Author)
	assert.Equal(t, "mkowalski", created.Editor)
	assert.Equal(t, created.Created, created.Updated)
	assert.Nil(t, created.State)
	assert.NotNil(t, created.References)
	assert.NotNil(t, created.Patterns)

	require.Equal(t, 1, h.history.count())
	assert.Equal(t, created.ID, h.history.snapshots[0].tagID)
	assert.Equal(t, int64(1), h.history.snapshots[0].version)

	require.Equal(t, 1, h.audits.count())
	entry := h.audits.entries[0]
	assert.Equal(t, "create", entry.Action)
	assert.Equal(t, "tag", entry.Component)
	assert.Equal(t, "mkowalski", entry.User)
	assert.Equal(t, created.ID, entry.TagID)
	assert.Equal(t, int64(1), entry.Version)
}

/*
TestUpdate_PartialMerge merges only the supplied keys: the description
changes, the name survives, and the version advances by exactly one.
*/
func TestUpdate_PartialMerge(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	updated, err := h.service.Update(h.ctx, created.ID, decodeToken(t, created), tag.UpdateRequest{
		Description: pointer.To("updated"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "Emotet", updated.Name, "unsupplied fields must survive the merge")
	assert.Equal(t, "updated", updated.Description)
	assert.True(t, updated.Updated.After(created.Updated) || updated.Updated.Equal(created.Updated))

	assert.Equal(t, 2, h.history.count())
	assert.Equal(t, 2, h.audits.count())
}

/*
TestUpdate_ExplicitEmptyValueIsApplied distinguishes "clear this field"
from "field not supplied".
*/
func TestUpdate_ExplicitEmptyValueIsApplied(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	updated, err := h.service.Update(h.ctx, created.ID, decodeToken(t, created), tag.UpdateRequest{
		Description: pointer.To(""),
		Groups:      pointer.To([]string{}),
	})
	require.NoError(t, err)

	assert.Equal(t, "", updated.Description)
	assert.Empty(t, updated.Groups)
	assert.Equal(t, "Emotet", updated.Name)
}

/*
TestUpdate_EmptyPayloadRejected refuses a body that supplies nothing.
*/
func TestUpdate_EmptyPayloadRejected(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	_, err := h.service.Update(h.ctx, created.ID, decodeToken(t, created), tag.UpdateRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.As(err).Code)
	assert.Equal(t, 1, h.history.count(), "no side effects for a rejected update")
}

/*
TestUpdate_StaleToken fails with Integrity and leaves no side effects
when the supplied token no longer matches.
*/
func TestUpdate_StaleToken(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)
	staleToken := decodeToken(t, created)

	_, err := h.service.Update(h.ctx, created.ID, staleToken, tag.UpdateRequest{Description: pointer.To("first")})
	require.NoError(t, err)

	// Replaying the same stale token must fail identically every time.
	for i := 0; i < 2; i++ {
		_, err = h.service.Update(h.ctx, created.ID, staleToken, tag.UpdateRequest{Description: pointer.To("second")})
		require.Error(t, err)
		assert.Equal(t, apperr.CodeIntegrity, apperr.As(err).Code)
	}

	current, err := h.service.Get(h.ctx, created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.Equal(t, "first", current.Description)
	assert.Equal(t, 2, h.history.count())
	assert.Equal(t, 2, h.audits.count())
}

/*
TestConcurrentUpdate_ExactlyOneWinner races two updates carrying the
same token: one must land, one must fail with Integrity, and the
version advances exactly once.
*/
func TestConcurrentUpdate_ExactlyOneWinner(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)
	token := decodeToken(t, created)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, description := range []string{"writer one", "writer two"} {
		wg.Add(1)
		go func(description string) {
			defer wg.Done()
			_, err := h.service.Update(h.ctx, created.ID, token, tag.UpdateRequest{
				Description: pointer.To(description),
			})
			results <- err
		}(description)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.Equal(t, apperr.CodeIntegrity, apperr.As(err).Code)
		conflicts++
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	current, err := h.service.Get(h.ctx, created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.Equal(t, 2, h.history.count(), "only the winner appends history")
	assert.Equal(t, 2, h.audits.count(), "only the winner appends audit")
}

/*
TestSoftDelete removes the tag from default reads and counts while
keeping it retrievable with the explicit flag, logs intact.
*/
func TestSoftDelete(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	deleted, err := h.service.Delete(h.ctx, created.ID, decodeToken(t, created))
	require.NoError(t, err)
	require.NotNil(t, deleted.Deleted)
	assert.Equal(t, *deleted.Deleted, deleted.Updated, "deletion stamp mirrors the update stamp")
	assert.Equal(t, int64(2), deleted.Version)

	_, err = h.service.Get(h.ctx, created.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)

	retrieved, err := h.service.Get(h.ctx, created.ID, true)
	require.NoError(t, err)
	assert.NotNil(t, retrieved.Deleted)

	defaultCount, err := h.service.Count(h.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), defaultCount)

	fullCount, err := h.service.Count(h.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fullCount)

	historyBefore, auditBefore := h.history.count(), h.audits.count()
	_, _ = h.service.Get(h.ctx, created.ID, true)
	assert.Equal(t, historyBefore, h.history.count(), "reads never touch history")
	assert.Equal(t, auditBefore, h.audits.count(), "reads never touch audit")
}

/*
TestDeleteReference_Missing fails NotFound without advancing the
version or touching the logs.
*/
func TestDeleteReference_Missing(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	withRef, err := h.service.CreateReference(h.ctx, created.ID, decodeToken(t, created), tag.ReferenceRequest{
		Name:   "Report",
		Link:   "https://reports.example.com/1",
		Source: "example",
	})
	require.NoError(t, err)

	historyBefore, auditBefore := h.history.count(), h.audits.count()

	_, err = h.service.DeleteReference(h.ctx, created.ID, decodeToken(t, withRef), "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)

	current, err := h.service.Get(h.ctx, created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, withRef.Version, current.Version, "failed deletes must not advance the version")
	assert.Equal(t, historyBefore, h.history.count())
	assert.Equal(t, auditBefore, h.audits.count())
}

/*
TestDeleteReference_EmptyList fails NotFound when the tag has no
references at all.
*/
func TestDeleteReference_EmptyList(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	_, err := h.service.DeleteReference(h.ctx, created.ID, decodeToken(t, created), "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

/*
TestCreateReference_DuplicateLinks tolerates two references sharing one
computed id.
*/
func TestCreateReference_DuplicateLinks(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	request := tag.ReferenceRequest{Name: "Mirror A", Link: "http://x", Source: "example"}
	first, err := h.service.CreateReference(h.ctx, created.ID, decodeToken(t, created), request)
	require.NoError(t, err)

	request.Name = "Mirror B"
	second, err := h.service.CreateReference(h.ctx, created.ID, decodeToken(t, first), request)
	require.NoError(t, err)

	require.Len(t, second.References, 2)
	assert.Equal(t, second.References[0].ID, second.References[1].ID)
	assert.NotEqual(t, second.References[0].Name, second.References[1].Name)
}

/*
TestReferenceLifecycle walks add, rename, relink, and remove through
the pipeline, checking identity restamps and audit taxonomy.
*/
func TestReferenceLifecycle(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	withRef, err := h.service.CreateReference(h.ctx, created.ID, decodeToken(t, created), tag.ReferenceRequest{
		Name:   "Report",
		Link:   "https://reports.example.com/1",
		Source: "example",
	})
	require.NoError(t, err)
	require.Len(t, withRef.References, 1)
	originalID := withRef.References[0].ID

	relinked, err := h.service.UpdateReference(h.ctx, created.ID, decodeToken(t, withRef), originalID, tag.ReferenceUpdate{
		Link: pointer.To("https://reports.example.com/2"),
	})
	require.NoError(t, err)
	require.Len(t, relinked.References, 1)
	assert.NotEqual(t, originalID, relinked.References[0].ID, "relinking restamps identity")

	final, err := h.service.DeleteReference(h.ctx, created.ID, decodeToken(t, relinked), relinked.References[0].ID)
	require.NoError(t, err)
	assert.Empty(t, final.References)
	assert.Equal(t, int64(4), final.Version)

	last := h.audits.entries[len(h.audits.entries)-1]
	assert.Equal(t, "update", last.Action)
	assert.Equal(t, "references", last.Subcomponent)
	assert.Equal(t, "delete", last.SubcomponentAction)
}

/*
TestPatternLifecycle walks add, update, and remove for patterns.
*/
func TestPatternLifecycle(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	withPattern, err := h.service.CreatePattern(h.ctx, created.ID, decodeToken(t, created), tag.PatternRequest{
		Operator: tag.OperatorAnd,
		Clauses: []tag.ClauseRequest{
			{Field: "process.name", Operator: "equals", Value: "emotet.exe"},
		},
	})
	require.NoError(t, err)
	require.Len(t, withPattern.Patterns, 1)
	originalID := withPattern.Patterns[0].ID

	updated, err := h.service.UpdatePattern(h.ctx, created.ID, decodeToken(t, withPattern), originalID, tag.PatternUpdate{
		Operator: pointer.To(tag.OperatorOr),
	})
	require.NoError(t, err)
	require.Len(t, updated.Patterns, 1)
	assert.NotEqual(t, originalID, updated.Patterns[0].ID, "operator change restamps identity")
	assert.Equal(t, tag.OperatorOr, updated.Patterns[0].Operator)

	final, err := h.service.DeletePattern(h.ctx, created.ID, decodeToken(t, updated), updated.Patterns[0].ID)
	require.NoError(t, err)
	assert.Empty(t, final.Patterns)

	last := h.audits.entries[len(h.audits.entries)-1]
	assert.Equal(t, "patterns", last.Subcomponent)
	assert.Equal(t, "delete", last.SubcomponentAction)
}

/*
TestMutationClearsState verifies every mutation resets the workflow
state alongside the editor and update stamps.
*/
func TestMutationClearsState(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	// Plant a state directly in the store, as a workflow job would.
	document, err := h.store.Get(h.ctx, created.ID, false)
	require.NoError(t, err)
	var fields tag.Fields
	require.NoError(t, json.Unmarshal(document.Source, &fields))
	fields.State = pointer.To("enrichment-pending")
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	_, err = h.store.Put(h.ctx, created.ID, body, nil)
	require.NoError(t, err)

	current, err := h.service.Get(h.ctx, created.ID, false)
	require.NoError(t, err)
	require.NotNil(t, current.State)

	updated, err := h.service.Update(h.ctx, created.ID, decodeToken(t, current), tag.UpdateRequest{
		Description: pointer.To("touched"),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.State)
	assert.Equal(t, "mkowalski", updated.Editor)
}

/*
TestActorMissing fails every entry point with a Server error when no
acting user was resolved, writing nothing.
*/
func TestActorMissing(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)
	bare := context.Background()

	_, err := h.service.Create(bare, tag.CreateRequest{
		Name: "Orphan", Description: "d", Type: tag.TypeSoftware, Visibility: tag.VisibilityPublic,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeServer, apperr.As(err).Code)

	_, err = h.service.Delete(bare, created.ID, decodeToken(t, created))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeServer, apperr.As(err).Code)

	assert.Equal(t, 1, h.history.count(), "no writes without an actor")
}

/*
TestRead_TokenStability reads the same tag twice without intervening
writes and expects identical tokens.
*/
func TestRead_TokenStability(t *testing.T) {
	h := newHarness(t)
	created := h.createEmotet(t)

	first, err := h.service.Get(h.ctx, created.ID, false)
	require.NoError(t, err)
	second, err := h.service.Get(h.ctx, created.ID, false)
	require.NoError(t, err)

	assert.Equal(t, first.Sequence, second.Sequence)
	assert.Equal(t, created.Sequence, first.Sequence)
}

/*
TestGet_Unknown maps a miss onto the tag-shaped NotFound.
*/
func TestGet_Unknown(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.Get(h.ctx, uuid.NewString(), false)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.CodeNotFound, appErr.Code)
	assert.Contains(t, appErr.Detail, "Tag")
}
