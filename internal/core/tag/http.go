// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package tag implements the tag catalog: the primary entities of the
service, their references and detection patterns, and the optimistic
edit pipeline every mutation flows through.

# Routing Strategy

  - Reads (viewer): listing, single fetch. Any authenticated key.
  - Mutations (editor): create, update, soft delete, and all
    sub-resource edits require the editor role.

Every mutating endpoint on an existing tag requires a `sequence` query
parameter carrying the token from the caller's last read; the request is
rejected with an Integrity error when the tag has moved on since.
*/
package tag

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/egregore/egregore/internal/platform/identity"
	"github.com/egregore/egregore/internal/platform/middleware"
	requestutil "github.com/egregore/egregore/internal/platform/request"
	"github.com/egregore/egregore/internal/platform/respond"
	"github.com/egregore/egregore/pkg/convert"
	"github.com/egregore/egregore/pkg/pagination"
	"github.com/egregore/egregore/pkg/query"
)

// # Handler Implementation

// Handler implements the HTTP layer for the tag catalog.
type Handler struct {
	service *Service
}

// NewHandler constructs a new tag [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a [chi.Router] configured with the tag endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// ## Reads
	router.Get("/", handler.list)
	router.Get("/{tag_id}", handler.get)

	// ## Mutations (Editor Protected)
	router.Group(func(editor chi.Router) {
		editor.Use(middleware.RequireRole(identity.RoleEditor))

		editor.Post("/", handler.create)
		editor.Patch("/{tag_id}", handler.update)
		editor.Delete("/{tag_id}", handler.delete)

		// References
		editor.Post("/{tag_id}/references", handler.createReference)
		editor.Patch("/{tag_id}/references/{reference_id}", handler.updateReference)
		editor.Delete("/{tag_id}/references/{reference_id}", handler.deleteReference)

		// Patterns
		editor.Post("/{tag_id}/patterns", handler.createPattern)
		editor.Patch("/{tag_id}/patterns/{pattern_id}", handler.updatePattern)
		editor.Delete("/{tag_id}/patterns/{pattern_id}", handler.deletePattern)
	})

	return router
}

// list performs a filtered, paginated tag listing.
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	page := pagination.FromRequest(request)
	params := request.URL.Query()

	options := ListOptions{
		Query:          params.Get("q"),
		Type:           params.Get("type"),
		Visibility:     params.Get("visibility"),
		Groups:         query.StringSlice(params.Get("groups")),
		IncludeDeleted: convert.ToBool(params.Get("include_deleted")),
		SortBy:         params.Get("sort_by"),
		SortOrder:      params.Get("sort_order"),
		Limit:          page.Limit,
		Offset:         page.Offset,
	}

	tags, total, err := handler.service.List(request.Context(), options)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, tags, page.Limit, page.Offset, total)
}

// get fetches a single tag by id.
func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	includeDeleted := convert.ToBool(request.URL.Query().Get("include_deleted"))

	result, err := handler.service.Get(request.Context(), requestutil.Param(request, "tag_id"), includeDeleted)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// create writes a new tag.
func (handler *Handler) create(writer http.ResponseWriter, request *http.Request) {
	var payload CreateRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Create(request.Context(), payload)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, result)
}

// update merges base fields into an existing tag.
func (handler *Handler) update(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload UpdateRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Update(request.Context(), requestutil.Param(request, "tag_id"), seq, payload)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// delete soft-deletes a tag.
func (handler *Handler) delete(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Delete(request.Context(), requestutil.Param(request, "tag_id"), seq)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// # Reference Endpoints

func (handler *Handler) createReference(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload ReferenceRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.CreateReference(request.Context(), requestutil.Param(request, "tag_id"), seq, payload)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, result)
}

func (handler *Handler) updateReference(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload ReferenceUpdate
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.UpdateReference(
		request.Context(),
		requestutil.Param(request, "tag_id"),
		seq,
		requestutil.Param(request, "reference_id"),
		payload,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

func (handler *Handler) deleteReference(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.DeleteReference(
		request.Context(),
		requestutil.Param(request, "tag_id"),
		seq,
		requestutil.Param(request, "reference_id"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// # Pattern Endpoints

func (handler *Handler) createPattern(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload PatternRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.CreatePattern(request.Context(), requestutil.Param(request, "tag_id"), seq, payload)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, result)
}

func (handler *Handler) updatePattern(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload PatternUpdate
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.UpdatePattern(
		request.Context(),
		requestutil.Param(request, "tag_id"),
		seq,
		requestutil.Param(request, "pattern_id"),
		payload,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

func (handler *Handler) deletePattern(writer http.ResponseWriter, request *http.Request) {
	seq, err := requestutil.Sequence(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.DeletePattern(
		request.Context(),
		requestutil.Param(request, "tag_id"),
		seq,
		requestutil.Param(request, "pattern_id"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}
