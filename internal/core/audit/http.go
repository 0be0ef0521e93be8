// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/egregore/egregore/internal/platform/request"
	"github.com/egregore/egregore/internal/platform/respond"
	"github.com/egregore/egregore/pkg/pagination"
)

// Handler exposes the read side of the audit log.
type Handler struct {
	service *Service
}

// NewHandler constructs a new audit [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a [chi.Router] with the audit listing endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/tags/{tag_id}", handler.listForTag)
	router.Get("/users/{username}", handler.listForUser)

	return router
}

// listForTag lists the complete audit record for one tag.
func (handler *Handler) listForTag(writer http.ResponseWriter, request *http.Request) {
	page := pagination.FromRequest(request)

	entries, total, err := handler.service.ListForTag(request.Context(), requestutil.Param(request, "tag_id"), page.Limit, page.Offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, page.Limit, page.Offset, total)
}

// listForUser lists every action taken by one user.
func (handler *Handler) listForUser(writer http.ResponseWriter, request *http.Request) {
	page := pagination.FromRequest(request)

	entries, total, err := handler.service.ListForUser(request.Context(), requestutil.Param(request, "username"), page.Limit, page.Offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, page.Limit, page.Offset, total)
}
