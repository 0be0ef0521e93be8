// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package history

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/egregore/egregore/internal/platform/request"
	"github.com/egregore/egregore/internal/platform/respond"
	"github.com/egregore/egregore/pkg/pagination"
)

// Handler exposes the read side of the revision log.
type Handler struct {
	service *Service
}

// NewHandler constructs a new history [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a [chi.Router] with the history listing endpoint.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/{tag_id}", handler.listForTag)

	return router
}

// listForTag lists every recorded revision of one tag, oldest first.
func (handler *Handler) listForTag(writer http.ResponseWriter, request *http.Request) {
	page := pagination.FromRequest(request)

	records, total, err := handler.service.List(request.Context(), requestutil.Param(request, "tag_id"), page.Limit, page.Offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, records, page.Limit, page.Offset, total)
}
