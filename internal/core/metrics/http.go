// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/egregore/egregore/internal/platform/respond"
)

// Handler exposes the metric views.
type Handler struct {
	service *Service
}

// NewHandler constructs a new metrics [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a [chi.Router] with the metric endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/tags", handler.tags)
	router.Get("/audit", handler.audit)

	return router
}

// tags serves the catalog totals.
func (handler *Handler) tags(writer http.ResponseWriter, request *http.Request) {
	result, err := handler.service.Tags(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, result)
}

// audit serves the nested audit aggregation.
func (handler *Handler) audit(writer http.ResponseWriter, request *http.Request) {
	result, err := handler.service.Audit(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, result)
}
