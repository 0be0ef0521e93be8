// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package middleware

import (
	"net/http"

	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/constants"
	"github.com/egregore/egregore/internal/platform/ctxutil"
	"github.com/egregore/egregore/internal/platform/identity"
	"github.com/egregore/egregore/internal/platform/respond"
)

// KeyResolver defines the interface needed to resolve API keys in middleware.
//
// # Why an interface?
//
// Defining KeyResolver here decouples the middleware from the identity
// keyring implementation, allowing us to easily inject mocks during unit
// testing.
type KeyResolver interface {
	Resolve(rawKey string) (*identity.User, error)
}

// Authenticate extracts and resolves the X-API-Key header into an acting user.
//
// # Flow
//  1. Read the 'X-API-Key' header.
//  2. Resolve it via [KeyResolver]: missing, malformed, and unknown keys each
//     fail with their own taxonomy code (aye-aye / markhor / platypus).
//  3. Inject the resolved user into the request context for downstream use.
//
// No route is served anonymously: the entire API surface below the health
// probes requires a resolved acting user, because every mutation stamps and
// audits the actor.
func Authenticate(resolver KeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			rawKey := request.Header.Get(constants.HeaderXAPIKey)

			user, err := resolver.Resolve(rawKey)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			ctx := ctxutil.WithActor(request.Context(), user)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireRole guards a route group behind a role check.
//
// The acting user must already be resolved by [Authenticate]; a missing
// actor here is a wiring fault, not a client error.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			actor := ctxutil.GetActor(request.Context())
			if actor == nil {
				respond.Error(writer, request, apperr.ServerMsg("actor missing from request"))
				return
			}

			if !actor.HasRole(role) {
				respond.Error(writer, request, apperr.Forbidden("This operation requires the '"+role+"' role"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
