// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egregore/egregore/internal/platform/ctxutil"
	"github.com/egregore/egregore/internal/platform/identity"
	"github.com/egregore/egregore/internal/platform/middleware"
)

const testKey = "egg_4fz81kd0s2m7qh3vx9wb01"

func testResolver(t *testing.T) *identity.Keyring {
	t.Helper()
	ring, err := identity.ParseKeyring(testKey + ":mkowalski:editor")
	require.NoError(t, err)
	return ring
}

// echoActor records whether the handler saw a resolved actor.
func echoActor(saw **identity.User) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		*saw = ctxutil.GetActor(request.Context())
		writer.WriteHeader(http.StatusOK)
	})
}

/*
TestAuthenticate_ResolvesActor verifies that a valid key places the resolved
user into the request context.
*/
func TestAuthenticate_ResolvesActor(t *testing.T) {
	var saw *identity.User
	handler := middleware.Authenticate(testResolver(t))(echoActor(&saw))

	request := httptest.NewRequest(http.MethodGet, "/api/v1/tags", nil)
	request.Header.Set("X-API-Key", testKey)
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, saw)
	assert.Equal(t, "mkowalski", saw.Username)
}

/*
TestAuthenticate_RejectsBadKeys checks status codes for the key failure modes.
*/
func TestAuthenticate_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "not-a-key", http.StatusUnauthorized},
		{"unknown", "egg_0000000000000000000000", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var saw *identity.User
			handler := middleware.Authenticate(testResolver(t))(echoActor(&saw))

			request := httptest.NewRequest(http.MethodGet, "/api/v1/tags", nil)
			if tt.key != "" {
				request.Header.Set("X-API-Key", tt.key)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Nil(t, saw, "handler must not run for rejected keys")
		})
	}
}

/*
TestRequireRole enforces role membership for guarded route groups.
*/
func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})

	t.Run("role_present", func(t *testing.T) {
		guarded := middleware.RequireRole(identity.RoleEditor)(next)
		request := httptest.NewRequest(http.MethodPost, "/api/v1/tags", nil)
		request = request.WithContext(ctxutil.WithActor(request.Context(),
			&identity.User{Username: "mkowalski", Roles: []string{identity.RoleEditor}}))
		recorder := httptest.NewRecorder()

		guarded.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
	})

	t.Run("role_absent", func(t *testing.T) {
		guarded := middleware.RequireRole(identity.RoleEditor)(next)
		request := httptest.NewRequest(http.MethodPost, "/api/v1/tags", nil)
		request = request.WithContext(ctxutil.WithActor(request.Context(),
			&identity.User{Username: "viewer", Roles: []string{identity.RoleViewer}}))
		recorder := httptest.NewRecorder()

		guarded.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("actor_missing_is_server_fault", func(t *testing.T) {
		guarded := middleware.RequireRole(identity.RoleEditor)(next)
		request := httptest.NewRequest(http.MethodPost, "/api/v1/tags", nil)
		recorder := httptest.NewRecorder()

		guarded.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	})
}
