// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

package pagination_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/egregore/egregore/pkg/pagination"
)

/*
TestFromRequest verifies query parsing and clamping behavior.
*/
func TestFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "/api/v1/tags", 10, 0},
		{"explicit values", "/api/v1/tags?limit=25&offset=50", 25, 50},
		{"limit above max falls back to default", "/api/v1/tags?limit=500", 10, 0},
		{"zero limit falls back to default", "/api/v1/tags?limit=0", 10, 0},
		{"negative offset falls back to default", "/api/v1/tags?offset=-5", 10, 0},
		{"garbage values fall back to defaults", "/api/v1/tags?limit=abc&offset=xyz", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest("GET", tt.target, nil)
			params := pagination.FromRequest(request)
			assert.Equal(t, tt.wantLimit, params.Limit)
			assert.Equal(t, tt.wantOffset, params.Offset)
		})
	}
}
