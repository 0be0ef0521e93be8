// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/egregore/egregore/internal/platform/apperr"
	"github.com/egregore/egregore/internal/platform/sequence"
)

// maxBodyBytes caps mutation payloads; tag documents are small.
const maxBodyBytes = 1 << 20

/*
Body reads and returns the raw request body, capped at maxBodyBytes.

Returns:
  - []byte: the body bytes
  - error: apperr.BadRequest if the body cannot be read
*/
func Body(request *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(request.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.BadRequest("Unable to read request body")
	}
	return raw, nil
}

/*
DecodeJSON reads the request body and strictly decodes it into the target
structure. Unknown fields are rejected so that typos in payload keys fail
loudly instead of silently dropping data.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: apperr.BadRequest if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	raw, err := Body(request)
	if err != nil {
		return err
	}
	return DecodeStrict(raw, target)
}

/*
DecodeStrict decodes raw JSON into target, rejecting unknown fields.
*/
func DecodeStrict(raw []byte, target interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return apperr.BadRequest("Invalid JSON payload")
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
Sequence parses the mandatory "sequence" query parameter into a decoded
optimistic-concurrency token.

Returns:
  - sequence.Sequence: the decoded token
  - error: apperr.BadRequest if the parameter is absent or malformed
*/
func Sequence(request *http.Request) (sequence.Sequence, error) {
	raw := request.URL.Query().Get("sequence")
	if raw == "" {
		return sequence.Sequence{}, apperr.BadRequest("Query parameter 'sequence' is required for this operation")
	}
	return sequence.Decode(raw)
}
