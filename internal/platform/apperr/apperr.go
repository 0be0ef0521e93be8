// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package apperr defines the centralized error handling framework for Egregore.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct carrying a stable machine-readable error code and a
    fixed category message from the closed enumeration below.
  - Mapping: Explicit mapping from AppError to standard HTTP status codes.
  - Secrecy: server-side causes are never serialized; detail text is withheld
    for 5xx responses.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"net/http"
)

// # Error Code Enumeration

// The code set is closed: clients can switch on codes without ever seeing a
// value outside this list. Each code maps to exactly one category message.
const (
	CodeServer          = "sploot"
	CodeNotFound        = "goldfish"
	CodeBadRequest      = "shoebill"
	CodeConflict        = "poodle moth"
	CodeIntegrity       = "narwhal"
	CodeMissingAPIKey   = "aye-aye"
	CodeMalformedAPIKey = "markhor"
	CodeForbidden       = "platypus"
)

// categoryMessages maps each error code to its fixed human-readable message.
var categoryMessages = map[string]string{
	CodeServer:          "The server encountered an unexpected error",
	CodeNotFound:        "The request you made could not be fulfilled as something wasn't found",
	CodeBadRequest:      "The request supplied was malformed in some way",
	CodeConflict:        "Unable to perform the request due to a conflict",
	CodeIntegrity:       "Unable to perform the request due to an integrity error",
	CodeMissingAPIKey:   "Header parameter X-API-Key is missing from the headers of the request",
	CodeMalformedAPIKey: "Supplied API Key is malformed",
	CodeForbidden:       "You do not have permission to access the requested resource",
}

// AppError is the canonical error type for the Egregore API.
//
// It carries an HTTP status code, a machine-readable code, the category
// message for that code, and an optional request-specific detail string.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries). For
// server errors (5xx) the Detail field is withheld from the response as well.
type AppError struct {
	// Code is the machine-readable error identifier from the closed enumeration.
	Code string `json:"errorCode"`
	// Message is the fixed, human-readable category message for the code.
	Message string `json:"errorMessage"`
	// Detail describes what specifically went wrong with this request.
	Detail string `json:"errorDetails,omitempty"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Fields holds per-field validation errors for BadRequest responses.
	Fields []FieldError `json:"fields,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// newError builds an AppError for a known code. Unknown codes fall back to
// the server category so a typo can never leak a nil message.
func newError(code string, status int, detail string) *AppError {
	message, ok := categoryMessages[code]
	if !ok {
		message = "Unknown Error"
	}
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		HTTPStatus: status,
	}
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] ("goldfish") with a resource-specific detail.
//
// Example:
//
//	apperr.NotFound("Tag not found")
func NotFound(detail string) *AppError {
	return newError(CodeNotFound, http.StatusNotFound, detail)
}

// BadRequest creates a 400 [AppError] ("shoebill") for malformed client input.
func BadRequest(detail string) *AppError {
	return newError(CodeBadRequest, http.StatusBadRequest, detail)
}

// ValidationError creates a 400 [AppError] ("shoebill") with per-field details.
func ValidationError(detail string, fields ...FieldError) *AppError {
	appError := newError(CodeBadRequest, http.StatusBadRequest, detail)
	appError.Fields = fields
	return appError
}

// Conflict creates a 409 [AppError] ("poodle moth") for duplicate or
// unique-constraint violations.
func Conflict(detail string) *AppError {
	return newError(CodeConflict, http.StatusConflict, detail)
}

// Integrity creates a 409 [AppError] ("narwhal").
//
// It is raised when a caller-supplied sequence no longer matches the stored
// document revision, either at the defensive pre-write check or at the
// authoritative conditional write. The caller must re-read and resubmit.
func Integrity(detail string) *AppError {
	return newError(CodeIntegrity, http.StatusConflict, detail)
}

// MissingAPIKey creates a 401 [AppError] ("aye-aye").
func MissingAPIKey() *AppError {
	return newError(CodeMissingAPIKey, http.StatusUnauthorized, "")
}

// MalformedAPIKey creates a 401 [AppError] ("markhor").
func MalformedAPIKey() *AppError {
	return newError(CodeMalformedAPIKey, http.StatusUnauthorized, "")
}

// Forbidden creates a 403 [AppError] ("platypus").
func Forbidden(detail string) *AppError {
	return newError(CodeForbidden, http.StatusForbidden, detail)
}

// # Server Errors (5xx)

// Server creates a 500 [AppError] ("sploot") wrapping an unexpected
// server-side error. The cause is stored for logging but is never sent to
// the client, and the detail is withheld at the respond layer.
func Server(cause error) *AppError {
	appError := newError(CodeServer, http.StatusInternalServerError, "")
	appError.Cause = cause
	return appError
}

// ServerMsg creates a 500 [AppError] ("sploot") from a plain description,
// for faults with no underlying error value (e.g. a missing actor).
func ServerMsg(detail string) *AppError {
	appError := newError(CodeServer, http.StatusInternalServerError, "")
	appError.Cause = errors.New(detail)
	return appError
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var appError *AppError
	return errors.As(err, &appError)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError
	}
	return nil
}

// CategoryMessage returns the fixed message for a code ("Unknown Error" for
// codes outside the enumeration).
func CategoryMessage(code string) string {
	if message, ok := categoryMessages[code]; ok {
		return message
	}
	return "Unknown Error"
}
