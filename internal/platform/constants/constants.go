// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Catalog: Document collection names and audit component identifiers.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "egregore-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXAPIKey       = "X-API-Key"
	HeaderOrigin        = "Origin"
)

// # JSON Field Identifiers

const (
	FieldItems     = "items"
	FieldTotal     = "total"
	FieldLimit     = "limit"
	FieldOffset    = "offset"
	FieldError     = "error"
	FieldCode      = "code"
	FieldMessage   = "message"
	FieldStatus    = "status"
	FieldApp       = "app"
	FieldVersion   = "version"
	FieldChecks    = "checks"
	FieldRequestID = "requestID"
)

// # Document Collections

// One collection per concern. Tags live in the mutable collection; history
// and audit are append-only and never conditionally written.
const (
	CollectionTags       = "tags"
	CollectionTagHistory = "tag_history"
	CollectionTagAudit   = "tag_audit"
)

// # Audit Taxonomy

const (
	ComponentTag = "tag"

	SubcomponentReferences = "references"
	SubcomponentPatterns   = "patterns"

	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixMetrics = "metrics:"

	// MetricsCacheTTL bounds how stale a cached metrics payload may get.
	MetricsCacheTTL = 60 * time.Second
)

// # Listing Defaults

const (
	// DefaultSortField orders listings by creation time unless overridden.
	DefaultSortField = "created"

	// DefaultSortOrder is ascending, oldest first.
	DefaultSortOrder = "asc"
)
