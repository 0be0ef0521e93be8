// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

/*
Package metrics exposes precomputed summary views of the catalog and
its audit log.

Both views are expensive relative to their freshness needs, so results
are cached in Redis under a short TTL; dashboards polling these
endpoints hit the cache, not the document store.
*/
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/egregore/egregore/internal/platform/constants"
	"github.com/egregore/egregore/internal/platform/docstore"
)

// recentWindow bounds what "recently edited" means.
const recentWindow = 24 * time.Hour

// Cache keys under the metrics prefix.
const (
	cacheKeyTags  = constants.RedisPrefixMetrics + "tags"
	cacheKeyAudit = constants.RedisPrefixMetrics + "audit"
)

// TagMetrics is the summary view of the tag catalog.
type TagMetrics struct {
	Total          int64 `json:"total"`
	Active         int64 `json:"active"`
	Deleted        int64 `json:"deleted"`
	RecentlyEdited int64 `json:"recentlyEdited"`
}

// Store is the counting slice of the tag collection the metrics need.
type Store interface {
	Count(ctx context.Context, query *docstore.Query) (int64, error)
}

// Aggregator produces the hierarchical audit summary.
type Aggregator interface {
	Aggregate(ctx context.Context) (*docstore.Bucket, error)
}

// Cache is a volatile byte store with TTL semantics.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Service computes and caches the metric views.
type Service struct {
	tags   Store
	audits Aggregator
	cache  Cache
	logger *slog.Logger
}

// NewService constructs a new metrics [Service].
func NewService(tags Store, audits Aggregator, cache Cache, logger *slog.Logger) *Service {
	return &Service{
		tags:   tags,
		audits: audits,
		cache:  cache,
		logger: logger,
	}
}

// Tags returns catalog totals, serving from cache when fresh.
func (service *Service) Tags(ctx context.Context) (*TagMetrics, error) {
	var cached TagMetrics
	if service.fromCache(ctx, cacheKeyTags, &cached) {
		return &cached, nil
	}

	active, err := service.tags.Count(ctx, docstore.NewQuery().NotExists("deleted"))
	if err != nil {
		return nil, err
	}
	deleted, err := service.tags.Count(ctx, docstore.NewQuery().Exists("deleted"))
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-recentWindow)
	recent, err := service.tags.Count(ctx, docstore.NewQuery().NotExists("deleted").Since("updated", cutoff))
	if err != nil {
		return nil, err
	}

	result := &TagMetrics{
		Total:          active + deleted,
		Active:         active,
		Deleted:        deleted,
		RecentlyEdited: recent,
	}
	service.toCache(ctx, cacheKeyTags, result)
	return result, nil
}

// Audit returns the nested audit aggregation, serving from cache when
// fresh.
func (service *Service) Audit(ctx context.Context) (*docstore.Bucket, error) {
	var cached docstore.Bucket
	if service.fromCache(ctx, cacheKeyAudit, &cached) {
		return &cached, nil
	}

	result, err := service.audits.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	service.toCache(ctx, cacheKeyAudit, result)
	return result, nil
}

// fromCache loads and decodes a cached payload. Cache faults degrade to
// a recompute, never a failed request.
func (service *Service) fromCache(ctx context.Context, key string, target any) bool {
	payload, hit, err := service.cache.Get(ctx, key)
	if err != nil {
		service.logger.Warn("metrics cache read failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	if !hit {
		return false
	}
	if err := json.Unmarshal(payload, target); err != nil {
		service.logger.Warn("metrics cache payload corrupt", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (service *Service) toCache(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := service.cache.Set(ctx, key, payload, constants.MetricsCacheTTL); err != nil {
		service.logger.Warn("metrics cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
