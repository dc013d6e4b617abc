package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/model"
)

// CacheEntry is a stored lookup outcome.
type CacheEntry struct {
	Found bool
	Coord model.Coordinate
}

// Cache persists lookup outcomes between runs.
type Cache interface {
	GetGeocode(ctx context.Context, key string) (CacheEntry, bool, error)
	PutGeocode(ctx context.Context, key string, entry CacheEntry) error
}

// CacheKey returns SHA-256 hex of the normalized query.
func CacheKey(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

type cachedResolver struct {
	next  Resolver
	cache Cache
}

// NewCachedResolver wraps next with a read-through cache. Found and NotFound
// are cached; transient failures are retried on the next run.
func NewCachedResolver(next Resolver, cache Cache) Resolver {
	return &cachedResolver{next: next, cache: cache}
}

func (c *cachedResolver) Resolve(ctx context.Context, query string) Result {
	key := CacheKey(query)

	entry, ok, err := c.cache.GetGeocode(ctx, key)
	if err != nil {
		zap.L().Warn("geocode: cache read failed", zap.String("key", key[:12]), zap.Error(err))
	} else if ok {
		zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("found", entry.Found))
		if entry.Found {
			return Result{Status: Found, Coord: entry.Coord, Query: query}
		}
		return Result{Status: NotFound, Query: query}
	}

	res := c.next.Resolve(ctx, query)
	if res.Status == TransientFailure {
		return res
	}

	if err := c.cache.PutGeocode(ctx, key, CacheEntry{Found: res.Found(), Coord: res.Coord}); err != nil {
		zap.L().Warn("geocode: cache write failed", zap.String("key", key[:12]), zap.Error(err))
	}
	return res
}
