package geocode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dvf-flood/internal/model"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	getErr  error
}

func newMemCache() *memCache { return &memCache{entries: map[string]CacheEntry{}} }

func (m *memCache) GetGeocode(_ context.Context, key string) (CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return CacheEntry{}, false, m.getErr
	}
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memCache) PutGeocode(_ context.Context, key string, e CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func TestCacheKey_Normalizes(t *testing.T) {
	assert.Equal(t, CacheKey("12 Rue de la Paix"), CacheKey("  12  rue DE la paix "))
	assert.NotEqual(t, CacheKey("12 Rue de la Paix"), CacheKey("14 Rue de la Paix"))
	assert.Len(t, CacheKey("x"), 64)
}

func TestCachedResolver(t *testing.T) {
	calls := map[string]int{}
	next := ResolverFunc(func(_ context.Context, q string) Result {
		calls[q]++
		switch q {
		case "found":
			return Result{Status: Found, Coord: model.Coordinate{Lat: 43.7, Lon: 7.26}, Query: q}
		case "flaky":
			return Result{Status: TransientFailure, Query: q}
		default:
			return Result{Status: NotFound, Query: q}
		}
	})

	cache := newMemCache()
	r := NewCachedResolver(next, cache)
	ctx := context.Background()

	for range 3 {
		res := r.Resolve(ctx, "found")
		require.True(t, res.Found())
		assert.InDelta(t, 43.7, res.Coord.Lat, 1e-12)

		assert.Equal(t, NotFound, r.Resolve(ctx, "missing").Status)
		assert.Equal(t, TransientFailure, r.Resolve(ctx, "flaky").Status)
	}

	assert.Equal(t, 1, calls["found"])
	assert.Equal(t, 1, calls["missing"])
	assert.Equal(t, 3, calls["flaky"], "transient failures are never cached")
	assert.Len(t, cache.entries, 2)
}

func TestCachedResolver_ReadErrorFallsThrough(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("disk gone")

	var calls int
	r := NewCachedResolver(ResolverFunc(func(_ context.Context, q string) Result {
		calls++
		return Result{Status: NotFound, Query: q}
	}), cache)

	r.Resolve(context.Background(), "x")
	assert.Equal(t, 1, calls)
}

func TestClient_WithCache(t *testing.T) {
	var hits int
	cache := newMemCache()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = io.WriteString(w, `{"features":[{"geometry":{"coordinates":[2.3299,48.8692]}}]}`)
	}, WithCache(cache))

	c.Resolve(context.Background(), "12 Rue de la Paix 75002 Paris")
	res := c.Resolve(context.Background(), "12 rue de la paix 75002 paris")
	assert.True(t, res.Found())
	assert.Equal(t, 1, hits)
}
