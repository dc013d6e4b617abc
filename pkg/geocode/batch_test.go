package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchResolve_MergesByKey(t *testing.T) {
	queries := make(map[string]string)
	for i := range 25 {
		queries[fmt.Sprintf("2023-%d/1", i)] = fmt.Sprintf("%d Rue Test", i)
	}

	r := ResolverFunc(func(_ context.Context, q string) Result {
		var n int
		_, _ = fmt.Sscanf(q, "%d", &n)
		if n%5 == 0 {
			return Result{Status: TransientFailure, Query: q}
		}
		return Result{Status: Found, Query: q}
	})

	var done atomic.Int32
	out := BatchResolve(context.Background(), r, queries, 4, func() { done.Add(1) })

	require.Len(t, out, len(queries))
	assert.Equal(t, int32(25), done.Load())
	for key, q := range queries {
		assert.Equal(t, q, out[key].Query, key)
	}
	assert.Equal(t, TransientFailure, out["2023-10/1"].Status)
	assert.Equal(t, Found, out["2023-11/1"].Status)
}

func TestBatchResolve_RespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := ResolverFunc(func(_ context.Context, q string) Result {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Result{Status: NotFound, Query: q}
	})

	queries := make(map[string]string)
	for i := range 30 {
		queries[fmt.Sprint(i)] = fmt.Sprint(i)
	}
	BatchResolve(context.Background(), r, queries, 3, nil)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatchResolve_Empty(t *testing.T) {
	out := BatchResolve(context.Background(), ResolverFunc(func(context.Context, string) Result {
		t.Fatal("should not be called")
		return Result{}
	}), nil, 10, nil)
	assert.Empty(t, out)
}

func TestClientBatchResolve_HTTP(t *testing.T) {
	var progress atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.Contains(q, "Inconnue") {
			_, _ = io.WriteString(w, `{"features":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"features":[{"geometry":{"coordinates":[7.26,43.70]}}]}`)
	}, WithConcurrency(2), WithProgress(func() { progress.Add(1) }))

	out := c.BatchResolve(context.Background(), map[string]string{
		"a/1": "1 Promenade des Anglais 06000 Nice",
		"b/1": "3 Rue Inconnue 06000 Nice",
	})
	assert.True(t, out["a/1"].Found())
	assert.Equal(t, NotFound, out["b/1"].Status)
	assert.Equal(t, int32(2), progress.Load())
}
