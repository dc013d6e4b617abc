package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := []Option{
		WithHTTPClient(newRewriteClient(srv.URL, DefaultBaseURL)),
		WithRateLimit(1000),
	}
	c := NewClient(append(base, opts...)...)
	c.limiter = newTestLimiter()
	return c
}

func TestResolve_StubScenario(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12 Rue de la Paix 75002 Paris", r.URL.Query().Get("q"))
		assert.Contains(t, r.URL.RawQuery, "q=12+Rue+de+la+Paix+75002+Paris")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"features":[{"geometry":{"coordinates":[2.3299,48.8692]}}]}`)
	})

	res := c.Resolve(context.Background(), "12 Rue de la Paix 75002 Paris")
	require.Equal(t, Found, res.Status)
	assert.InDelta(t, 48.8692, res.Coord.Lat, 1e-9)
	assert.InDelta(t, 2.3299, res.Coord.Lon, 1e-9)
	assert.Equal(t, "12 Rue de la Paix 75002 Paris", res.Query)
	assert.NoError(t, res.Err)
}

func TestResolve_TakesFirstFeature(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"features":[
			{"geometry":{"coordinates":[7.26,43.70]}},
			{"geometry":{"coordinates":[1,1]}}
		]}`)
	})

	res := c.Resolve(context.Background(), "Nice")
	require.True(t, res.Found())
	assert.InDelta(t, 43.70, res.Coord.Lat, 1e-9)
}

func TestResolve_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Status
	}{
		{"empty features", http.StatusOK, `{"features":[]}`, NotFound},
		{"missing features", http.StatusOK, `{}`, NotFound},
		{"short coordinate pair", http.StatusOK, `{"features":[{"geometry":{"coordinates":[2.3]}}]}`, NotFound},
		{"malformed json", http.StatusOK, `{"features":[`, NotFound},
		{"bad request", http.StatusBadRequest, `{"message":"q must contain at least 3 chars"}`, NotFound},
		{"not found", http.StatusNotFound, ``, NotFound},
		{"server error", http.StatusInternalServerError, ``, TransientFailure},
		{"bad gateway", http.StatusBadGateway, ``, TransientFailure},
		{"rate limited", http.StatusTooManyRequests, ``, TransientFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			res := c.Resolve(context.Background(), "somewhere")
			assert.Equal(t, tt.want, res.Status)
			assert.False(t, res.Found())
			if tt.name != "empty features" && tt.name != "missing features" {
				assert.Error(t, res.Err)
			}
		})
	}
}

func TestResolve_NetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(WithBaseURL(url+"/search/"), WithHTTPClient(&http.Client{Timeout: time.Second}))
	c.limiter = newTestLimiter()

	res := c.Resolve(context.Background(), "Nice")
	assert.Equal(t, TransientFailure, res.Status)
	assert.Error(t, res.Err)
}

func TestResolve_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL+"/search/"),
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	c.limiter = newTestLimiter()

	res := c.Resolve(context.Background(), "Nice")
	assert.Equal(t, TransientFailure, res.Status)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "transient_failure", TransientFailure.String())
}
