package georisques

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/resilience"
)

const oneZone = `{"results":1,"data":[{
	"identifiant_tri":"FRD_TRI_NICE",
	"typeInondation":{"code":"01","libelle":"Par une crue à débordement lent de cours d'eau"},
	"scenario":{"code":"01For","libelle":"Aléa fort"}
}]}`

const twoZones = `{"results":2,"data":[
	{"identifiant_tri":"FRD_TRI_NICE","typeInondation":{"libelle":"Submersion marine"},"scenario":{"code":"02Moy"}},
	{"identifiant_tri":"FRD_TRI_NICE","typeInondation":{"libelle":"Débordement"},"scenario":{"code":"04Fai"}}
]}`

func newTestClient(srvURL string, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(srvURL),
		WithRetry(resilience.FixedRetryConfig(2, time.Millisecond)),
		WithRateLimit(1000),
	}
	return NewClient(append(base, opts...)...)
}

var nice = model.Coordinate{Lat: 43.6961, Lon: 7.2718}

func TestClassify_OneZone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7.2718,43.6961", r.URL.Query().Get("latlon"), "longitude first")
		_, _ = io.WriteString(w, oneZone)
	}))
	defer srv.Close()

	tag := newTestClient(srv.URL).Classify(context.Background(), nice)
	require.Equal(t, model.FloodInZone, tag.Status)
	assert.Equal(t, 1, tag.ResultCount)
	assert.Equal(t, "FRD_TRI_NICE", *tag.ZoneID)
	assert.Equal(t, "01For", tag.ScenarioCode())
	assert.True(t, tag.Overflow())
}

func TestClassify_NoZone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":0,"data":[]}`)
	}))
	defer srv.Close()

	tag := newTestClient(srv.URL).Classify(context.Background(), nice)
	assert.Equal(t, model.FloodNoZone, tag.Status)
	assert.Equal(t, 0, tag.ResultCount)
	assert.Nil(t, tag.ZoneID)
}

func TestClassify_AmbiguousIsDistinctFromFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, twoZones)
	}))
	defer srv.Close()

	tag := newTestClient(srv.URL).Classify(context.Background(), nice)
	assert.Equal(t, model.FloodAmbiguous, tag.Status)
	assert.Equal(t, 2, tag.ResultCount)
	assert.Nil(t, tag.ZoneID)
	assert.Nil(t, tag.FloodType)
	assert.Nil(t, tag.Scenario)
	assert.False(t, tag.InZone())
}

func TestClassify_SingleMatchWithoutDataFails(t *testing.T) {
	for _, body := range []string{`{"results":1,"data":[]}`, `{"results":1}`, `{"results":-1,"data":[]}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			tag := newTestClient(srv.URL).Classify(context.Background(), nice)
			assert.Equal(t, model.FloodFailed, tag.Status)
			assert.False(t, tag.InZone())
			assert.Nil(t, tag.ZoneID)
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, oneZone)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	first := c.Classify(context.Background(), nice)
	for range 3 {
		assert.Equal(t, first, c.Classify(context.Background(), nice))
	}
}

func TestClassify_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, oneZone)
	}))
	defer srv.Close()

	tag := newTestClient(srv.URL).Classify(context.Background(), nice)
	assert.Equal(t, model.FloodInZone, tag.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassify_ExhaustedRetriesFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tag := newTestClient(srv.URL).Classify(context.Background(), nice)
	assert.Equal(t, model.FailedFloodTag(), tag)
	assert.Equal(t, int32(2), calls.Load(), "two attempts in total")
}

func TestClassify_TimeoutFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	tag := newTestClient(srv.URL, WithTimeout(30*time.Millisecond)).Classify(context.Background(), nice)
	assert.Equal(t, model.FloodFailed, tag.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassify_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, ""},
		{"garbage body", http.StatusOK, "<html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			tag := newTestClient(srv.URL).Classify(context.Background(), nice)
			assert.Equal(t, model.FloodFailed, tag.Status)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}
