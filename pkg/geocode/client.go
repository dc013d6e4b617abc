// Package geocode resolves French addresses and place names to coordinates
// through the national address service (Base Adresse Nationale).
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/resilience"
)

// DefaultBaseURL is the BAN free-text search endpoint.
const DefaultBaseURL = "https://api-adresse.data.gouv.fr/search/"

// Status is the outcome of a lookup.
type Status int

const (
	// NotFound means the service answered but had no usable feature.
	NotFound Status = iota
	// Found means Coord holds the first feature's position.
	Found
	// TransientFailure means the call failed in a way a later run may not.
	TransientFailure
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case TransientFailure:
		return "transient_failure"
	default:
		return "not_found"
	}
}

// Result is a typed lookup outcome. Failures are carried in Err and never
// returned as Go errors.
type Result struct {
	Status Status
	Coord  model.Coordinate
	Query  string
	Err    error
}

// Found reports whether the lookup produced a coordinate.
func (r Result) Found() bool { return r.Status == Found }

// Resolver resolves one free-text query.
type Resolver interface {
	Resolve(ctx context.Context, query string) Result
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, query string) Result

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, query string) Result { return f(ctx, query) }

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the search endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second budget.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithConcurrency caps in-flight requests during BatchResolve.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithKeywords sets the default place-search prefixes used by
// ResolveWithFallback when none are passed.
func WithKeywords(keywords ...string) Option {
	return func(c *Client) { c.keywords = keywords }
}

// WithProgress registers a callback run after each batch item completes.
func WithProgress(fn func()) Option {
	return func(c *Client) { c.progress = fn }
}

// WithCache stores Found and NotFound outcomes in cache.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// Client queries the BAN search API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	concurrency int
	keywords    []string
	progress    func()
	cache       Cache
	resolver    Resolver
}

// NewClient creates a Client. Defaults: 10s timeout, 40 req/s, 10 workers.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     DefaultBaseURL,
		limiter:     rate.NewLimiter(40, 40),
		concurrency: 10,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.resolver = ResolverFunc(c.lookup)
	if c.cache != nil {
		c.resolver = NewCachedResolver(c.resolver, c.cache)
	}
	return c
}

// Resolve looks up a single free-text query.
func (c *Client) Resolve(ctx context.Context, query string) Result {
	return c.resolver.Resolve(ctx, query)
}

type searchResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (c *Client) lookup(ctx context.Context, query string) Result {
	res := c.search(ctx, query)
	switch res.Status {
	case TransientFailure:
		zap.L().Warn("geocode: lookup failed", zap.String("query", query), zap.Error(res.Err))
	case NotFound:
		if res.Err != nil {
			zap.L().Debug("geocode: unusable response", zap.String("query", query), zap.Error(res.Err))
		} else {
			zap.L().Debug("geocode: no match", zap.String("query", query))
		}
	}
	return res
}

func (c *Client) search(ctx context.Context, query string) Result {
	res := Result{Query: query}

	if err := c.limiter.Wait(ctx); err != nil {
		res.Status = TransientFailure
		res.Err = eris.Wrap(err, "geocode: rate limit")
		return res
	}

	reqURL := c.baseURL + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		res.Err = eris.Wrap(err, "geocode: build request")
		return res
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		res.Status = TransientFailure
		res.Err = eris.Wrap(err, "geocode: request")
		return res
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		res.Err = resilience.StatusError("geocode", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			res.Status = TransientFailure
		}
		return res
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Err = eris.Wrap(err, "geocode: read body")
		if isNetworkError(err) {
			res.Status = TransientFailure
		}
		return res
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		res.Err = eris.Wrap(err, "geocode: parse response")
		return res
	}
	if len(parsed.Features) == 0 {
		return res
	}

	coords := parsed.Features[0].Geometry.Coordinates
	if len(coords) < 2 {
		res.Err = eris.New("geocode: feature without coordinate pair")
		return res
	}

	// BAN returns [lon, lat].
	coord := model.Coordinate{Lat: coords[1], Lon: coords[0]}
	if !coord.Valid() {
		res.Err = eris.Errorf("geocode: out of range coordinate %v", coords)
		return res
	}

	res.Status = Found
	res.Coord = coord
	return res
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || resilience.IsTransient(err)
}
