// Package georisques queries the Géorisques TRI zoning API for the flood-risk
// zones covering a point.
package georisques

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/resilience"
)

// DefaultBaseURL is the tri_zonage endpoint.
const DefaultBaseURL = "https://georisques.gouv.fr/api/v1/tri_zonage"

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client. The per-call deadline set by
// WithTimeout applies in addition to the client's own Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
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

// Client classifies points against the remote zoning service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	retry      resilience.RetryConfig
	limiter    *rate.Limiter
}

// NewClient creates a Client. Defaults: 3s per attempt, two attempts with a
// fixed 500ms pause, 10 req/s.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
		timeout:    3 * time.Second,
		retry:      resilience.DefaultRetryConfig(),
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type zonageResponse struct {
	Results int `json:"results"`
	Data    []struct {
		IdentifiantTRI string `json:"identifiant_tri"`
		TypeInondation struct {
			Libelle string `json:"libelle"`
		} `json:"typeInondation"`
		Scenario struct {
			Code string `json:"code"`
		} `json:"scenario"`
	} `json:"data"`
}

// Classify returns the flood tag for p. Exhausted retries, undecodable
// answers and a single match without zone data yield a Failed tag; the
// cause is logged.
func (c *Client) Classify(ctx context.Context, p model.Coordinate) model.FloodTag {
	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("georisques", "tri_zonage")

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*zonageResponse, error) {
		return c.query(ctx, p)
	})
	if err != nil {
		zap.L().Warn("georisques: classification failed",
			zap.Float64("lat", p.Lat),
			zap.Float64("lon", p.Lon),
			zap.Error(err),
		)
		return model.FailedFloodTag()
	}

	if resp.Results < 0 || (resp.Results == 1 && len(resp.Data) == 0) {
		zap.L().Warn("georisques: malformed zoning response",
			zap.Float64("lat", p.Lat),
			zap.Float64("lon", p.Lon),
			zap.Int("results", resp.Results),
			zap.Int("data", len(resp.Data)),
		)
		return model.FailedFloodTag()
	}
	if resp.Results == 1 {
		d := resp.Data[0]
		return model.NewFloodTag(1, d.IdentifiantTRI, d.TypeInondation.Libelle, d.Scenario.Code)
	}
	if resp.Results > 1 {
		zap.L().Debug("georisques: ambiguous zone match",
			zap.Float64("lat", p.Lat),
			zap.Float64("lon", p.Lon),
			zap.Int("results", resp.Results),
		)
	}
	return model.NewFloodTag(resp.Results, "", "", "")
}

func (c *Client) query(ctx context.Context, p model.Coordinate) (*zonageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "georisques: rate limit")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The API expects longitude first.
	latlon := formatFloat(p.Lon) + "," + formatFloat(p.Lat)
	reqURL := c.baseURL + "?" + url.Values{"latlon": {latlon}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "georisques: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "georisques: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("georisques", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "georisques: read body"), 0)
	}

	var out zonageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "georisques: parse response")
	}
	return &out, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
