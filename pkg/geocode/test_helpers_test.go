package geocode

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient sends every request aimed at apiBase to the httptest
// server instead, keeping path and query.
func newRewriteClient(serverURL, apiBase string) *http.Client {
	return &http.Client{Transport: redirectTransport{server: serverURL, apiBase: apiBase}}
}

type redirectTransport struct {
	server  string
	apiBase string
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	raw := req.URL.String()
	if !strings.HasPrefix(raw, rt.apiBase) {
		return http.DefaultTransport.RoundTrip(req)
	}
	u, err := url.Parse(rt.server + strings.TrimPrefix(raw, rt.apiBase))
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL = u
	out.Host = u.Host
	return http.DefaultTransport.RoundTrip(out)
}
