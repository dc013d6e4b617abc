package geocode

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/model"
)

// Containment reports whether a coordinate lies inside a reference area.
type Containment interface {
	Contains(c model.Coordinate) bool
}

// ContainmentFunc adapts a function to Containment.
type ContainmentFunc func(c model.Coordinate) bool

// Contains calls f.
func (f ContainmentFunc) Contains(c model.Coordinate) bool { return f(c) }

// ResolveWithFallback tries "<keyword> <target>" for each keyword in order
// and returns the first Found result inside within. A nil within accepts
// any Found result. Nil keywords use the client defaults.
func (c *Client) ResolveWithFallback(ctx context.Context, target string, keywords []string, within Containment) Result {
	if keywords == nil {
		keywords = c.keywords
	}
	return ResolveWithFallback(ctx, c, target, keywords, within)
}

// ResolveWithFallback is the Resolver-generic form of Client.ResolveWithFallback.
// Keywords are tried sequentially; the first accepted result wins.
func ResolveWithFallback(ctx context.Context, r Resolver, target string, keywords []string, within Containment) Result {
	last := Result{Status: NotFound, Query: target}
	for _, kw := range keywords {
		if ctx.Err() != nil {
			break
		}
		query := strings.TrimSpace(strings.TrimSpace(kw) + " " + target)
		res := r.Resolve(ctx, query)
		if !res.Found() {
			continue
		}
		if within != nil && !within.Contains(res.Coord) {
			zap.L().Debug("geocode: fallback result outside area",
				zap.String("query", query),
				zap.Float64("lat", res.Coord.Lat),
				zap.Float64("lon", res.Coord.Lon),
			)
			continue
		}
		return res
	}
	return last
}
