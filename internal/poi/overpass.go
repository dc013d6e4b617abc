// Package poi fetches points of interest (town halls, beaches, stations,
// harbors) from OpenStreetMap through the Overpass API.
package poi

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/spatial"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

type tagFilter struct {
	key    string
	values []string
}

func (f tagFilter) selector() string {
	if len(f.values) == 1 {
		return fmt.Sprintf(`["%s"="%s"]`, f.key, f.values[0])
	}
	return fmt.Sprintf(`["%s"~"^(%s)$"]`, f.key, strings.Join(f.values, "|"))
}

func (f tagFilter) match(tags map[string]string) bool {
	v, ok := tags[f.key]
	if !ok {
		return false
	}
	for _, want := range f.values {
		if v == want {
			return true
		}
	}
	return false
}

var filters = map[model.POIKind][]tagFilter{
	model.POITownhall: {
		{key: "amenity", values: []string{"townhall"}},
	},
	model.POIBeach: {
		{key: "natural", values: []string{"beach"}},
		{key: "leisure", values: []string{"beach"}},
		{key: "tourism", values: []string{"beach"}},
		{key: "landuse", values: []string{"recreation_ground"}},
	},
	model.POIStation: {
		{key: "railway", values: []string{"station", "halt"}},
		{key: "amenity", values: []string{"transport_station"}},
		{key: "public_transport", values: []string{"station"}},
	},
	model.POIHarbor: {
		{key: "amenity", values: []string{"harbor"}},
	},
}

// Query builds the Overpass QL for kind within bbox.
func Query(kind model.POIKind, bbox spatial.BBox, timeout time.Duration) (string, error) {
	fs, ok := filters[kind]
	if !ok {
		return "", eris.Errorf("poi: unknown kind %q", kind)
	}
	// Overpass bbox order is south,west,north,east.
	box := fmt.Sprintf("%g,%g,%g,%g", bbox.MinLat, bbox.MinLon, bbox.MaxLat, bbox.MaxLon)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", int(timeout.Seconds()))
	for _, f := range fs {
		for _, el := range []string{"node", "way", "relation"} {
			fmt.Fprintf(&b, "  %s%s(%s);\n", el, f.selector(), box)
		}
	}
	b.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return b.String(), nil
}

// Fetcher runs POI queries against an Overpass endpoint.
type Fetcher struct {
	client  overpass.Client
	timeout time.Duration
}

// NewFetcher creates a Fetcher. maxParallel bounds concurrent queries.
func NewFetcher(endpoint string, maxParallel int, timeout time.Duration) *Fetcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		client:  overpass.NewWithSettings(endpoint, maxParallel, &http.Client{Timeout: timeout}),
		timeout: timeout,
	}
}

// Fetch returns the coordinates of kind's features inside bbox. Ways and
// relations are reduced to the average of their member nodes.
func (f *Fetcher) Fetch(ctx context.Context, kind model.POIKind, bbox spatial.BBox) (model.CoordinateList, error) {
	q, err := Query(kind, bbox, f.timeout)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "poi: query")
	}

	// The client has no context support; the HTTP timeout bounds the call.
	res, err := f.client.Query(q)
	if err != nil {
		return nil, eris.Wrapf(err, "poi: overpass %s query", kind)
	}
	return extract(res, filters[kind]), nil
}

// ForCommune fills every POI set of c, keeping only points inside its
// polygon. A failed kind leaves its set empty.
func (f *Fetcher) ForCommune(ctx context.Context, c *model.Commune) {
	if c.POIs == nil {
		c.POIs = make(map[model.POIKind]model.CoordinateList, len(model.AllPOIKinds))
	}
	if c.Geometry == nil {
		zap.L().Warn("poi: commune without geometry", zap.String("commune", c.Code))
		return
	}
	bbox := spatial.Bounds(c.Geometry)

	for _, kind := range model.AllPOIKinds {
		pts, err := f.Fetch(ctx, kind, bbox)
		if err != nil {
			zap.L().Warn("poi: fetch failed",
				zap.String("commune", c.Code),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			c.POIs[kind] = model.CoordinateList{}
			continue
		}
		c.POIs[kind] = spatial.Filter(pts, c.Geometry)
	}
}

func extract(res overpass.Result, fs []tagFilter) model.CoordinateList {
	matches := func(tags map[string]string) bool {
		for _, f := range fs {
			if f.match(tags) {
				return true
			}
		}
		return false
	}

	var out model.CoordinateList
	for _, n := range res.Nodes {
		if matches(n.Tags) {
			out = appendValid(out, model.Coordinate{Lat: n.Lat, Lon: n.Lon})
		}
	}
	for _, w := range res.Ways {
		if matches(w.Tags) {
			if c, ok := average(w.Nodes); ok {
				out = appendValid(out, c)
			}
		}
	}
	for _, r := range res.Relations {
		if !matches(r.Tags) {
			continue
		}
		var nodes []*overpass.Node
		for _, m := range r.Members {
			switch {
			case m.Node != nil:
				nodes = append(nodes, m.Node)
			case m.Way != nil:
				nodes = append(nodes, m.Way.Nodes...)
			}
		}
		if c, ok := average(nodes); ok {
			out = appendValid(out, c)
		}
	}

	// Result maps have no order; sort so "first" is stable across runs.
	slices.SortFunc(out, func(a, b model.Coordinate) int {
		if c := cmp.Compare(a.Lat, b.Lat); c != 0 {
			return c
		}
		return cmp.Compare(a.Lon, b.Lon)
	})
	return out
}

func average(nodes []*overpass.Node) (model.Coordinate, bool) {
	var lat, lon float64
	var n int
	for _, node := range nodes {
		if node == nil || (node.Lat == 0 && node.Lon == 0) {
			continue
		}
		lat += node.Lat
		lon += node.Lon
		n++
	}
	if n == 0 {
		return model.Coordinate{}, false
	}
	return model.Coordinate{Lat: lat / float64(n), Lon: lon / float64(n)}, true
}

func appendValid(l model.CoordinateList, c model.Coordinate) model.CoordinateList {
	if !c.Valid() {
		return l
	}
	return append(l, c)
}
