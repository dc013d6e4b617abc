// Package floodzone tags coordinates with flood-risk zone membership, either
// through the remote zoning API or against a local TRI polygon layer.
package floodzone

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dvf-flood/internal/model"
)

// Classifier returns the flood tag of one point. Implementations absorb
// their own failures into a Failed tag.
type Classifier interface {
	Classify(ctx context.Context, p model.Coordinate) model.FloodTag
}

// Batch classifies points keyed by record id with at most concurrency calls
// in flight. Invalid coordinates are tagged Failed without a call.
func Batch(ctx context.Context, c Classifier, points map[string]model.Coordinate, concurrency int) map[string]model.FloodTag {
	return BatchWithProgress(ctx, c, points, concurrency, nil)
}

// BatchWithProgress is Batch with a callback run after each point.
func BatchWithProgress(ctx context.Context, c Classifier, points map[string]model.Coordinate, concurrency int, progress func()) map[string]model.FloodTag {
	out := make(map[string]model.FloodTag, len(points))
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(concurrency)

	for key, p := range points {
		eg.Go(func() error {
			tag := model.FailedFloodTag()
			if p.Valid() {
				tag = c.Classify(ctx, p)
			}

			mu.Lock()
			out[key] = tag
			mu.Unlock()

			if progress != nil {
				progress()
			}
			return nil
		})
	}
	_ = eg.Wait()

	return out
}
