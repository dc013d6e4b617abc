package geocode

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchResolve resolves queries keyed by record id with at most the
// configured number of requests in flight. Every key is present in the
// result. One failed lookup never cancels the others.
func (c *Client) BatchResolve(ctx context.Context, queries map[string]string) map[string]Result {
	return BatchResolve(ctx, c, queries, c.concurrency, c.progress)
}

// BatchResolve is the Resolver-generic form of Client.BatchResolve. A nil
// progress callback is allowed.
func BatchResolve(ctx context.Context, r Resolver, queries map[string]string, concurrency int, progress func()) map[string]Result {
	out := make(map[string]Result, len(queries))
	if len(queries) == 0 {
		return out
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(concurrency)

	for key, query := range queries {
		eg.Go(func() error {
			res := r.Resolve(ctx, query)

			mu.Lock()
			out[key] = res
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
