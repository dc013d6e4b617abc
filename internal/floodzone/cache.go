package floodzone

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/model"
)

// TagCache stores flood lookups by point.
type TagCache interface {
	GetFloodTag(ctx context.Context, p model.Coordinate) (*model.FloodTag, error)
	PutFloodTag(ctx context.Context, p model.Coordinate, tag model.FloodTag) error
}

type cachedClassifier struct {
	next  Classifier
	cache TagCache
}

// NewCachedClassifier wraps next with a read-through cache. Failed lookups
// are not stored, so the next run retries them.
func NewCachedClassifier(next Classifier, cache TagCache) Classifier {
	return &cachedClassifier{next: next, cache: cache}
}

func (c *cachedClassifier) Classify(ctx context.Context, p model.Coordinate) model.FloodTag {
	tag, err := c.cache.GetFloodTag(ctx, p)
	if err != nil {
		zap.L().Warn("floodzone: cache read failed", zap.Error(err))
	} else if tag != nil {
		return *tag
	}

	res := c.next.Classify(ctx, p)
	if res.Status == model.FloodFailed {
		return res
	}
	if err := c.cache.PutFloodTag(ctx, p, res); err != nil {
		zap.L().Warn("floodzone: cache write failed", zap.Error(err))
	}
	return res
}
