package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/pkg/geocode"
)

// --- Geocoder Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, query string) geocode.Result {
	args := m.Called(ctx, query)
	return args.Get(0).(geocode.Result)
}

// --- Classifier Mock ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, p model.Coordinate) model.FloodTag {
	args := m.Called(ctx, p)
	return args.Get(0).(model.FloodTag)
}

// --- POI Fetcher Mock ---

type mockPOIFetcher struct {
	mock.Mock
}

func (m *mockPOIFetcher) ForCommune(ctx context.Context, c *model.Commune) {
	m.Called(ctx, c)
}
