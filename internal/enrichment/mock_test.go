package enrichment

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/store"
)

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) MatchProduct(ctx context.Context, product model.Product) (*model.EnrichmentData, error) {
	args := m.Called(ctx, product)
	if fn, ok := args.Get(0).(func(model.Product) (*model.EnrichmentData, error)); ok {
		return fn(product)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EnrichmentData), args.Error(1)
}

type mockHealth struct {
	mock.Mock
}

func (m *mockHealth) HealthCheck(ctx context.Context) model.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(model.HealthStatus)
}

// panickyStore panics on HealthCheck and delegates everything else.
type panickyStore struct {
	store.Store
}

func (panickyStore) HealthCheck(context.Context) model.HealthStatus {
	panic("driver exploded")
}
