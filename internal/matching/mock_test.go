package matching

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/scrape"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Scrape(ctx context.Context, url string, opts scrape.Options) (*scrape.Result, error) {
	args := m.Called(ctx, url, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.Result), args.Error(1)
}

func (m *mockGateway) HealthCheck(ctx context.Context) model.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(model.HealthStatus)
}
