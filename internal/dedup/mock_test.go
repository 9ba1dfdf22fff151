package dedup

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-enrich/internal/model"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetProductByManufacturerSKU(ctx context.Context, sku string) (*model.Product, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *mockStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *mockStore) UpdateProductReviewStatus(ctx context.Context, id string, requiresReview bool, notes string) error {
	args := m.Called(ctx, id, requiresReview, notes)
	return args.Error(0)
}
