package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderEvent(ctx context.Context, eventType string, o *order.Order) error {
	args := m.Called(ctx, eventType, o)
	return args.Error(0)
}

func TestOrderService_UpdateStatus_InvalidStatus(t *testing.T) {
	repo := new(MockRepository)
	svc := order.NewService(repo, nil, defaultShipping)

	for _, status := range []string{"shipped", "", "cancelled"} {
		_, err := svc.UpdateStatus(context.Background(), "pi_1", status)
		assert.ErrorIs(t, err, order.ErrInvalidStatus, "status %q", status)
	}

	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_UpdateStatus_NoStateChangeOnInvalid(t *testing.T) {
	repo := order.NewMemoryRepository()
	require.NoError(t, repo.Insert(context.Background(), newTestOrder("pi_1", "10.00", order.StatusOrdered, false, baseTime)))
	svc := order.NewService(repo, nil, defaultShipping)

	_, err := svc.UpdateStatus(context.Background(), "pi_1", "returned")
	require.ErrorIs(t, err, order.ErrInvalidStatus)

	got, err := repo.Get(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusOrdered, got.OrderStatus)
	assert.Nil(t, got.StatusUpdatedAt)
}

func TestOrderService_UpdateStatus_NotFound(t *testing.T) {
	repo := new(MockRepository)
	svc := order.NewService(repo, nil, defaultShipping)

	repo.On("UpdateStatus", mock.Anything, "pi_missing", order.StatusDelivered, mock.Anything).
		Return(nil, order.ErrOrderNotFound).
		Once()

	_, err := svc.UpdateStatus(context.Background(), "pi_missing", "delivered")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	repo.AssertExpectations(t)
}

func TestOrderService_UpdateStatus_SuccessPublishesEvent(t *testing.T) {
	repo := order.NewMemoryRepository()
	require.NoError(t, repo.Insert(context.Background(), newTestOrder("pi_1", "10.00", order.StatusDelivered, false, baseTime)))
	publisher := new(MockPublisher)
	svc := order.NewService(repo, publisher, defaultShipping)

	publisher.On("PublishOrderEvent", mock.Anything, order.EventOrderStatusUpdated, mock.MatchedBy(func(o *order.Order) bool {
		return o.OrderID == "pi_1" && o.OrderStatus == order.StatusOrdered
	})).Return(errors.New("broker down")).Once()

	// назад по статусам тоже можно
	updated, err := svc.UpdateStatus(context.Background(), "pi_1", "ORDERED")
	require.NoError(t, err, "publisher failure must not fail the update")
	assert.Equal(t, order.StatusOrdered, updated.OrderStatus)
	assert.NotNil(t, updated.StatusUpdatedAt)
	publisher.AssertExpectations(t)
}

func TestOrderService_ListOrders_MetricsDefaultToLiveOrders(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newTestOrder("pi_live", "40.00", order.StatusOrdered, false, baseTime)))
	require.NoError(t, repo.Insert(ctx, newTestOrder("pi_test", "1000.00", order.StatusOrdered, true, baseTime)))
	svc := order.NewService(repo, nil, defaultShipping)

	result, err := svc.ListOrders(ctx, order.Filter{}, true)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total, "listing returns test and live orders")
	require.NotNil(t, result.Metrics)
	assert.Equal(t, 1, result.Metrics.TotalOrders)
	assert.Equal(t, "40.00", result.Metrics.TotalRevenue.StringFixed(2))

	testMode := true
	result, err = svc.ListOrders(ctx, order.Filter{TestMode: &testMode}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "1000.00", result.Metrics.TotalRevenue.StringFixed(2))
}

func TestOrderService_ListOrders_MetricsIgnoreStatusFilter(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newTestOrder("pi_ordered", "10.00", order.StatusOrdered, false, baseTime)))
	require.NoError(t, repo.Insert(ctx, newTestOrder("pi_couriered", "20.00", order.StatusCouriered, false, baseTime)))
	require.NoError(t, repo.Insert(ctx, newTestOrder("pi_delivered", "30.00", order.StatusDelivered, false, baseTime)))
	svc := order.NewService(repo, nil, defaultShipping)

	result, err := svc.ListOrders(ctx, order.Filter{OrderStatus: order.StatusOrdered}, true)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total, "listing honours the status filter")
	require.NotNil(t, result.Metrics)
	assert.Equal(t, 3, result.Metrics.TotalOrders)
	assert.Equal(t, "60.00", result.Metrics.TotalRevenue.StringFixed(2))
	assert.Equal(t, order.StatusCounts{Ordered: 1, Couriered: 1, Delivered: 1}, result.Metrics.StatusCounts)

	result, err = svc.ListOrders(ctx, order.Filter{OrderID: "pi_delivered"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 3, result.Metrics.TotalOrders)
}

func TestOrderService_ListOrders_WithoutMetrics(t *testing.T) {
	repo := new(MockRepository)
	svc := order.NewService(repo, nil, defaultShipping)

	repo.On("Query", mock.Anything, order.Filter{Limit: order.DefaultLimit}).
		Return(&order.Page{Orders: []order.Order{}, Limit: order.DefaultLimit}, nil).
		Once()

	result, err := svc.ListOrders(context.Background(), order.Filter{}, false)
	require.NoError(t, err)
	assert.Nil(t, result.Metrics)
	repo.AssertNotCalled(t, "Metrics", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestOrderService_ListOrders_QueryError(t *testing.T) {
	repo := new(MockRepository)
	svc := order.NewService(repo, nil, defaultShipping)
	repo.On("Query", mock.Anything, mock.Anything).Return(nil, errConnRefused).Once()

	_, err := svc.ListOrders(context.Background(), order.Filter{}, false)
	assert.ErrorIs(t, err, errConnRefused)
}

func TestOrderService_GetOrder(t *testing.T) {
	repo := order.NewMemoryRepository()
	require.NoError(t, repo.Insert(context.Background(), newTestOrder("pi_1", "10.00", order.StatusOrdered, false, baseTime)))
	svc := order.NewService(repo, nil, defaultShipping)

	got, err := svc.GetOrder(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", got.OrderID)

	_, err = svc.GetOrder(context.Background(), "pi_2")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderService_IngestOrder(t *testing.T) {
	repo := order.NewMemoryRepository()
	publisher := new(MockPublisher)
	svc := order.NewService(repo, publisher, defaultShipping)
	ctx := context.Background()

	rec := order.Record{OrderID: "pi_ingest", CustomerEmail: "a@b.c"}
	publisher.On("PublishOrderEvent", mock.Anything, order.EventOrderCreated, mock.AnythingOfType("*order.Order")).Return(nil).Once()

	o, err := svc.IngestOrder(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "pi_ingest", o.OrderID)

	_, err = svc.IngestOrder(ctx, rec)
	assert.ErrorIs(t, err, order.ErrDuplicateOrder)

	_, err = svc.IngestOrder(ctx, order.Record{OrderID: "pi_no_email"})
	assert.ErrorIs(t, err, order.ErrMissingField)

	publisher.AssertExpectations(t)
}
