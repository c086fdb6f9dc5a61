package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendInvoice(ctx context.Context, o *order.Order) (string, error) {
	args := m.Called(ctx, o)
	return args.String(0), args.Error(1)
}

func (m *MockNotifier) NotifyAdmin(ctx context.Context, o *order.Order) (string, error) {
	args := m.Called(ctx, o)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderEvent(ctx context.Context, eventType string, o *order.Order) error {
	args := m.Called(ctx, eventType, o)
	return args.Error(0)
}

// failingRepository отвечает ошибкой на любую запись.
type failingRepository struct {
	order.Repository
	err error
}

func (r failingRepository) Insert(context.Context, *order.Order) error {
	return r.err
}

var shippingCost = decimal.RequireFromString("10.00")

func options() checkout.Options {
	return checkout.Options{ShippingCost: shippingCost, EffectTimeout: time.Second}
}

func fixtureIntent() *payment.Intent {
	return &payment.Intent{
		ID:           "pi_test123",
		Amount:       10000,
		Currency:     "usd",
		Created:      1714564800,
		ReceiptEmail: "test@example.com",
		Metadata: map[string]string{
			payment.MetadataShipping: `{"firstName":"John","lastName":"Doe","email":"test@example.com","address":"123 Test St","city":"Test City","state":"TS","zipCode":"12345","country":"US"}`,
			payment.MetadataItems:    `[{"id":"1","name":"Product 1","price":"$50.00","quantity":2}]`,
		},
	}
}

func happyNotifier() *MockNotifier {
	n := new(MockNotifier)
	n.On("SendInvoice", mock.Anything, mock.Anything).Return("email_invoice", nil)
	n.On("NotifyAdmin", mock.Anything, mock.Anything).Return("email_admin", nil)
	return n
}

func TestWorkflow_ProcessSucceededPayment_ReconcilesProviderAmount(t *testing.T) {
	repo := order.NewMemoryRepository()
	notifier := happyNotifier()
	w := checkout.NewWorkflow(notifier, repo, nil, options())

	result := w.ProcessSucceededPayment(context.Background(), fixtureIntent())
	require.True(t, result.Success)
	require.NoError(t, result.Error)

	o := result.Order
	assert.Equal(t, "pi_test123", result.OrderID)
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, decimal.RequireFromString("10.00").Equal(o.ShippingCost))
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Total), "total follows provider amount, got %s", o.Total)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], order.ErrTotalMismatch.Error())

	assert.Equal(t, "John Doe", o.CustomerName)
	assert.Equal(t, "test@example.com", o.CustomerEmail)
	assert.Equal(t, order.StatusOrdered, o.OrderStatus)
	assert.Equal(t, order.PaymentSucceeded, o.PaymentStatus)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.Equal(t, time.Unix(1714564800, 0).UTC(), o.CreatedAt)
	assert.False(t, o.IsTestMode)

	stored, err := repo.Get(context.Background(), "pi_test123")
	require.NoError(t, err)
	assert.Equal(t, "Product 1", stored.Items[0].Name)

	require.Len(t, result.Effects, 3)
	assert.Empty(t, result.Effects.Failed())
	invoice, ok := result.Effects.Outcome(checkout.EffectInvoice)
	require.True(t, ok)
	assert.Equal(t, "email_invoice", invoice.Ref)
	notifier.AssertExpectations(t)
}

func TestWorkflow_ProcessSucceededPayment_ConsistentTotals(t *testing.T) {
	w := checkout.NewWorkflow(happyNotifier(), order.NewMemoryRepository(), nil, options())

	intent := fixtureIntent()
	intent.Amount = 11000

	result := w.ProcessSucceededPayment(context.Background(), intent)
	require.True(t, result.Success)
	assert.Empty(t, result.Warnings)
	assert.True(t, decimal.RequireFromString("110.00").Equal(result.Order.Total))
}

func TestWorkflow_ProcessSucceededPayment_Malformed(t *testing.T) {
	notifier := new(MockNotifier)
	w := checkout.NewWorkflow(notifier, order.NewMemoryRepository(), nil, options())

	tests := []struct {
		name   string
		intent *payment.Intent
	}{
		{name: "nil intent", intent: nil},
		{name: "missing id", intent: &payment.Intent{Amount: 100}},
		{name: "zero amount", intent: &payment.Intent{ID: "pi_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := w.ProcessSucceededPayment(context.Background(), tt.intent)
			assert.False(t, result.Success)
			assert.ErrorIs(t, result.Error, checkout.ErrMalformedPaymentPayload)
			assert.Nil(t, result.Order)
		})
	}
	notifier.AssertNotCalled(t, "SendInvoice", mock.Anything, mock.Anything)
}

func TestWorkflow_ProcessSucceededPayment_EmptyMetadata(t *testing.T) {
	w := checkout.NewWorkflow(happyNotifier(), order.NewMemoryRepository(), nil, options())

	result := w.ProcessSucceededPayment(context.Background(), &payment.Intent{ID: "pi_empty", Amount: 1000})
	require.True(t, result.Success)

	assert.Nil(t, result.Order.Shipping)
	assert.NotNil(t, result.Order.Items)
	assert.Empty(t, result.Order.Items)
	assert.Equal(t, "Customer", result.Order.CustomerName)
	assert.Equal(t, "usd", result.Order.Currency)
}

func TestWorkflow_ProcessSucceededPayment_BadMetadataIsWarning(t *testing.T) {
	w := checkout.NewWorkflow(happyNotifier(), order.NewMemoryRepository(), nil, options())

	intent := fixtureIntent()
	intent.Metadata[payment.MetadataItems] = `not json`
	intent.Metadata[payment.MetadataShipping] = `{broken`

	result := w.ProcessSucceededPayment(context.Background(), intent)
	require.True(t, result.Success)
	assert.Nil(t, result.Order.Shipping)
	assert.Empty(t, result.Order.Items)
	assert.GreaterOrEqual(t, len(result.Warnings), 2)
}

func TestWorkflow_ProcessSucceededPayment_TestModeFromMetadata(t *testing.T) {
	w := checkout.NewWorkflow(happyNotifier(), order.NewMemoryRepository(), nil, options())

	intent := fixtureIntent()
	intent.Metadata[payment.MetadataTestMode] = "true"

	result := w.ProcessSucceededPayment(context.Background(), intent)
	require.True(t, result.Success)
	assert.True(t, result.Order.IsTestMode)
}

func TestWorkflow_ProcessSucceededPayment_PartialFailures(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("SendInvoice", mock.Anything, mock.Anything).Return("", errors.New("resend: 500")).Once()
	notifier.On("NotifyAdmin", mock.Anything, mock.Anything).Return("", notify.ErrAdminEmailNotConfigured).Once()

	repo := failingRepository{Repository: order.NewMemoryRepository(), err: errors.New("disk full")}
	w := checkout.NewWorkflow(notifier, repo, nil, options())

	result := w.ProcessSucceededPayment(context.Background(), fixtureIntent())
	require.True(t, result.Success, "side effect failures never fail the workflow")

	failed := result.Effects.Failed()
	require.Len(t, failed, 2)

	invoice, _ := result.Effects.Outcome(checkout.EffectInvoice)
	assert.False(t, invoice.OK)
	assert.EqualError(t, invoice.Error, "resend: 500")

	admin, _ := result.Effects.Outcome(checkout.EffectAdminNotification)
	assert.True(t, admin.Skipped)
	assert.ErrorIs(t, admin.Error, notify.ErrAdminEmailNotConfigured)

	persistence, _ := result.Effects.Outcome(checkout.EffectPersistence)
	assert.False(t, persistence.OK)
	assert.EqualError(t, persistence.Error, "disk full")
	notifier.AssertExpectations(t)
}

func TestWorkflow_ProcessSucceededPayment_DuplicateDelivery(t *testing.T) {
	repo := order.NewMemoryRepository()
	w := checkout.NewWorkflow(happyNotifier(), repo, nil, options())

	first := w.ProcessSucceededPayment(context.Background(), fixtureIntent())
	second := w.ProcessSucceededPayment(context.Background(), fixtureIntent())
	require.True(t, first.Success)
	require.True(t, second.Success)

	persistence, _ := second.Effects.Outcome(checkout.EffectPersistence)
	assert.True(t, persistence.OK)
	assert.True(t, persistence.Duplicate)

	page, err := repo.Query(context.Background(), order.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestWorkflow_ProcessSucceededPayment_EffectTimeout(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("SendInvoice", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).Once()
	notifier.On("NotifyAdmin", mock.Anything, mock.Anything).Return("email_admin", nil).Once()

	opts := options()
	opts.EffectTimeout = 20 * time.Millisecond
	w := checkout.NewWorkflow(notifier, order.NewMemoryRepository(), nil, opts)

	result := w.ProcessSucceededPayment(context.Background(), fixtureIntent())
	require.True(t, result.Success)

	invoice, _ := result.Effects.Outcome(checkout.EffectInvoice)
	assert.ErrorIs(t, invoice.Error, context.DeadlineExceeded)
	admin, _ := result.Effects.Outcome(checkout.EffectAdminNotification)
	assert.True(t, admin.OK)
}

func TestWorkflow_ProcessSucceededPayment_PublishesEvent(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishOrderEvent", mock.Anything, order.EventOrderCreated, mock.MatchedBy(func(o *order.Order) bool {
		return o.OrderID == "pi_test123"
	})).Return(nil).Once()

	w := checkout.NewWorkflow(happyNotifier(), order.NewMemoryRepository(), publisher, options())

	result := w.ProcessSucceededPayment(context.Background(), fixtureIntent())
	require.True(t, result.Success)
	require.Len(t, result.Effects, 4)

	events, ok := result.Effects.Outcome(checkout.EffectEvents)
	require.True(t, ok)
	assert.True(t, events.OK)
	publisher.AssertExpectations(t)
}

func TestWorkflow_ProcessSucceededPayment_NoNotifier(t *testing.T) {
	w := checkout.NewWorkflow(nil, order.NewMemoryRepository(), nil, options())

	result := w.ProcessSucceededPayment(context.Background(), fixtureIntent())
	require.True(t, result.Success)

	invoice, _ := result.Effects.Outcome(checkout.EffectInvoice)
	assert.True(t, invoice.Skipped)
	assert.Empty(t, result.Effects.Failed())
}

func TestWorkflow_ProcessFailedPayment(t *testing.T) {
	repo := order.NewMemoryRepository()
	w := checkout.NewWorkflow(nil, repo, nil, options())

	result := w.ProcessFailedPayment(context.Background(), nil)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, checkout.ErrMalformedPaymentPayload)

	result = w.ProcessFailedPayment(context.Background(), &payment.Intent{
		ID:               "pi_declined",
		Amount:           500,
		LastPaymentError: &payment.PaymentError{Code: "card_declined", Message: "Your card was declined."},
	})
	assert.True(t, result.Success)
	assert.Equal(t, "pi_declined", result.OrderID)

	page, err := repo.Query(context.Background(), order.Filter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "failed payments create no order")
}
