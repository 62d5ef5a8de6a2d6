package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-core/internal/models"
	"storefront-core/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	req   *service.CreateOrderRequest
	order *models.Order
	err   error
}

func (f *fakeSubmitter) CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.Order, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	if f.order == nil {
		f.order = &models.Order{ID: "order-1", Status: models.StatusPending}
	}
	return f.order, nil
}

type fakeGateway struct {
	createdAmount int64
	captured      string
	createErr     error
	captureErr    error
}

func (f *fakeGateway) CreateGatewayOrder(ctx context.Context, amount int64, currency string) (string, error) {
	f.createdAmount = amount
	if f.createErr != nil {
		return "", f.createErr
	}
	return "GW-1", nil
}

func (f *fakeGateway) CaptureGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.PaymentReceipt, error) {
	f.captured = gatewayOrderID
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return &models.PaymentReceipt{
		ExternalID: gatewayOrderID,
		Status:     "COMPLETED",
		CapturedAt: time.Now(),
	}, nil
}

func cartItems() []Item {
	return []Item{
		{ProductID: 1, Quantity: 2, UnitPrice: 1000},
		{ProductID: 2, Quantity: 1, UnitPrice: 2500},
	}
}

func testAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Street:    "Av. Reforma",
		ExtNumber: "100",
		City:      "CDMX",
		State:     "CDMX",
		ZipCode:   "06600",
		Country:   "MX",
	}
}

func TestNewRejectsEmptyCart(t *testing.T) {
	_, err := New(nil, 0, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestNewRejectsNonPositiveQuantity(t *testing.T) {
	_, err := New([]Item{{ProductID: 1, Quantity: 0, UnitPrice: 100}}, 0, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestFlowAdvancesThroughSteps(t *testing.T) {
	flow, err := New(cartItems(), 500, 160)
	require.NoError(t, err)
	assert.Equal(t, StepAddress, flow.Step())

	require.NoError(t, flow.SetAddress(testAddress()))
	assert.Equal(t, StepPayment, flow.Step())

	require.NoError(t, flow.SelectPaymentMethod(models.PaymentMethodCash))
	assert.Equal(t, StepReview, flow.Step())

	assert.Equal(t, int64(5160), flow.TotalPrice())
}

func TestFlowRejectsOutOfOrderSteps(t *testing.T) {
	flow, err := New(cartItems(), 0, 0)
	require.NoError(t, err)

	// Payment method before the address step.
	assert.ErrorIs(t, flow.SelectPaymentMethod(models.PaymentMethodCash), models.ErrValidation)

	require.NoError(t, flow.SetAddress(testAddress()))

	// Address twice.
	assert.ErrorIs(t, flow.SetAddress(testAddress()), models.ErrValidation)

	// Unknown method.
	assert.ErrorIs(t, flow.SelectPaymentMethod("barter"), models.ErrValidation)
}

func TestFlowBack(t *testing.T) {
	flow, err := New(cartItems(), 0, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, flow.Back(), models.ErrValidation)

	require.NoError(t, flow.SetAddress(testAddress()))
	require.NoError(t, flow.SelectPaymentMethod(models.PaymentMethodCash))

	require.NoError(t, flow.Back())
	assert.Equal(t, StepPayment, flow.Step())
	require.NoError(t, flow.Back())
	assert.Equal(t, StepAddress, flow.Step())
}

func TestSubmitRequiresReview(t *testing.T) {
	flow, err := New(cartItems(), 0, 0)
	require.NoError(t, err)

	_, err = flow.Submit(context.Background(), &fakeSubmitter{}, &fakeGateway{}, "user-1", "u@example.com", "MXN")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSubmitCashCreatesUnpaidOrder(t *testing.T) {
	flow, err := New(cartItems(), 500, 160)
	require.NoError(t, err)
	require.NoError(t, flow.SetAddress(testAddress()))
	require.NoError(t, flow.SelectPaymentMethod(models.PaymentMethodCash))

	submitter := &fakeSubmitter{}
	gateway := &fakeGateway{}

	_, err = flow.Submit(context.Background(), submitter, gateway, "user-1", "u@example.com", "MXN")
	require.NoError(t, err)

	require.NotNil(t, submitter.req)
	assert.False(t, submitter.req.Paid)
	assert.Nil(t, submitter.req.Receipt)
	assert.Equal(t, models.PaymentMethodCash, submitter.req.PaymentMethod)
	assert.Equal(t, int64(5160), submitter.req.TotalPrice)
	assert.Len(t, submitter.req.Items, 2)

	// Cash never touches the gateway.
	assert.Zero(t, gateway.createdAmount)
	assert.Empty(t, gateway.captured)
}

func TestSubmitPayPalRunsTwoPhaseCapture(t *testing.T) {
	flow, err := New(cartItems(), 500, 160)
	require.NoError(t, err)
	require.NoError(t, flow.SetAddress(testAddress()))
	require.NoError(t, flow.SelectPaymentMethod(models.PaymentMethodPayPal))

	submitter := &fakeSubmitter{}
	gateway := &fakeGateway{}

	_, err = flow.Submit(context.Background(), submitter, gateway, "user-1", "u@example.com", "MXN")
	require.NoError(t, err)

	assert.Equal(t, int64(5160), gateway.createdAmount)
	assert.Equal(t, "GW-1", gateway.captured)

	require.NotNil(t, submitter.req)
	assert.True(t, submitter.req.Paid)
	require.NotNil(t, submitter.req.Receipt)
	assert.Equal(t, "GW-1", submitter.req.Receipt.ExternalID)
}

func TestSubmitCaptureFailureCreatesNothing(t *testing.T) {
	flow, err := New(cartItems(), 0, 0)
	require.NoError(t, err)
	require.NoError(t, flow.SetAddress(testAddress()))
	require.NoError(t, flow.SelectPaymentMethod(models.PaymentMethodPayPal))

	submitter := &fakeSubmitter{}
	gateway := &fakeGateway{captureErr: models.ErrPaymentCapture}

	_, err = flow.Submit(context.Background(), submitter, gateway, "user-1", "u@example.com", "MXN")
	assert.ErrorIs(t, err, models.ErrPaymentCapture)
	assert.Nil(t, submitter.req)
}

func TestSubmitTimeoutSurfacesUnknownOutcome(t *testing.T) {
	flow, err := New(cartItems(), 0, 0)
	require.NoError(t, err)
	require.NoError(t, flow.SetAddress(testAddress()))
	require.NoError(t, flow.SelectPaymentMethod(models.PaymentMethodPayPal))

	submitter := &fakeSubmitter{}
	gateway := &fakeGateway{captureErr: models.ErrPaymentOutcomeUnknown}

	_, err = flow.Submit(context.Background(), submitter, gateway, "user-1", "u@example.com", "MXN")
	assert.True(t, errors.Is(err, models.ErrPaymentOutcomeUnknown))
	assert.Nil(t, submitter.req)
}

func TestCancelDiscardsFlow(t *testing.T) {
	flow, err := New(cartItems(), 500, 160)
	require.NoError(t, err)
	require.NoError(t, flow.SetAddress(testAddress()))

	flow.Cancel()
	assert.Zero(t, flow.TotalPrice())
	assert.NotEqual(t, StepReview, flow.Step())
}
