package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
	"gift-marketplace/internal/payment/gateway"
	"gift-marketplace/internal/payment/reconcile"
)

// Mock implementations
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockStore) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderItem), args.Error(1)
}

func (m *MockStore) MarkOrderPaid(ctx context.Context, id, method, ref string) (bool, error) {
	args := m.Called(id, method, ref)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) MarkOrderStatusIfPending(ctx context.Context, id, status string) (bool, error) {
	args := m.Called(id, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) BackfillPaymentDetails(ctx context.Context, id, method, ref string) error {
	args := m.Called(id, method, ref)
	return args.Error(0)
}

func (m *MockStore) AppendGatewayLog(ctx context.Context, orderID, stage, maskedToken, detail string) error {
	args := m.Called(orderID, stage, maskedToken, detail)
	return args.Error(0)
}

func (m *MockStore) InsertPaymentRecord(ctx context.Context, record models.PaymentRecord) error {
	args := m.Called(record)
	return args.Error(0)
}

func (m *MockStore) ApplyPaidStockEffects(ctx context.Context, items []models.OrderItem) error {
	args := m.Called(items)
	return args.Error(0)
}

func (m *MockStore) IncrementPromoUsage(ctx context.Context, orderID string) error {
	args := m.Called(orderID)
	return args.Error(0)
}

func (m *MockStore) GetRegistryItems(ctx context.Context, ids []string) ([]models.RegistryItem, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RegistryItem), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PublishOrderPaid(ord models.Order) error {
	args := m.Called(ord)
	return args.Error(0)
}

func (m *MockNotifier) PublishRegistryGiftPurchased(item models.RegistryItem, ord models.Order, quantity int) error {
	args := m.Called(item, ord, quantity)
	return args.Error(0)
}

type MockShipper struct {
	mock.Mock
}

func (m *MockShipper) CreateShipment(ctx context.Context, ord models.Order, items []models.OrderItem) (*models.Shipment, error) {
	args := m.Called(ord, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Shipment), args.Error(1)
}

func pendingOrder() *models.Order {
	return &models.Order{
		ID:        "order-1",
		OrderCode: "GM-ABCD1234",
		Status:    models.StatusPending,
		Total:     120.00,
		Currency:  "USD",
	}
}

func paidResult() gateway.QueryResult {
	return gateway.QueryResult{
		Result:        gateway.ResultPaid,
		ResultText:    "approved",
		TransactionID: "txn-7",
		Amount:        120.00,
		Currency:      "USD",
		Token:         "tok-abcdef",
		PaymentMethod: "visa",
	}
}

func newReconciler(store *MockStore, notifier *MockNotifier, shipper *MockShipper) *reconcile.Reconciler {
	// A typed nil would not be seen as nil through the interface.
	if shipper == nil {
		return reconcile.NewReconciler(store, notifier, nil, logger.NewLogger(), "hostedpay")
	}
	return reconcile.NewReconciler(store, notifier, shipper, logger.NewLogger(), "hostedpay")
}

func TestProcess_PaidFlipRunsSideEffectsOnce(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)
	shipper := new(MockShipper)

	items := []models.OrderItem{
		{ID: "item-1", OrderID: "order-1", ProductID: "prod-1", Quantity: 2, RegistryItemID: "reg-1", Shippable: true, WeightKg: 1.5},
	}
	registryItems := []models.RegistryItem{
		{ID: "reg-1", RegistryID: "registry-1", OwnerUserID: "owner-1", ProductID: "prod-1"},
	}

	ord := pendingOrder()
	ord.PromoCode = "SAVE20"

	store.On("GetOrderByID", "order-1").Return(ord, nil)
	store.On("MarkOrderPaid", "order-1", "visa", "txn-7").Return(true, nil)
	store.On("InsertPaymentRecord", mock.AnythingOfType("models.PaymentRecord")).Return(nil)
	store.On("GetOrderItems", "order-1").Return(items, nil)
	store.On("ApplyPaidStockEffects", items).Return(nil)
	store.On("IncrementPromoUsage", "order-1").Return(nil)
	store.On("GetRegistryItems", []string{"reg-1"}).Return(registryItems, nil)
	store.On("AppendGatewayLog", "order-1", "paid", "...cdef", "approved").Return(nil)
	shipper.On("CreateShipment", mock.AnythingOfType("models.Order"), items).
		Return(&models.Shipment{ID: "ship-1", OrderID: "order-1", TrackingNumber: "CN-1001"}, nil)
	notifier.On("PublishOrderPaid", mock.AnythingOfType("models.Order")).Return(nil)
	notifier.On("PublishRegistryGiftPurchased", registryItems[0], mock.AnythingOfType("models.Order"), 2).Return(nil)

	outcome := newReconciler(store, notifier, shipper).Process(context.Background(), "order-1", paidResult())

	assert.Equal(t, reconcile.OutcomePaid, outcome)
	store.AssertExpectations(t)
	notifier.AssertExpectations(t)
	shipper.AssertNumberOfCalls(t, "CreateShipment", 1)
}

func TestProcess_SecondPaidDeliveryOnlyBackfills(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)
	shipper := new(MockShipper)

	paid := pendingOrder()
	paid.Status = models.StatusPaid
	paid.PaymentRef = ""

	store.On("GetOrderByID", "order-1").Return(paid, nil)
	store.On("BackfillPaymentDetails", "order-1", "visa", "txn-7").Return(nil)
	store.On("AppendGatewayLog", "order-1", "terminal-reconciliation", "...cdef", "approved").Return(nil)

	outcome := newReconciler(store, notifier, shipper).Process(context.Background(), "order-1", paidResult())

	assert.Equal(t, reconcile.OutcomeTerminal, outcome)
	store.AssertNotCalled(t, "MarkOrderPaid", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ApplyPaidStockEffects", mock.Anything)
	store.AssertNotCalled(t, "IncrementPromoUsage", mock.Anything)
	notifier.AssertNotCalled(t, "PublishOrderPaid", mock.Anything)
	shipper.AssertNotCalled(t, "CreateShipment", mock.Anything, mock.Anything)
}

func TestProcess_RacingDeliveryLosesFlip(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)

	// Status still read as pending, but the conditional update reports zero
	// rows: another delivery flipped it in between.
	store.On("GetOrderByID", "order-1").Return(pendingOrder(), nil)
	store.On("MarkOrderPaid", "order-1", "visa", "txn-7").Return(false, nil)
	store.On("BackfillPaymentDetails", "order-1", "visa", "txn-7").Return(nil)
	store.On("AppendGatewayLog", "order-1", "terminal-reconciliation", "...cdef", "approved").Return(nil)

	outcome := newReconciler(store, notifier, nil).Process(context.Background(), "order-1", paidResult())

	assert.Equal(t, reconcile.OutcomeTerminal, outcome)
	store.AssertNotCalled(t, "ApplyPaidStockEffects", mock.Anything)
	notifier.AssertNotCalled(t, "PublishOrderPaid", mock.Anything)
}

func TestProcess_AmountMismatchDowngradesToPending(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)

	res := paidResult()
	res.Amount = 60.00

	store.On("GetOrderByID", "order-1").Return(pendingOrder(), nil)
	store.On("AppendGatewayLog", "order-1", "amount-mismatch", "...cdef", mock.AnythingOfType("string")).Return(nil)
	store.On("AppendGatewayLog", "order-1", "ignored", "...cdef", "no new information").Return(nil)

	outcome := newReconciler(store, notifier, nil).Process(context.Background(), "order-1", res)

	assert.Equal(t, reconcile.OutcomeIgnored, outcome)
	store.AssertNotCalled(t, "MarkOrderPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_DeclinedMovesPendingOrder(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)

	res := paidResult()
	res.Result = gateway.ResultDeclined
	res.ResultText = "card declined"

	store.On("GetOrderByID", "order-1").Return(pendingOrder(), nil)
	store.On("MarkOrderStatusIfPending", "order-1", models.StatusDeclined).Return(true, nil)
	store.On("AppendGatewayLog", "order-1", "updated", "...cdef", models.StatusDeclined).Return(nil)

	outcome := newReconciler(store, notifier, nil).Process(context.Background(), "order-1", res)

	assert.Equal(t, reconcile.OutcomeUpdated, outcome)
	store.AssertNotCalled(t, "ApplyPaidStockEffects", mock.Anything)
}

func TestProcess_PendingResultIsIgnored(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)

	res := paidResult()
	res.Result = gateway.ResultPending
	res.ResultText = "processing"

	store.On("GetOrderByID", "order-1").Return(pendingOrder(), nil)
	store.On("AppendGatewayLog", "order-1", "ignored", "...cdef", "no new information").Return(nil)

	outcome := newReconciler(store, notifier, nil).Process(context.Background(), "order-1", res)

	assert.Equal(t, reconcile.OutcomeIgnored, outcome)
}

func TestProcess_UnknownOrder(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)

	store.On("GetOrderByID", "missing").Return(nil, assert.AnError)

	outcome := newReconciler(store, notifier, nil).Process(context.Background(), "missing", paidResult())

	assert.Equal(t, reconcile.OutcomeError, outcome)
}
