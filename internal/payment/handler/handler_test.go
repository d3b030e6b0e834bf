package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
	"gift-marketplace/internal/payment/gateway"
	"gift-marketplace/internal/payment/handler"
	"gift-marketplace/internal/payment/reconcile"
)

// stubStore is a minimal in-memory reconcile.Store for handler tests.
type stubStore struct {
	order      *models.Order
	paidCalls  int
	lastMethod string
}

func (s *stubStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, assert.AnError
	}
	return s.order, nil
}

func (s *stubStore) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return nil, nil
}

func (s *stubStore) MarkOrderPaid(ctx context.Context, id, method, ref string) (bool, error) {
	s.paidCalls++
	s.lastMethod = method
	first := s.order.Status != models.StatusPaid
	s.order.Status = models.StatusPaid
	return first, nil
}

func (s *stubStore) MarkOrderStatusIfPending(ctx context.Context, id, status string) (bool, error) {
	if s.order.Status != models.StatusPending {
		return false, nil
	}
	s.order.Status = status
	return true, nil
}

func (s *stubStore) BackfillPaymentDetails(ctx context.Context, id, method, ref string) error {
	return nil
}

func (s *stubStore) AppendGatewayLog(ctx context.Context, orderID, stage, maskedToken, detail string) error {
	return nil
}

func (s *stubStore) InsertPaymentRecord(ctx context.Context, record models.PaymentRecord) error {
	return nil
}

func (s *stubStore) ApplyPaidStockEffects(ctx context.Context, items []models.OrderItem) error {
	return nil
}

func (s *stubStore) IncrementPromoUsage(ctx context.Context, orderID string) error {
	return nil
}

func (s *stubStore) GetRegistryItems(ctx context.Context, ids []string) ([]models.RegistryItem, error) {
	return nil, nil
}

type stubQuerier struct {
	result *gateway.QueryResult
	err    error
}

func (s *stubQuerier) Query(ctx context.Context, token string) (*gateway.QueryResult, error) {
	return s.result, s.err
}

func newTestRouter(store *stubStore, querier *stubQuerier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewLogger()
	reconciler := reconcile.NewReconciler(store, nil, nil, log, "hostedpay")
	h := handler.NewHandler(reconciler, querier, log)

	engine := gin.New()
	h.RegisterRoutes(engine.Group("/"))
	return engine
}

func pendingStore() *stubStore {
	return &stubStore{order: &models.Order{
		ID:       "order-1",
		Status:   models.StatusPending,
		Total:    50.00,
		Currency: "USD",
	}}
}

func TestWebhook_PaidDelivery(t *testing.T) {
	store := pendingStore()
	router := newTestRouter(store, &stubQuerier{})

	form := url.Values{}
	form.Set("order-id", "order-1")
	form.Set("result", "1")
	form.Set("result-text", "approved")
	form.Set("transaction-id", "txn-1")
	form.Set("amount", "50.00")
	form.Set("currency", "USD")
	form.Set("token", "tok-abc")
	form.Set("payment-method", "visa")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusPaid, store.order.Status)
	assert.Equal(t, 1, store.paidCalls)
	assert.Equal(t, "visa", store.lastMethod)
}

func TestWebhook_MultipartDelivery(t *testing.T) {
	store := pendingStore()
	router := newTestRouter(store, &stubQuerier{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"order-id":       "order-1",
		"result":         "1",
		"result-text":    "approved",
		"transaction-id": "txn-1",
		"amount":         "50.00",
		"currency":       "USD",
		"token":          "tok-abc",
		"payment-method": "visa",
	}
	for k, v := range fields {
		assert.NoError(t, mw.WriteField(k, v))
	}
	assert.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/webhook", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusPaid, store.order.Status)
	assert.Equal(t, 1, store.paidCalls)
}

func TestWebhook_UnknownOrderStillReturns200(t *testing.T) {
	router := newTestRouter(pendingStore(), &stubQuerier{})

	form := url.Values{}
	form.Set("order-id", "who-is-this")
	form.Set("result", "1")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
}

func TestWebhook_MissingOrderIDReturns200(t *testing.T) {
	router := newTestRouter(pendingStore(), &stubQuerier{})

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallback_QueriesGatewayAndReconciles(t *testing.T) {
	store := pendingStore()
	querier := &stubQuerier{result: &gateway.QueryResult{
		Result:        gateway.ResultPaid,
		ResultText:    "approved",
		TransactionID: "txn-1",
		Amount:        50.00,
		Currency:      "USD",
		Token:         "tok-abc",
		PaymentMethod: "visa",
	}}
	router := newTestRouter(store, querier)

	req := httptest.NewRequest("GET", "/callback?order-id=order-1&token=tok-abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusPaid, store.order.Status)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "paid", body["outcome"])
}

func TestCallback_MissingParams(t *testing.T) {
	router := newTestRouter(pendingStore(), &stubQuerier{})

	req := httptest.NewRequest("GET", "/callback", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_GatewayUnavailable(t *testing.T) {
	router := newTestRouter(pendingStore(), &stubQuerier{err: assert.AnError})

	req := httptest.NewRequest("GET", "/callback?order-id=order-1&token=tok-abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
