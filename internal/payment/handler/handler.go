package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/payment/gateway"
	"gift-marketplace/internal/payment/reconcile"
)

// GatewayQuerier is the slice of the gateway client the redirect callback
// needs: it only ever polls status by token.
type GatewayQuerier interface {
	Query(ctx context.Context, token string) (*gateway.QueryResult, error)
}

// Handler serves the two gateway-facing endpoints: the server-to-server
// webhook and the buyer redirect callback.
type Handler struct {
	reconciler *reconcile.Reconciler
	gateway    GatewayQuerier
	logger     *logger.Logger
}

func NewHandler(reconciler *reconcile.Reconciler, gw GatewayQuerier, log *logger.Logger) *Handler {
	return &Handler{reconciler: reconciler, gateway: gw, logger: log}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhook", h.Webhook)
	r.GET("/callback", h.Callback)
}

// Webhook receives the gateway's form-encoded payment notification. The
// response is always 200 OK, whatever happened internally, so the gateway
// never retries into a storm against a permanently broken order.
func (h *Handler) Webhook(c *gin.Context) {
	orderID := c.PostForm("order-id")
	if orderID == "" {
		h.logger.Warn("WEBHOOK", "received webhook without order-id")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	res := gateway.QueryResult{
		ResultText:    c.PostForm("result-text"),
		TransactionID: c.PostForm("transaction-id"),
		Currency:      c.PostForm("currency"),
		DateProcessed: c.PostForm("date-processed"),
		Token:         c.PostForm("token"),
		PaymentMethod: c.PostForm("payment-method"),
	}
	res.Result, _ = strconv.Atoi(c.PostForm("result"))
	res.Amount, _ = strconv.ParseFloat(c.PostForm("amount"), 64)

	outcome := h.reconciler.Process(c.Request.Context(), orderID, res)
	h.logger.Info("WEBHOOK", fmt.Sprintf("order %s result=%d outcome=%s", orderID, res.Result, outcome))

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

// Callback handles the buyer's return redirect from the hosted checkout page.
// The redirect only proves the buyer came back, not that payment succeeded,
// so the gateway is queried by token and the result reconciled exactly like
// a webhook delivery.
func (h *Handler) Callback(c *gin.Context) {
	orderID := c.Query("order-id")
	token := c.Query("token")
	if orderID == "" || token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order-id and token are required"})
		return
	}

	res, err := h.gateway.Query(c.Request.Context(), token)
	if err != nil {
		h.logger.Error("CALLBACK", fmt.Sprintf("gateway query failed for order %s: %v", orderID, err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment status is not available yet, please try again"})
		return
	}

	outcome := h.reconciler.Process(c.Request.Context(), orderID, *res)

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"outcome":  string(outcome),
		"result":   res.Result,
		"message":  res.ResultText,
	})
}
