package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"gift-marketplace/internal/auth"
	"gift-marketplace/internal/cart"
	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/mailin"
	"gift-marketplace/internal/models"
	"gift-marketplace/internal/order"
	"gift-marketplace/internal/promo"
	"gift-marketplace/internal/shipping"
)

type CheckoutService interface {
	Checkout(ctx context.Context, actor auth.Actor, req order.CheckoutRequest) (*order.CheckoutResult, error)
}

type CartLoader interface {
	Load(ctx context.Context, actor auth.Actor) (*cart.Snapshot, error)
}

type PromoEvaluator interface {
	Evaluate(ctx context.Context, code, scopeVendorID string, items []promo.LineItem, actor auth.Actor) (*promo.Evaluation, error)
}

type OrderStore interface {
	GetOrderByCodeAndEmail(ctx context.Context, code, email string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
}

type ShipmentStore interface {
	GetShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error)
	UpdateShipmentStatus(ctx context.Context, id, status string) error
}

type ShippingService interface {
	Quote(ctx context.Context, city string, weightKg float64, pieces int) (float64, error)
	Zones(ctx context.Context) ([]models.ShippingZone, error)
	Track(ctx context.Context, trackingNumber string) (*shipping.TrackingEvent, error)
}

type EmailPublisher interface {
	PublishInboundEmail(key string, payload interface{}) error
}

// Handler is the public storefront API surface: checkout, promo preview,
// order lookup, shipping info and the inbound-email webhook.
type Handler struct {
	checkout  CheckoutService
	carts     CartLoader
	promos    PromoEvaluator
	orders    OrderStore
	shipments ShipmentStore
	shipping  ShippingService
	emails    EmailPublisher
	logger    *logger.Logger
}

func NewHandler(checkout CheckoutService, carts CartLoader, promos PromoEvaluator, orders OrderStore, shipments ShipmentStore, shippingSvc ShippingService, emails EmailPublisher, log *logger.Logger) *Handler {
	return &Handler{
		checkout:  checkout,
		carts:     carts,
		promos:    promos,
		orders:    orders,
		shipments: shipments,
		shipping:  shippingSvc,
		emails:    emails,
		logger:    log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout", h.Checkout)
	r.Post("/promos/validate", h.ValidatePromo)
	r.Get("/orders/lookup", h.LookupOrder)
	r.Get("/shipping/zones", h.ShippingZones)
	r.Get("/shipping/quote", h.ShippingQuote)
	r.Post("/email/inbound", h.InboundEmail)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromRequest(r)
	if actor.UserID == "" && actor.GuestID == "" {
		writeError(w, http.StatusBadRequest, "a user token or guest id is required")
		return
	}

	var req order.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Contact.Name == "" || req.Contact.Email == "" {
		writeError(w, http.StatusBadRequest, "buyer name and email are required")
		return
	}

	result, err := h.checkout.Checkout(r.Context(), actor, req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrCartEmpty),
		errors.Is(err, order.ErrShippingAddressRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrItemUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case isPromoRejection(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrGatewayRejected):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("API", fmt.Sprintf("checkout failed: %v", err))
		writeError(w, http.StatusInternalServerError, "checkout failed")
	}
}

type validatePromoRequest struct {
	PromoCode string `json:"promo_code"`
}

type validatePromoResponse struct {
	Valid    bool    `json:"valid"`
	Code     string  `json:"code,omitempty"`
	Discount float64 `json:"discount,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// ValidatePromo previews a promo code against the actor's current cart
// without touching any usage counter.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromRequest(r)
	if actor.UserID == "" && actor.GuestID == "" {
		writeError(w, http.StatusBadRequest, "a user token or guest id is required")
		return
	}

	var req validatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PromoCode == "" {
		writeError(w, http.StatusBadRequest, "promo_code is required")
		return
	}

	snapshot, err := h.carts.Load(r.Context(), actor)
	if err != nil {
		h.logger.Error("API", fmt.Sprintf("promo preview cart load failed: %v", err))
		writeError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}
	if len(snapshot.Items) == 0 {
		writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	eval, err := h.promos.Evaluate(r.Context(), req.PromoCode, snapshotVendorID(snapshot), snapshotLines(snapshot), actor)
	if err != nil {
		if isPromoRejection(err) {
			writeJSON(w, http.StatusOK, validatePromoResponse{Valid: false, Reason: err.Error()})
			return
		}
		h.logger.Error("API", fmt.Sprintf("promo preview failed: %v", err))
		writeError(w, http.StatusInternalServerError, "failed to validate promo")
		return
	}

	writeJSON(w, http.StatusOK, validatePromoResponse{
		Valid:    true,
		Code:     eval.Promo.Code,
		Discount: eval.Discount,
	})
}

type orderLookupResponse struct {
	Order      *models.Order      `json:"order"`
	Items      []models.OrderItem `json:"items"`
	Shipment   *models.Shipment   `json:"shipment,omitempty"`
	TrackingQR string             `json:"tracking_qr,omitempty"`
}

// LookupOrder is the public, unauthenticated order lookup: the caller must
// know both the order code and the buyer or gifter email.
func (h *Handler) LookupOrder(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	email := r.URL.Query().Get("email")
	if code == "" || email == "" {
		writeError(w, http.StatusBadRequest, "code and email are required")
		return
	}

	ord, err := h.orders.GetOrderByCodeAndEmail(r.Context(), code, email)
	if err != nil {
		h.logger.Error("API", fmt.Sprintf("order lookup failed: %v", err))
		writeError(w, http.StatusInternalServerError, "order lookup failed")
		return
	}
	if ord == nil {
		// Same response for wrong code and wrong email; no oracle.
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	items, err := h.orders.GetOrderItems(r.Context(), ord.ID)
	if err != nil {
		h.logger.Error("API", fmt.Sprintf("order items lookup failed: %v", err))
		writeError(w, http.StatusInternalServerError, "order lookup failed")
		return
	}

	resp := orderLookupResponse{Order: ord, Items: items}

	shipment, err := h.shipments.GetShipmentByOrderID(r.Context(), ord.ID)
	if err != nil {
		h.logger.Warn("API", fmt.Sprintf("shipment lookup failed for order %s: %v", ord.ID, err))
	}
	if shipment != nil {
		h.refreshShipment(r.Context(), shipment)
		resp.Shipment = shipment
		if shipment.TrackingURL != "" {
			if png, err := qrcode.Encode(shipment.TrackingURL, qrcode.Medium, 256); err == nil {
				resp.TrackingQR = base64.StdEncoding.EncodeToString(png)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// refreshShipment polls the courier for the latest status on read. Failures
// leave the stored status in place.
func (h *Handler) refreshShipment(ctx context.Context, shipment *models.Shipment) {
	if shipment.TrackingNumber == "" {
		return
	}
	event, err := h.shipping.Track(ctx, shipment.TrackingNumber)
	if err != nil {
		h.logger.Warn("API", fmt.Sprintf("courier tracking failed for %s: %v", shipment.TrackingNumber, err))
		return
	}
	if event.Status == shipment.Status {
		return
	}
	shipment.Status = event.Status
	if err := h.shipments.UpdateShipmentStatus(ctx, shipment.ID, event.Status); err != nil {
		h.logger.Warn("API", fmt.Sprintf("failed to store shipment status for %s: %v", shipment.ID, err))
	}
}

func (h *Handler) ShippingZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.shipping.Zones(r.Context())
	if err != nil {
		h.logger.Error("API", fmt.Sprintf("zone listing failed: %v", err))
		writeError(w, http.StatusInternalServerError, "failed to list shipping zones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"zones": zones})
}

func (h *Handler) ShippingQuote(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	weight, err := strconv.ParseFloat(r.URL.Query().Get("weight"), 64)
	if err != nil || weight <= 0 {
		writeError(w, http.StatusBadRequest, "weight must be a positive number")
		return
	}
	pieces, err := strconv.Atoi(r.URL.Query().Get("pieces"))
	if err != nil || pieces <= 0 {
		pieces = 1
	}

	rate, err := h.shipping.Quote(r.Context(), city, weight, pieces)
	if err != nil {
		if errors.Is(err, shipping.ErrUnknownCity) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("API", fmt.Sprintf("shipping quote failed: %v", err))
		writeError(w, http.StatusBadGateway, "shipping rate is not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"city": city, "rate": rate})
}

// InboundEmail normalizes a provider inbound-parse webhook and fans it out to
// Kafka. Unrecognized payloads get a 200 so providers do not retry junk.
func (h *Handler) InboundEmail(w http.ResponseWriter, r *http.Request) {
	msg, err := mailin.Normalize(r)
	if err != nil {
		h.logger.Warn("MAILIN", fmt.Sprintf("dropping inbound email: %v", err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
		return
	}

	if err := h.emails.PublishInboundEmail(msg.To, msg); err != nil {
		h.logger.Error("MAILIN", fmt.Sprintf("failed to publish inbound email from %s: %v", msg.From, err))
		writeError(w, http.StatusInternalServerError, "failed to accept email")
		return
	}
	h.logger.Info("MAILIN", fmt.Sprintf("accepted %s email from %s to %s", msg.Provider, msg.From, msg.To))
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "provider": msg.Provider})
}

// snapshotLines builds evaluator line items straight from the cart snapshot
// for promo preview, before any order assembly happens.
func snapshotLines(snapshot *cart.Snapshot) []promo.LineItem {
	lines := make([]promo.LineItem, len(snapshot.Items))
	for i, it := range snapshot.Items {
		subtotal := models.Round2(it.Product.Price * float64(it.CartItem.Quantity))
		wrapFee := 0.0
		if it.CartItem.GiftWrap {
			wrapFee = models.Round2(it.Product.GiftWrapFee * float64(it.CartItem.Quantity))
		}
		lines[i] = promo.LineItem{
			ProductID:   it.Product.ID,
			CategoryIDs: it.CategoryIDs,
			Subtotal:    subtotal,
			GiftWrapFee: wrapFee,
			Shippable:   it.Product.Shippable,
		}
	}
	return lines
}

func snapshotVendorID(snapshot *cart.Snapshot) string {
	vendorID := ""
	for _, it := range snapshot.Items {
		if vendorID == "" {
			vendorID = it.Product.VendorID
			continue
		}
		if it.Product.VendorID != vendorID {
			return ""
		}
	}
	return vendorID
}

func isPromoRejection(err error) bool {
	return errors.Is(err, promo.ErrCodeNotFound) ||
		errors.Is(err, promo.ErrNotActive) ||
		errors.Is(err, promo.ErrNoEligibleItems) ||
		errors.Is(err, promo.ErrMinSpend) ||
		errors.Is(err, promo.ErrUsageLimit) ||
		errors.Is(err, promo.ErrPerUserLimit)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
