package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gift-marketplace/internal/auth"
	"gift-marketplace/internal/cart"
	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
	"gift-marketplace/internal/payment/gateway"
	"gift-marketplace/internal/promo"
)

var (
	ErrCartEmpty               = errors.New("cart is empty")
	ErrShippingAddressRequired = errors.New("shipping address is required for shippable items")
	ErrItemUnavailable         = errors.New("item unavailable")
	ErrGatewayRejected         = errors.New("payment gateway rejected the invoice")
)

type Store interface {
	CreateOrder(ctx context.Context, order models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) error
	SetPaymentToken(ctx context.Context, id, token string) error
	AppendGatewayLog(ctx context.Context, orderID, stage, maskedToken, detail string) error
}

type PromoEvaluator interface {
	Evaluate(ctx context.Context, code, scopeVendorID string, items []promo.LineItem, actor auth.Actor) (*promo.Evaluation, error)
}

type PromoStore interface {
	CreateRedemption(ctx context.Context, redemption models.PromoRedemption) error
}

type Gateway interface {
	Submit(ctx context.Context, inv gateway.Invoice) (*gateway.SubmitResult, error)
}

type ShippingRater interface {
	Quote(ctx context.Context, city string, weightKg float64, pieces int) (float64, error)
}

type CartLoader interface {
	Load(ctx context.Context, actor auth.Actor) (*cart.Snapshot, error)
	Clear(ctx context.Context, snapshot *cart.Snapshot) error
}

type ContactInfo struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	GifterEmail string `json:"gifter_email,omitempty"`
}

type ShippingInfo struct {
	Street string `json:"street"`
	City   string `json:"city"`
}

type CheckoutRequest struct {
	Contact           ContactInfo  `json:"contact"`
	Shipping          ShippingInfo `json:"shipping"`
	PromoCode         string       `json:"promo_code,omitempty"`
	DeviceFingerprint string       `json:"device_fingerprint,omitempty"`
}

type CheckoutResult struct {
	OrderID     string `json:"order_id"`
	OrderCode   string `json:"order_code"`
	Total       float64 `json:"total"`
	Currency    string `json:"currency"`
	CheckoutURL string `json:"checkout_url"`
}

// Service is the single order assembler shared by every checkout entry point
// (cart checkout and registry-gift checkout both funnel through it).
type Service struct {
	store      Store
	carts      CartLoader
	promos     PromoEvaluator
	promoStore PromoStore
	gateway    Gateway
	rater      ShippingRater
	logger     *logger.Logger

	currency      string
	publicBaseURL string
}

func NewService(store Store, carts CartLoader, promos PromoEvaluator, promoStore PromoStore, gw Gateway, rater ShippingRater, log *logger.Logger, currency, publicBaseURL string) *Service {
	return &Service{
		store:         store,
		carts:         carts,
		promos:        promos,
		promoStore:    promoStore,
		gateway:       gw,
		rater:         rater,
		logger:        log,
		currency:      currency,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Checkout converts the actor's active carts into a pending order and submits
// a payment invoice to the gateway. Validation is all-or-nothing: any stale
// product, unverified vendor or stock shortfall aborts before anything is
// written.
func (s *Service) Checkout(ctx context.Context, actor auth.Actor, req CheckoutRequest) (*CheckoutResult, error) {
	snapshot, err := s.carts.Load(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(snapshot.Items) == 0 {
		return nil, ErrCartEmpty
	}

	orderID := uuid.NewString()

	items, totals, err := s.assembleItems(orderID, snapshot)
	if err != nil {
		return nil, err
	}

	// Non-shippable (digital/treat) orders skip the address and the courier.
	shippingFee := 0.0
	if totals.shippablePieces > 0 {
		if req.Shipping.Street == "" || req.Shipping.City == "" {
			return nil, ErrShippingAddressRequired
		}
		shippingFee, err = s.rater.Quote(ctx, req.Shipping.City, totals.weightKg, totals.shippablePieces)
		if err != nil {
			return nil, fmt.Errorf("failed to get shipping rate: %w", err)
		}
		shippingFee = models.Round2(shippingFee)
	}

	var eval *promo.Evaluation
	if req.PromoCode != "" {
		eval, err = s.promos.Evaluate(ctx, req.PromoCode, singleVendorID(snapshot), promoLines(snapshot, items), actor)
		if err != nil {
			return nil, err
		}
		applyDiscounts(items, eval)
	}

	total := shippingFee
	for _, item := range items {
		total = models.Round2(total + item.LineTotal + item.GiftWrapFee)
	}

	ord := models.Order{
		ID:             orderID,
		OrderCode:      newOrderCode(),
		Status:         models.StatusPending,
		Subtotal:       totals.subtotal,
		ShippingFee:    shippingFee,
		GiftWrapFee:    totals.giftWrap,
		Total:          total,
		Currency:       s.currency,
		UserID:         actor.UserID,
		GuestID:        actor.GuestID,
		BuyerName:      req.Contact.Name,
		BuyerEmail:     req.Contact.Email,
		BuyerPhone:     req.Contact.Phone,
		GifterEmail:    req.Contact.GifterEmail,
		ShippingStreet: req.Shipping.Street,
		ShippingCity:   req.Shipping.City,
		CreatedAt:      time.Now(),
	}
	if eval != nil {
		ord.PromoCode = eval.Promo.Code
		ord.PromoDiscount = eval.Discount
	}

	// Checkout is a move, not a copy: the carts are deleted, then the order
	// and its items are written in that reference order.
	if err := s.carts.Clear(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}
	if err := s.store.CreateOrder(ctx, ord); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if err := s.store.CreateOrderItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	s.logger.LogOrder("CREATE", ord.OrderCode, fmt.Sprintf("pending order for %d item(s), total %.2f %s", len(items), total, s.currency))

	submitted, err := s.submitInvoice(ctx, ord, req.Contact)
	if err != nil {
		// The failed order stays behind as an audit trail of the attempt.
		if uerr := s.store.UpdateOrderStatus(ctx, ord.ID, models.StatusFailed); uerr != nil {
			s.logger.Error("ORDER", fmt.Sprintf("failed to mark order %s failed: %v", ord.ID, uerr))
		}
		_ = s.store.AppendGatewayLog(ctx, ord.ID, "submit", "", err.Error())
		return nil, err
	}

	if err := s.store.SetPaymentToken(ctx, ord.ID, submitted.Token); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("failed to store payment token for order %s: %v", ord.ID, err))
	}
	_ = s.store.AppendGatewayLog(ctx, ord.ID, "submit", gateway.MaskToken(submitted.Token), "invoice accepted")

	// The redemption is recorded only once the invoice submission succeeded;
	// an order that never reached the gateway must not consume promo usage.
	if eval != nil {
		redemption := models.PromoRedemption{
			ID:                uuid.NewString(),
			PromoID:           eval.Promo.ID,
			OrderID:           ord.ID,
			UserID:            actor.UserID,
			GuestID:           actor.GuestID,
			Amount:            eval.Discount,
			DeviceFingerprint: req.DeviceFingerprint,
			CreatedAt:         time.Now(),
		}
		if err := s.promoStore.CreateRedemption(ctx, redemption); err != nil {
			s.logger.Error("PROMO", fmt.Sprintf("failed to record redemption for order %s: %v", ord.ID, err))
		}
	}

	return &CheckoutResult{
		OrderID:     ord.ID,
		OrderCode:   ord.OrderCode,
		Total:       total,
		Currency:    s.currency,
		CheckoutURL: submitted.CheckoutURL,
	}, nil
}

type itemTotals struct {
	subtotal        float64
	giftWrap        float64
	weightKg        float64
	shippablePieces int
}

// assembleItems re-validates every cart line at submission time and builds
// the immutable order-item snapshots. Add-to-cart-time state is not trusted.
func (s *Service) assembleItems(orderID string, snapshot *cart.Snapshot) ([]models.OrderItem, itemTotals, error) {
	var totals itemTotals
	items := make([]models.OrderItem, 0, len(snapshot.Items))

	for _, it := range snapshot.Items {
		p := it.Product
		if !p.Active || !p.Approved {
			return nil, totals, fmt.Errorf("%w: product %q is no longer available", ErrItemUnavailable, p.Name)
		}
		if !it.Vendor.Verified {
			return nil, totals, fmt.Errorf("%w: vendor %q is not verified", ErrItemUnavailable, it.Vendor.Name)
		}
		if p.Stock < it.CartItem.Quantity {
			return nil, totals, fmt.Errorf("%w: only %d of %q in stock", ErrItemUnavailable, p.Stock, p.Name)
		}

		qty := it.CartItem.Quantity
		lineTotal := models.Round2(p.Price * float64(qty))
		wrapFee := 0.0
		if it.CartItem.GiftWrap {
			wrapFee = models.Round2(p.GiftWrapFee * float64(qty))
		}

		items = append(items, models.OrderItem{
			ID:             uuid.NewString(),
			OrderID:        orderID,
			ProductID:      p.ID,
			VendorID:       p.VendorID,
			RegistryItemID: it.CartItem.RegistryItemID,
			Name:           p.Name,
			UnitPrice:      p.Price,
			OriginalPrice:  p.OriginalPrice,
			ServiceCharge:  p.ServiceCharge,
			CommissionRate: it.Vendor.CommissionRate,
			Quantity:       qty,
			Variation:      it.CartItem.Variation,
			GiftWrap:       it.CartItem.GiftWrap,
			GiftWrapFee:    wrapFee,
			LineTotal:      lineTotal,
			Shippable:      p.Shippable,
			WeightKg:       p.WeightKg,
		})

		totals.subtotal = models.Round2(totals.subtotal + lineTotal)
		totals.giftWrap = models.Round2(totals.giftWrap + wrapFee)
		if p.Shippable {
			totals.weightKg += p.WeightKg * float64(qty)
			totals.shippablePieces += qty
		}
	}

	return items, totals, nil
}

func (s *Service) submitInvoice(ctx context.Context, ord models.Order, contact ContactInfo) (*gateway.SubmitResult, error) {
	first, last := splitName(contact.Name)
	result, err := s.gateway.Submit(ctx, gateway.Invoice{
		OrderID:     ord.ID,
		FirstName:   first,
		LastName:    last,
		Email:       contact.Email,
		Phone:       contact.Phone,
		Amount:      ord.Total,
		Currency:    ord.Currency,
		RedirectURL: s.publicBaseURL + "/api/v1/payments/callback?order-id=" + ord.ID,
		PostURL:     s.publicBaseURL + "/api/v1/payments/webhook",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayRejected, err)
	}
	if result.Status != gateway.StatusAccepted || result.Token == "" {
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, result.Message)
	}
	return result, nil
}

// promoLines maps the snapshot into evaluator line items, index-aligned with
// the assembled order items.
func promoLines(snapshot *cart.Snapshot, items []models.OrderItem) []promo.LineItem {
	lines := make([]promo.LineItem, len(items))
	for i, item := range items {
		lines[i] = promo.LineItem{
			ProductID:   item.ProductID,
			CategoryIDs: snapshot.Items[i].CategoryIDs,
			Subtotal:    item.LineTotal,
			GiftWrapFee: item.GiftWrapFee,
			Shippable:   item.Shippable,
		}
	}
	return lines
}

// applyDiscounts bakes the per-item discount into the persisted snapshot.
// Only the aggregate discount is stored on the order for reporting.
func applyDiscounts(items []models.OrderItem, eval *promo.Evaluation) {
	for _, d := range eval.ItemDiscounts {
		item := &items[d.Index]
		item.LineTotal = models.Round2(item.LineTotal - d.Subtotal)
		item.GiftWrapFee = models.Round2(item.GiftWrapFee - d.GiftWrap)
		if item.Quantity > 0 {
			item.UnitPrice = models.Round2(item.LineTotal / float64(item.Quantity))
		}
	}
}

// singleVendorID returns the vendor id when every cart line belongs to one
// vendor, enabling vendor-scoped promo lookup; multi-vendor carts only match
// platform promos.
func singleVendorID(snapshot *cart.Snapshot) string {
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

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func newOrderCode() string {
	return "GM-" + strings.ToUpper(uuid.NewString()[:8])
}
