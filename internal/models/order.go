package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Order statuses. An order is created as "pending" at checkout submission and
// moved to exactly one terminal status by webhook/callback reconciliation.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusDeclined  = "declined"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// IsTerminalStatus reports whether no further automatic transition occurs.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusPaid, StatusDeclined, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string  `bun:"id,pk" json:"id"`
	OrderCode     string  `bun:"order_code,notnull,unique" json:"order_code"`
	Status        string  `bun:"status,notnull" json:"status"`
	Subtotal      float64 `bun:"subtotal,notnull" json:"subtotal"`
	ShippingFee   float64 `bun:"shipping_fee" json:"shipping_fee"`
	GiftWrapFee   float64 `bun:"gift_wrap_fee" json:"gift_wrap_fee"`
	PromoDiscount float64 `bun:"promo_discount" json:"promo_discount"`
	Total         float64 `bun:"total,notnull" json:"total"`
	Currency      string  `bun:"currency,notnull" json:"currency"`
	PromoCode     string  `bun:"promo_code,nullzero" json:"promo_code,omitempty"`

	UserID  string `bun:"user_id,nullzero" json:"user_id,omitempty"`
	GuestID string `bun:"guest_id,nullzero" json:"guest_id,omitempty"`

	// Buyer/gifter contact snapshot taken at checkout submission.
	BuyerName   string `bun:"buyer_name" json:"buyer_name"`
	BuyerEmail  string `bun:"buyer_email" json:"buyer_email"`
	BuyerPhone  string `bun:"buyer_phone" json:"buyer_phone"`
	GifterEmail string `bun:"gifter_email,nullzero" json:"gifter_email,omitempty"`

	// Shipping address snapshot. Empty when the order has no shippable items.
	ShippingStreet string `bun:"shipping_street,nullzero" json:"shipping_street,omitempty"`
	ShippingCity   string `bun:"shipping_city,nullzero" json:"shipping_city,omitempty"`

	PaymentToken  string `bun:"payment_token,nullzero" json:"payment_token,omitempty"`
	PaymentMethod string `bun:"payment_method,nullzero" json:"payment_method,omitempty"`
	PaymentRef    string `bun:"payment_ref,nullzero" json:"payment_ref,omitempty"`

	// GatewayLog is the raw audit/debug trail of gateway interactions, a JSON
	// array of reconciliation debug records appended per webhook outcome.
	GatewayLog string `bun:"gateway_log,nullzero" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// OrderItem is an immutable snapshot of a product/vendor as of purchase time.
// Vendor pricing and commission may change later; the order keeps what was sold.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID             string  `bun:"id,pk" json:"id"`
	OrderID        string  `bun:"order_id,notnull" json:"order_id"`
	ProductID      string  `bun:"product_id,notnull" json:"product_id"`
	VendorID       string  `bun:"vendor_id,notnull" json:"vendor_id"`
	RegistryItemID string  `bun:"registry_item_id,nullzero" json:"registry_item_id,omitempty"`
	Name           string  `bun:"name,notnull" json:"name"`
	UnitPrice      float64 `bun:"unit_price,notnull" json:"unit_price"`
	OriginalPrice  float64 `bun:"original_price" json:"original_price"`
	ServiceCharge  float64 `bun:"service_charge" json:"service_charge"`
	CommissionRate float64 `bun:"commission_rate" json:"commission_rate"`
	Quantity       int     `bun:"quantity,notnull" json:"quantity"`
	Variation      string  `bun:"variation,nullzero" json:"variation,omitempty"`
	GiftWrap       bool    `bun:"gift_wrap" json:"gift_wrap"`
	GiftWrapFee    float64 `bun:"gift_wrap_fee" json:"gift_wrap_fee"`
	LineTotal      float64 `bun:"line_total,notnull" json:"line_total"`
	Shippable      bool    `bun:"shippable" json:"shippable"`
	WeightKg       float64 `bun:"weight_kg" json:"weight_kg"`
}

// PaymentRecord is the payout-eligible payment ledger row, keyed by
// (order, provider, provider reference) so duplicate webhook deliveries
// cannot insert it twice.
type PaymentRecord struct {
	bun.BaseModel `bun:"table:payment_records"`

	ID          string    `bun:"id,pk" json:"id"`
	OrderID     string    `bun:"order_id,notnull" json:"order_id"`
	Provider    string    `bun:"provider,notnull" json:"provider"`
	ProviderRef string    `bun:"provider_ref,notnull" json:"provider_ref"`
	Amount      float64   `bun:"amount,notnull" json:"amount"`
	Currency    string    `bun:"currency,notnull" json:"currency"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Shipment struct {
	bun.BaseModel `bun:"table:shipments"`

	ID             string    `bun:"id,pk" json:"id"`
	OrderID        string    `bun:"order_id,notnull" json:"order_id"`
	TrackingNumber string    `bun:"tracking_number,nullzero" json:"tracking_number,omitempty"`
	Status         string    `bun:"status,nullzero" json:"status,omitempty"`
	TrackingURL    string    `bun:"tracking_url,nullzero" json:"tracking_url,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
