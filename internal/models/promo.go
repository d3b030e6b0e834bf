package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Promo scopes. A platform promo applies marketplace-wide; a vendor promo is
// restricted to one vendor's products.
const (
	PromoScopePlatform = "platform"
	PromoScopeVendor   = "vendor"
)

type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes"`

	ID           string     `bun:"id,pk" json:"id"`
	Code         string     `bun:"code,notnull" json:"code"`
	Scope        string     `bun:"scope,notnull" json:"scope"`
	VendorID     string     `bun:"vendor_id,nullzero" json:"vendor_id,omitempty"`
	PercentOff   float64    `bun:"percent_off,notnull" json:"percent_off"`
	Active       bool       `bun:"active" json:"active"`
	StartsAt     *time.Time `bun:"starts_at,nullzero" json:"starts_at,omitempty"`
	EndsAt       *time.Time `bun:"ends_at,nullzero" json:"ends_at,omitempty"`
	MinSpend     float64    `bun:"min_spend" json:"min_spend"`
	UsageLimit   int        `bun:"usage_limit" json:"usage_limit"`
	PerUserLimit int        `bun:"per_user_limit" json:"per_user_limit"`
	UsageCount   int        `bun:"usage_count,notnull,default:0" json:"usage_count"`
}

// PromoTarget restricts a promo to specific products or categories.
// A promo with no targets applies to every item in its scope.
type PromoTarget struct {
	bun.BaseModel `bun:"table:promo_targets"`

	ID         string `bun:"id,pk" json:"id"`
	PromoID    string `bun:"promo_id,notnull" json:"promo_id"`
	ProductID  string `bun:"product_id,nullzero" json:"product_id,omitempty"`
	CategoryID string `bun:"category_id,nullzero" json:"category_id,omitempty"`
}

// PromoRedemption records one successful application of a promo to an order.
// Keyed by promo id plus user id or guest browser id for per-user limits.
type PromoRedemption struct {
	bun.BaseModel `bun:"table:promo_redemptions"`

	ID                string    `bun:"id,pk" json:"id"`
	PromoID           string    `bun:"promo_id,notnull" json:"promo_id"`
	OrderID           string    `bun:"order_id,notnull" json:"order_id"`
	UserID            string    `bun:"user_id,nullzero" json:"user_id,omitempty"`
	GuestID           string    `bun:"guest_id,nullzero" json:"guest_id,omitempty"`
	Amount            float64   `bun:"amount,notnull" json:"amount"`
	DeviceFingerprint string    `bun:"device_fingerprint,nullzero" json:"device_fingerprint,omitempty"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
