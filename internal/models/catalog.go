package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID            string  `bun:"id,pk" json:"id"`
	VendorID      string  `bun:"vendor_id,notnull" json:"vendor_id"`
	Name          string  `bun:"name,notnull" json:"name"`
	Price         float64 `bun:"price,notnull" json:"price"`
	OriginalPrice float64 `bun:"original_price" json:"original_price"`
	ServiceCharge float64 `bun:"service_charge" json:"service_charge"`
	GiftWrapFee   float64 `bun:"gift_wrap_fee" json:"gift_wrap_fee"`
	Stock         int     `bun:"stock,notnull" json:"stock"`
	Active        bool    `bun:"active" json:"active"`
	Approved      bool    `bun:"approved" json:"approved"`
	// Shippable is false for digital/treat products, which skip the
	// shipping address requirement and courier rate lookup entirely.
	Shippable bool    `bun:"shippable" json:"shippable"`
	WeightKg  float64 `bun:"weight_kg" json:"weight_kg"`
}

type ProductCategory struct {
	bun.BaseModel `bun:"table:product_categories"`

	ProductID  string `bun:"product_id,pk" json:"product_id"`
	CategoryID string `bun:"category_id,pk" json:"category_id"`
}

type Vendor struct {
	bun.BaseModel `bun:"table:vendors"`

	ID             string  `bun:"id,pk" json:"id"`
	Name           string  `bun:"name,notnull" json:"name"`
	Verified       bool    `bun:"verified" json:"verified"`
	CommissionRate float64 `bun:"commission_rate" json:"commission_rate"`
}

// RegistryItem tracks how many units of a wished product have been purchased
// by gifters. PurchasedQty is incremented atomically on the first paid
// transition of an order containing the item.
type RegistryItem struct {
	bun.BaseModel `bun:"table:registry_items"`

	ID           string `bun:"id,pk" json:"id"`
	RegistryID   string `bun:"registry_id,notnull" json:"registry_id"`
	OwnerUserID  string `bun:"owner_user_id,notnull" json:"owner_user_id"`
	ProductID    string `bun:"product_id,notnull" json:"product_id"`
	DesiredQty   int    `bun:"desired_qty,notnull" json:"desired_qty"`
	PurchasedQty int    `bun:"purchased_qty,notnull,default:0" json:"purchased_qty"`
}

// Cart is ephemeral pre-order state. It belongs to a user or an anonymous
// guest-browser id and is deleted once converted into an order.
type Cart struct {
	bun.BaseModel `bun:"table:carts"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,nullzero" json:"user_id,omitempty"`
	GuestID   string    `bun:"guest_id,nullzero" json:"guest_id,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type CartItem struct {
	bun.BaseModel `bun:"table:cart_items"`

	ID             string `bun:"id,pk" json:"id"`
	CartID         string `bun:"cart_id,notnull" json:"cart_id"`
	ProductID      string `bun:"product_id,notnull" json:"product_id"`
	RegistryItemID string `bun:"registry_item_id,nullzero" json:"registry_item_id,omitempty"`
	Quantity       int    `bun:"quantity,notnull" json:"quantity"`
	Variation      string `bun:"variation,nullzero" json:"variation,omitempty"`
	GiftWrap       bool   `bun:"gift_wrap" json:"gift_wrap"`
}

type ShippingZone struct {
	bun.BaseModel `bun:"table:shipping_zones"`

	ID          string `bun:"id,pk" json:"id"`
	CountryCode string `bun:"country_code,notnull" json:"country_code"`
	ZoneCode    string `bun:"zone_code,notnull" json:"zone_code"`
	ZoneName    string `bun:"zone_name,notnull" json:"zone_name"`
}
