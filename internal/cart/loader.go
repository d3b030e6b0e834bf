package cart

import (
	"context"
	"fmt"

	"gift-marketplace/internal/auth"
	"gift-marketplace/internal/models"
)

// Item is one cart line resolved against the live catalog: the cart row plus
// the product, vendor and category ids it references.
type Item struct {
	CartItem    models.CartItem
	Product     models.Product
	Vendor      models.Vendor
	CategoryIDs []string
}

// Snapshot is the in-memory working set for one checkout attempt: every
// active cart owned by the actor and every resolved line item.
type Snapshot struct {
	Carts []models.Cart
	Items []Item
}

func (s *Snapshot) CartIDs() []string {
	ids := make([]string, len(s.Carts))
	for i, c := range s.Carts {
		ids[i] = c.ID
	}
	return ids
}

type Store interface {
	GetActiveCarts(ctx context.Context, actor auth.Actor) ([]models.Cart, error)
	GetCartItems(ctx context.Context, cartIDs []string) ([]models.CartItem, error)
	GetProducts(ctx context.Context, ids []string) ([]models.Product, error)
	GetVendors(ctx context.Context, ids []string) ([]models.Vendor, error)
	GetProductCategories(ctx context.Context, productIDs []string) ([]models.ProductCategory, error)
	DeleteCarts(ctx context.Context, cartIDs []string) error
}

type Loader struct {
	store Store
}

func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load reads the actor's active carts and resolves every referenced product,
// vendor and category into a Snapshot. A cart line referencing a product or
// vendor that no longer exists fails the load.
func (l *Loader) Load(ctx context.Context, actor auth.Actor) (*Snapshot, error) {
	carts, err := l.store.GetActiveCarts(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to load carts: %w", err)
	}
	snapshot := &Snapshot{Carts: carts}
	if len(carts) == 0 {
		return snapshot, nil
	}

	items, err := l.store.GetCartItems(ctx, snapshot.CartIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	if len(items) == 0 {
		return snapshot, nil
	}

	productIDs := make([]string, 0, len(items))
	seen := make(map[string]bool)
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			productIDs = append(productIDs, it.ProductID)
		}
	}

	products, err := l.store.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	productByID := make(map[string]models.Product, len(products))
	vendorIDs := make([]string, 0, len(products))
	seenVendor := make(map[string]bool)
	for _, p := range products {
		productByID[p.ID] = p
		if !seenVendor[p.VendorID] {
			seenVendor[p.VendorID] = true
			vendorIDs = append(vendorIDs, p.VendorID)
		}
	}

	vendors, err := l.store.GetVendors(ctx, vendorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendors: %w", err)
	}
	vendorByID := make(map[string]models.Vendor, len(vendors))
	for _, v := range vendors {
		vendorByID[v.ID] = v
	}

	categories, err := l.store.GetProductCategories(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load product categories: %w", err)
	}
	categoriesByProduct := make(map[string][]string)
	for _, pc := range categories {
		categoriesByProduct[pc.ProductID] = append(categoriesByProduct[pc.ProductID], pc.CategoryID)
	}

	for _, it := range items {
		product, ok := productByID[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("cart references unknown product %s", it.ProductID)
		}
		vendor, ok := vendorByID[product.VendorID]
		if !ok {
			return nil, fmt.Errorf("product %s references unknown vendor %s", product.ID, product.VendorID)
		}
		snapshot.Items = append(snapshot.Items, Item{
			CartItem:    it,
			Product:     product,
			Vendor:      vendor,
			CategoryIDs: categoriesByProduct[it.ProductID],
		})
	}

	return snapshot, nil
}

// Clear deletes the snapshot's carts and their items. Checkout is a move,
// not a copy: once an order is created the carts are gone.
func (l *Loader) Clear(ctx context.Context, snapshot *Snapshot) error {
	if len(snapshot.Carts) == 0 {
		return nil
	}
	return l.store.DeleteCarts(ctx, snapshot.CartIDs())
}
