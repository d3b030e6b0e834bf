package db

import (
	"context"

	"github.com/uptrace/bun"

	"gift-marketplace/internal/auth"
	"gift-marketplace/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetActiveCarts(ctx context.Context, actor auth.Actor) ([]models.Cart, error) {
	var carts []models.Cart
	q := d.Bun.NewSelect().Model(&carts)
	if actor.UserID != "" {
		q = q.Where("user_id = ?", actor.UserID)
	} else {
		q = q.Where("guest_id = ?", actor.GuestID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return carts, nil
}

func (d *DB) GetCartItems(ctx context.Context, cartIDs []string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("cart_id IN (?)", bun.In(cartIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) GetProducts(ctx context.Context, ids []string) ([]models.Product, error) {
	var products []models.Product
	err := d.Bun.NewSelect().
		Model(&products).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (d *DB) GetVendors(ctx context.Context, ids []string) ([]models.Vendor, error) {
	var vendors []models.Vendor
	err := d.Bun.NewSelect().
		Model(&vendors).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return vendors, nil
}

func (d *DB) GetProductCategories(ctx context.Context, productIDs []string) ([]models.ProductCategory, error) {
	var categories []models.ProductCategory
	err := d.Bun.NewSelect().
		Model(&categories).
		Where("product_id IN (?)", bun.In(productIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// DeleteCarts removes the carts and their items. Items go first so a failure
// between the two deletes never leaves orphaned rows.
func (d *DB) DeleteCarts(ctx context.Context, cartIDs []string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.CartItem)(nil)).
		Where("cart_id IN (?)", bun.In(cartIDs)).
		Exec(ctx)
	if err != nil {
		return err
	}
	_, err = d.Bun.NewDelete().
		Model((*models.Cart)(nil)).
		Where("id IN (?)", bun.In(cartIDs)).
		Exec(ctx)
	return err
}
