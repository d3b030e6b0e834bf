package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"gift-marketplace/internal/auth"
	"gift-marketplace/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetPromoByCode fetches a promo by code within one scope, case-insensitively.
// Returns (nil, nil) when no promo matches.
func (d *DB) GetPromoByCode(ctx context.Context, code, scope, vendorID string) (*models.PromoCode, error) {
	var promo models.PromoCode
	q := d.Bun.NewSelect().
		Model(&promo).
		Where("LOWER(code) = LOWER(?)", code).
		Where("scope = ?", scope)
	if scope == models.PromoScopeVendor {
		q = q.Where("vendor_id = ?", vendorID)
	}
	err := q.Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (d *DB) GetTargets(ctx context.Context, promoID string) ([]models.PromoTarget, error) {
	var targets []models.PromoTarget
	err := d.Bun.NewSelect().
		Model(&targets).
		Where("promo_id = ?", promoID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// CountRedemptions counts prior redemptions of a promo by one actor,
// keyed by user id for authenticated buyers or guest browser id otherwise.
func (d *DB) CountRedemptions(ctx context.Context, promoID string, actor auth.Actor) (int, error) {
	q := d.Bun.NewSelect().
		Model((*models.PromoRedemption)(nil)).
		Where("promo_id = ?", promoID)
	if actor.UserID != "" {
		q = q.Where("user_id = ?", actor.UserID)
	} else {
		q = q.Where("guest_id = ?", actor.GuestID)
	}
	return q.Count(ctx)
}

// CreateRedemption records one successful application of a promo to an order.
func (d *DB) CreateRedemption(ctx context.Context, redemption models.PromoRedemption) error {
	_, err := d.Bun.NewInsert().Model(&redemption).Exec(ctx)
	return err
}
