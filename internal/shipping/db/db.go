package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"gift-marketplace/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetZoneByCity resolves a delivery city to a courier zone by name. Returns
// (nil, nil) when the city is not in the cached directory yet.
func (d *DB) GetZoneByCity(ctx context.Context, city string) (*models.ShippingZone, error) {
	var zone models.ShippingZone
	err := d.Bun.NewSelect().
		Model(&zone).
		Where("LOWER(zone_name) = LOWER(?)", city).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

func (d *DB) ListZones(ctx context.Context) ([]models.ShippingZone, error) {
	var zones []models.ShippingZone
	err := d.Bun.NewSelect().
		Model(&zones).
		Order("zone_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return zones, nil
}

// ReplaceZones swaps in a freshly fetched courier zone directory.
func (d *DB) ReplaceZones(ctx context.Context, zones []models.ShippingZone) error {
	if len(zones) == 0 {
		return nil
	}
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.ShippingZone)(nil)).
			Where("1 = 1").
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&zones).Exec(ctx)
		return err
	})
}

func (d *DB) CreateShipment(ctx context.Context, shipment models.Shipment) error {
	_, err := d.Bun.NewInsert().Model(&shipment).Exec(ctx)
	return err
}

func (d *DB) GetShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := d.Bun.NewSelect().
		Model(&shipment).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (d *DB) UpdateShipmentStatus(ctx context.Context, id, status string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Shipment)(nil)).
		Set("status = ?", status).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)
	return err
}
