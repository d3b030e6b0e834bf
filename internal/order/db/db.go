package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"gift-marketplace/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

func (d *DB) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	return err
}

// CreateOrderItems inserts the item snapshots. The order row must already
// exist so the items have something to reference.
func (d *DB) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&items).Exec(ctx)
	return err
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByCodeAndEmail verifies an order by order code plus buyer or gifter
// email match. Used by the public, unauthenticated lookup surface.
func (d *DB) GetOrderByCodeAndEmail(ctx context.Context, code, email string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_code = ?", code).
		Where("LOWER(buyer_email) = LOWER(?) OR LOWER(gifter_email) = LOWER(?)", email, email).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) SetPaymentToken(ctx context.Context, id, token string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_token = ?", token).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// MarkOrderPaid flips the order to paid with single-writer-wins semantics:
// the conditional update succeeds at most once, and only the caller that
// observes an affected row runs the paid side effects.
func (d *DB) MarkOrderPaid(ctx context.Context, id, method, ref string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.StatusPaid).
		Set("payment_method = ?", method).
		Set("payment_ref = ?", ref).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status <> ?", models.StatusPaid).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkOrderStatusIfPending moves a pending order to a non-paid terminal
// status. Orders already in a terminal state are left untouched.
func (d *DB) MarkOrderStatusIfPending(ctx context.Context, id, status string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", models.StatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// BackfillPaymentDetails fills in payment method/reference that were missing
// when the order first reached a terminal state. It never overwrites values
// already present and never touches the status.
func (d *DB) BackfillPaymentDetails(ctx context.Context, id, method, ref string) error {
	order, err := d.GetOrderByID(ctx, id)
	if err != nil {
		return err
	}
	changed := false
	if order.PaymentMethod == "" && method != "" {
		order.PaymentMethod = method
		changed = true
	}
	if order.PaymentRef == "" && ref != "" {
		order.PaymentRef = ref
		changed = true
	}
	if !changed {
		return nil
	}
	_, err = d.Bun.NewUpdate().
		Model(order).
		Column("payment_method", "payment_ref").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// DebugRecord is one entry in the order's persisted gateway audit trail.
type DebugRecord struct {
	Stage  string    `json:"stage"`
	Token  string    `json:"token,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// AppendGatewayLog appends a debug record to the order's audit blob. Webhook
// delivery is asynchronous and at-least-once; this trail is how operators
// reconstruct what each delivery did.
func (d *DB) AppendGatewayLog(ctx context.Context, orderID, stage, maskedToken, detail string) error {
	order, err := d.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	var trail []DebugRecord
	if order.GatewayLog != "" {
		// A corrupt blob should not block reconciliation; start a fresh trail.
		_ = json.Unmarshal([]byte(order.GatewayLog), &trail)
	}
	trail = append(trail, DebugRecord{
		Stage:  stage,
		Token:  maskedToken,
		Detail: detail,
		At:     time.Now().UTC(),
	})

	blob, err := json.Marshal(trail)
	if err != nil {
		return err
	}
	_, err = d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("gateway_log = ?", string(blob)).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// ---------------- PAID SIDE EFFECTS ----------------

// InsertPaymentRecord upserts a payment-ledger row keyed by
// (order, provider, provider reference), ignoring duplicates so racing
// webhook deliveries cannot double-insert.
func (d *DB) InsertPaymentRecord(ctx context.Context, record models.PaymentRecord) error {
	_, err := d.Bun.NewInsert().
		Model(&record).
		Ignore().
		Exec(ctx)
	return err
}

// ApplyPaidStockEffects performs the stock decrement and registry
// purchased-quantity increment for every item of a freshly paid order as
// atomic counter updates in the storage layer. No read step, no race window.
func (d *DB) ApplyPaidStockEffects(ctx context.Context, items []models.OrderItem) error {
	for _, item := range items {
		_, err := d.Bun.NewUpdate().
			Model((*models.Product)(nil)).
			Set("stock = stock - ?", item.Quantity).
			Where("id = ?", item.ProductID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if item.RegistryItemID != "" {
			_, err := d.Bun.NewUpdate().
				Model((*models.RegistryItem)(nil)).
				Set("purchased_qty = purchased_qty + ?", item.Quantity).
				Where("id = ?", item.RegistryItemID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// IncrementPromoUsage bumps the usage counter of every promo redeemed against
// the order, atomically in the storage layer.
func (d *DB) IncrementPromoUsage(ctx context.Context, orderID string) error {
	subq := d.Bun.NewSelect().
		Model((*models.PromoRedemption)(nil)).
		Column("promo_id").
		Where("order_id = ?", orderID)
	_, err := d.Bun.NewUpdate().
		Model((*models.PromoCode)(nil)).
		Set("usage_count = usage_count + 1").
		Where("id IN (?)", subq).
		Exec(ctx)
	return err
}

// GetRegistryItems resolves registry items so the reconciler can notify
// their owners after a paid transition.
func (d *DB) GetRegistryItems(ctx context.Context, ids []string) ([]models.RegistryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.RegistryItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}
