package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
	"gift-marketplace/internal/payment/gateway"
)

// Outcome classifies what one webhook/callback delivery did. Every outcome is
// also appended to the order's persisted debug trail.
type Outcome string

const (
	OutcomeIgnored  Outcome = "ignored"
	OutcomeUpdated  Outcome = "updated"
	OutcomePaid     Outcome = "paid"
	OutcomeTerminal Outcome = "terminal-reconciliation"
	OutcomeError    Outcome = "error"
)

type Store interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	MarkOrderPaid(ctx context.Context, id, method, ref string) (bool, error)
	MarkOrderStatusIfPending(ctx context.Context, id, status string) (bool, error)
	BackfillPaymentDetails(ctx context.Context, id, method, ref string) error
	AppendGatewayLog(ctx context.Context, orderID, stage, maskedToken, detail string) error
	InsertPaymentRecord(ctx context.Context, record models.PaymentRecord) error
	ApplyPaidStockEffects(ctx context.Context, items []models.OrderItem) error
	IncrementPromoUsage(ctx context.Context, orderID string) error
	GetRegistryItems(ctx context.Context, ids []string) ([]models.RegistryItem, error)
}

type Notifier interface {
	PublishOrderPaid(ord models.Order) error
	PublishRegistryGiftPurchased(item models.RegistryItem, ord models.Order, quantity int) error
}

type Shipper interface {
	CreateShipment(ctx context.Context, ord models.Order, items []models.OrderItem) (*models.Shipment, error)
}

// Reconciler maps gateway-reported transaction state onto order state.
// Redirect callbacks and server-to-server webhooks both converge here;
// whichever arrives first drives the transition, the second becomes a no-op
// or a terminal reconciliation.
type Reconciler struct {
	store    Store
	notifier Notifier
	shipper  Shipper
	logger   *logger.Logger
	provider string
}

func NewReconciler(store Store, notifier Notifier, shipper Shipper, log *logger.Logger, provider string) *Reconciler {
	return &Reconciler{store: store, notifier: notifier, shipper: shipper, logger: log, provider: provider}
}

// Process applies one gateway result to an order. Deliveries are at-least-once
// and unordered; the conditional paid flip in the store is the sole
// idempotency guard.
func (r *Reconciler) Process(ctx context.Context, orderID string, res gateway.QueryResult) Outcome {
	masked := gateway.MaskToken(res.Token)

	ord, err := r.store.GetOrderByID(ctx, orderID)
	if err != nil {
		r.logger.Error("RECONCILE", fmt.Sprintf("order %s not found for gateway result: %v", orderID, err))
		return OutcomeError
	}

	next := gateway.MapResult(res.Result, res.ResultText, ord.Status)

	// A "paid" result with the wrong amount or currency cannot be trusted:
	// downgrade it to pending and wait for a result that matches.
	if next == models.StatusPaid && !gateway.AmountMatches(ord.Total, ord.Currency, res.Amount, res.Currency) {
		r.logger.Warn("RECONCILE", fmt.Sprintf("order %s amount mismatch: expected %.2f %s, gateway reported %.2f %s",
			ord.ID, ord.Total, ord.Currency, res.Amount, res.Currency))
		r.appendTrail(ctx, ord.ID, "amount-mismatch", masked,
			fmt.Sprintf("expected %.2f %s got %.2f %s", ord.Total, ord.Currency, res.Amount, res.Currency))
		next = models.StatusPending
	}

	if models.IsTerminalStatus(ord.Status) {
		return r.terminalReconciliation(ctx, ord.ID, masked, res)
	}

	switch next {
	case models.StatusPaid:
		flipped, err := r.store.MarkOrderPaid(ctx, ord.ID, res.PaymentMethod, res.TransactionID)
		if err != nil {
			r.logger.Error("RECONCILE", fmt.Sprintf("failed to mark order %s paid: %v", ord.ID, err))
			r.appendTrail(ctx, ord.ID, "error", masked, err.Error())
			return OutcomeError
		}
		if !flipped {
			// Another delivery won the race.
			return r.terminalReconciliation(ctx, ord.ID, masked, res)
		}
		r.runPaidSideEffects(ctx, *ord, res)
		r.appendTrail(ctx, ord.ID, "paid", masked, res.ResultText)
		r.logger.LogOrder("PAID", ord.OrderCode, fmt.Sprintf("transaction %s", res.TransactionID))
		return OutcomePaid

	case models.StatusDeclined, models.StatusFailed, models.StatusCancelled:
		updated, err := r.store.MarkOrderStatusIfPending(ctx, ord.ID, next)
		if err != nil {
			r.logger.Error("RECONCILE", fmt.Sprintf("failed to update order %s to %s: %v", ord.ID, next, err))
			r.appendTrail(ctx, ord.ID, "error", masked, err.Error())
			return OutcomeError
		}
		if !updated {
			r.appendTrail(ctx, ord.ID, "ignored", masked, "order already transitioned")
			return OutcomeIgnored
		}
		r.appendTrail(ctx, ord.ID, "updated", masked, next)
		r.logger.LogOrder("UPDATE", ord.OrderCode, fmt.Sprintf("status %s (%s)", next, res.ResultText))
		return OutcomeUpdated

	default:
		r.appendTrail(ctx, ord.ID, "ignored", masked, "no new information")
		return OutcomeIgnored
	}
}

// terminalReconciliation is the backfill-only path for orders already in a
// terminal state: missing payment method/reference may be filled in from the
// later, more complete gateway metadata, but no side effect ever repeats.
func (r *Reconciler) terminalReconciliation(ctx context.Context, orderID, masked string, res gateway.QueryResult) Outcome {
	if err := r.store.BackfillPaymentDetails(ctx, orderID, res.PaymentMethod, res.TransactionID); err != nil {
		r.logger.Error("RECONCILE", fmt.Sprintf("failed to backfill payment details for order %s: %v", orderID, err))
	}
	r.appendTrail(ctx, orderID, "terminal-reconciliation", masked, res.ResultText)
	return OutcomeTerminal
}

// runPaidSideEffects executes the first-flip-only effects: payment ledger
// upsert, atomic stock/registry counter updates, promo usage increment,
// consignment booking and registry-owner notifications. Individual failures
// are logged, never fatal; the webhook response stays 200 regardless.
func (r *Reconciler) runPaidSideEffects(ctx context.Context, ord models.Order, res gateway.QueryResult) {
	record := models.PaymentRecord{
		ID:          uuid.NewString(),
		OrderID:     ord.ID,
		Provider:    r.provider,
		ProviderRef: res.TransactionID,
		Amount:      res.Amount,
		Currency:    res.Currency,
	}
	if err := r.store.InsertPaymentRecord(ctx, record); err != nil {
		r.logger.Error("RECONCILE", fmt.Sprintf("failed to insert payment record for order %s: %v", ord.ID, err))
	}

	items, err := r.store.GetOrderItems(ctx, ord.ID)
	if err != nil {
		r.logger.Error("RECONCILE", fmt.Sprintf("failed to load items for paid order %s: %v", ord.ID, err))
		return
	}

	if err := r.store.ApplyPaidStockEffects(ctx, items); err != nil {
		r.logger.Error("RECONCILE", fmt.Sprintf("failed to apply stock effects for order %s: %v", ord.ID, err))
	}

	if ord.PromoCode != "" {
		if err := r.store.IncrementPromoUsage(ctx, ord.ID); err != nil {
			r.logger.Error("RECONCILE", fmt.Sprintf("failed to increment promo usage for order %s: %v", ord.ID, err))
		}
	}

	if r.shipper != nil {
		shipment, err := r.shipper.CreateShipment(ctx, ord, items)
		switch {
		case err != nil:
			r.logger.Error("RECONCILE", fmt.Sprintf("failed to book consignment for order %s: %v", ord.ID, err))
		case shipment != nil:
			r.logger.LogOrder("SHIPMENT", ord.OrderCode, fmt.Sprintf("consignment %s booked", shipment.TrackingNumber))
		}
	}

	if r.notifier != nil {
		if err := r.notifier.PublishOrderPaid(ord); err != nil {
			r.logger.Error("RECONCILE", fmt.Sprintf("failed to publish paid event for order %s: %v", ord.ID, err))
		}
	}
	r.notifyRegistryOwners(ctx, ord, items)
}

func (r *Reconciler) notifyRegistryOwners(ctx context.Context, ord models.Order, items []models.OrderItem) {
	if r.notifier == nil {
		return
	}
	qtyByRegistryItem := make(map[string]int)
	ids := make([]string, 0)
	for _, item := range items {
		if item.RegistryItemID == "" {
			continue
		}
		if _, seen := qtyByRegistryItem[item.RegistryItemID]; !seen {
			ids = append(ids, item.RegistryItemID)
		}
		qtyByRegistryItem[item.RegistryItemID] += item.Quantity
	}
	if len(ids) == 0 {
		return
	}

	registryItems, err := r.store.GetRegistryItems(ctx, ids)
	if err != nil {
		r.logger.Error("RECONCILE", fmt.Sprintf("failed to load registry items for order %s: %v", ord.ID, err))
		return
	}
	for _, ri := range registryItems {
		if err := r.notifier.PublishRegistryGiftPurchased(ri, ord, qtyByRegistryItem[ri.ID]); err != nil {
			r.logger.Error("RECONCILE", fmt.Sprintf("failed to notify registry owner %s: %v", ri.OwnerUserID, err))
		}
	}
}

func (r *Reconciler) appendTrail(ctx context.Context, orderID, stage, masked, detail string) {
	if err := r.store.AppendGatewayLog(ctx, orderID, stage, masked, detail); err != nil {
		r.logger.Error("RECONCILE", fmt.Sprintf("failed to append debug trail for order %s: %v", orderID, err))
	}
}
