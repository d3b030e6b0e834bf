package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gift-marketplace/internal/auth"
	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
)

// Rejection reasons, each a distinct error surfaced to the caller.
var (
	ErrCodeNotFound    = errors.New("promo code not found")
	ErrNotActive       = errors.New("promo code is not active")
	ErrNoEligibleItems = errors.New("promo code does not apply to any item in the cart")
	ErrMinSpend        = errors.New("cart does not meet the promo minimum spend")
	ErrUsageLimit      = errors.New("promo usage limit reached")
	ErrPerUserLimit    = errors.New("promo per-user usage limit reached")
)

// LineItem carries the per-line attributes the evaluator needs.
type LineItem struct {
	ProductID   string
	CategoryIDs []string
	Subtotal    float64
	GiftWrapFee float64
	Shippable   bool
}

// ItemDiscount is the computed discount for one line item, split between the
// product subtotal and the gift-wrap fee.
type ItemDiscount struct {
	Index    int
	Subtotal float64
	GiftWrap float64
	Total    float64
}

type Evaluation struct {
	Promo         *models.PromoCode
	ItemDiscounts []ItemDiscount
	Discount      float64
}

type Store interface {
	// GetPromoByCode returns (nil, nil) when no promo matches.
	GetPromoByCode(ctx context.Context, code, scope, vendorID string) (*models.PromoCode, error)
	GetTargets(ctx context.Context, promoID string) ([]models.PromoTarget, error)
	CountRedemptions(ctx context.Context, promoID string, actor auth.Actor) (int, error)
}

type Evaluator struct {
	store  Store
	logger *logger.Logger
	now    func() time.Time
}

func NewEvaluator(store Store, log *logger.Logger) *Evaluator {
	return &Evaluator{store: store, logger: log, now: time.Now}
}

// Evaluate validates a promo code against the cart and computes per-item
// discounts without mutating any state. A vendor-scoped promo is tried first
// when a vendor id is given, then a platform-scoped one, case-insensitively.
func (e *Evaluator) Evaluate(ctx context.Context, code, scopeVendorID string, items []LineItem, actor auth.Actor) (*Evaluation, error) {
	promo, err := e.lookup(ctx, code, scopeVendorID)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, ErrCodeNotFound
	}

	now := e.now()
	if !promo.Active {
		return nil, fmt.Errorf("%w: code is disabled", ErrNotActive)
	}
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return nil, fmt.Errorf("%w: not yet started", ErrNotActive)
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return nil, fmt.Errorf("%w: expired", ErrNotActive)
	}

	if promo.UsageLimit > 0 && promo.UsageCount >= promo.UsageLimit {
		return nil, ErrUsageLimit
	}

	if promo.PerUserLimit > 0 {
		used, err := e.store.CountRedemptions(ctx, promo.ID, actor)
		if err != nil {
			return nil, fmt.Errorf("failed to count promo redemptions: %w", err)
		}
		if used >= promo.PerUserLimit {
			return nil, ErrPerUserLimit
		}
	}

	targets, err := e.store.GetTargets(ctx, promo.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load promo targets: %w", err)
	}

	eval := &Evaluation{Promo: promo}
	var eligibleSubtotal float64

	for i, item := range items {
		if !eligible(item, targets) {
			continue
		}
		base := models.Round2(item.Subtotal + item.GiftWrapFee)
		if base <= 0 {
			continue
		}
		eligibleSubtotal = models.Round2(eligibleSubtotal + base)

		total := models.Round2(promo.PercentOff / 100 * base)
		subShare := models.Round2(total * item.Subtotal / base)
		wrapShare := models.Round2(total - subShare)

		eval.ItemDiscounts = append(eval.ItemDiscounts, ItemDiscount{
			Index:    i,
			Subtotal: subShare,
			GiftWrap: wrapShare,
			Total:    total,
		})
		eval.Discount = models.Round2(eval.Discount + total)
	}

	if eval.Discount <= 0 {
		return nil, ErrNoEligibleItems
	}
	if promo.MinSpend > 0 && eligibleSubtotal < promo.MinSpend {
		return nil, fmt.Errorf("%w: requires %.2f", ErrMinSpend, promo.MinSpend)
	}

	if e.logger != nil {
		e.logger.Debug("PROMO", fmt.Sprintf("code %s valid: discount %.2f over %d item(s)", promo.Code, eval.Discount, len(eval.ItemDiscounts)))
	}
	return eval, nil
}

func (e *Evaluator) lookup(ctx context.Context, code, scopeVendorID string) (*models.PromoCode, error) {
	if scopeVendorID != "" {
		promo, err := e.store.GetPromoByCode(ctx, code, models.PromoScopeVendor, scopeVendorID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up vendor promo: %w", err)
		}
		if promo != nil {
			return promo, nil
		}
	}
	promo, err := e.store.GetPromoByCode(ctx, code, models.PromoScopePlatform, "")
	if err != nil {
		return nil, fmt.Errorf("failed to look up platform promo: %w", err)
	}
	return promo, nil
}

// eligible reports whether a line item matches the promo's target set.
// An empty target set means every item in scope is eligible.
func eligible(item LineItem, targets []models.PromoTarget) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t.ProductID != "" && t.ProductID == item.ProductID {
			return true
		}
		if t.CategoryID != "" {
			for _, c := range item.CategoryIDs {
				if c == t.CategoryID {
					return true
				}
			}
		}
	}
	return false
}
