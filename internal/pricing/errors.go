package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownIdentifier is returned in strict mode when a scanned or referenced identifier is not in the catalog.
	ErrUnknownIdentifier = errors.New("unknown identifier")
	// ErrInvalidPromotion indicates a promotion that cannot be evaluated as configured.
	ErrInvalidPromotion = errors.New("invalid promotion configuration")
	// ErrNegativePriceOrTax indicates a negative unit price, tax rate or bundle price.
	ErrNegativePriceOrTax = errors.New("negative price or tax")
)

// ValidateItem checks a single entry in isolation.
func ValidateItem(item Item) error {
	var errs []error
	if item.unitPrice.IsNegative() || item.tax.IsNegative() {
		errs = append(errs, fmt.Errorf("item %q: %w", item.id, ErrNegativePriceOrTax))
	}
	switch item.promo.Kind {
	case PromotionBuyXGetY:
		if item.promo.Buy <= 0 || item.promo.Free <= 0 {
			errs = append(errs, fmt.Errorf("item %q: buy %d get %d: %w", item.id, item.promo.Buy, item.promo.Free, ErrInvalidPromotion))
		}
	case PromotionBundle:
		if item.promo.Partner == "" {
			errs = append(errs, fmt.Errorf("item %q: bundle without partner: %w", item.id, ErrInvalidPromotion))
		} else if item.promo.Partner == item.id {
			errs = append(errs, fmt.Errorf("item %q: bundled with itself: %w", item.id, ErrInvalidPromotion))
		}
		if item.promo.Price.IsNegative() {
			errs = append(errs, fmt.Errorf("item %q: bundle price: %w", item.id, ErrNegativePriceOrTax))
		}
	}
	return errors.Join(errs...)
}
