package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PromotionKind identifies which pricing rule an item carries.
type PromotionKind int

const (
	// PromotionNone prices every unit at the taxed unit price.
	PromotionNone PromotionKind = iota
	// PromotionBuyXGetY charges Buy units and gives the next Free units away.
	PromotionBuyXGetY
	// PromotionBundle prices one unit of the item plus one of Partner at a flat Price.
	PromotionBundle
)

// String implements fmt.Stringer.
func (k PromotionKind) String() string {
	switch k {
	case PromotionBuyXGetY:
		return "buy_x_get_y"
	case PromotionBundle:
		return "bundle"
	default:
		return "none"
	}
}

// Promotion is the tagged pricing rule of an item. Only the fields matching
// Kind are meaningful.
type Promotion struct {
	Kind    PromotionKind
	Buy     int
	Free    int
	Partner string
	Price   decimal.Decimal
}

// NoPromotion returns the plain pricing rule.
func NoPromotion() Promotion {
	return Promotion{Kind: PromotionNone}
}

// BuyXGetY returns a rule giving free units away for every buy units charged.
func BuyXGetY(buy, free int) Promotion {
	return Promotion{Kind: PromotionBuyXGetY, Buy: buy, Free: free}
}

// Bundle returns a rule pairing the item with partner at a flat, untaxed price.
func Bundle(partner string, price decimal.Decimal) Promotion {
	return Promotion{Kind: PromotionBundle, Partner: partner, Price: price}
}

// String implements fmt.Stringer.
func (p Promotion) String() string {
	switch p.Kind {
	case PromotionBuyXGetY:
		return fmt.Sprintf("buy %d get %d", p.Buy, p.Free)
	case PromotionBundle:
		return fmt.Sprintf("bundle with %s for %s", p.Partner, p.Price.StringFixed(2))
	default:
		return "none"
	}
}

// Item describes the identity and pricing rule of one catalog product.
// Items are values; nothing mutates them after construction.
type Item struct {
	id        string
	unitPrice decimal.Decimal
	tax       decimal.Decimal
	promo     Promotion
}

// NewItem constructs an item. Inputs are accepted as given; see Validate.
func NewItem(id string, unitPrice, tax decimal.Decimal, promo Promotion) Item {
	return Item{id: id, unitPrice: unitPrice, tax: tax, promo: promo}
}

// NewPlainItem constructs an item without a promotion.
func NewPlainItem(id string, unitPrice, tax decimal.Decimal) Item {
	return NewItem(id, unitPrice, tax, NoPromotion())
}

// NewBuyXGetYItem constructs an item carrying a buy X get Y free promotion.
func NewBuyXGetYItem(id string, unitPrice, tax decimal.Decimal, buy, free int) Item {
	return NewItem(id, unitPrice, tax, BuyXGetY(buy, free))
}

// NewBundleItem constructs an item bundled with partner at bundlePrice.
func NewBundleItem(id string, unitPrice decimal.Decimal, partner string, bundlePrice, tax decimal.Decimal) Item {
	return NewItem(id, unitPrice, tax, Bundle(partner, bundlePrice))
}

// ID returns the catalog identifier.
func (i Item) ID() string { return i.id }

// UnitPrice returns the pre-tax unit price.
func (i Item) UnitPrice() decimal.Decimal { return i.unitPrice }

// Tax returns the tax rate as a fraction (0.0925 for 9.25%).
func (i Item) Tax() decimal.Decimal { return i.tax }

// Promotion returns the pricing rule.
func (i Item) Promotion() Promotion { return i.promo }

// BuyXGetY reports the buy/free counts when the item carries that promotion.
func (i Item) BuyXGetY() (buy, free int, ok bool) {
	if i.promo.Kind != PromotionBuyXGetY {
		return 0, 0, false
	}
	return i.promo.Buy, i.promo.Free, true
}

// Bundle reports the partner and bundle price when the item carries a bundle.
func (i Item) Bundle() (partner string, price decimal.Decimal, ok bool) {
	if i.promo.Kind != PromotionBundle {
		return "", decimal.Zero, false
	}
	return i.promo.Partner, i.promo.Price, true
}

// MarshalText implements encoding.TextMarshaler.
func (k PromotionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PromotionKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*k = PromotionNone
	case "buy_x_get_y":
		*k = PromotionBuyXGetY
	case "bundle":
		*k = PromotionBundle
	default:
		return fmt.Errorf("unknown promotion kind %q", text)
	}
	return nil
}
