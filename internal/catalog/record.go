package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-pricing/internal/pricing"
)

var (
	// ErrInvalidRecord is returned when a catalog record cannot become a pricing entry.
	ErrInvalidRecord = errors.New("invalid catalog record")
	// ErrCatalogNotLoaded indicates no catalog has been loaded or restored yet.
	ErrCatalogNotLoaded = errors.New("catalog not loaded")
)

// Record is the wire form of one catalog entry.
type Record struct {
	ID        string          `json:"id" validate:"required,max=64"`
	Name      string          `json:"name,omitempty" validate:"max=128"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Tax       decimal.Decimal `json:"tax" validate:"gte=0"`
	BuyXGetY  *BuyXGetYRule   `json:"buyXGetY,omitempty" validate:"omitempty,excluded_with=Bundle"`
	Bundle    *BundleRule     `json:"bundle,omitempty" validate:"omitempty"`
}

// BuyXGetYRule charges Buy units and gives Free units away per batch.
type BuyXGetYRule struct {
	Buy  int `json:"buy" validate:"min=1"`
	Free int `json:"free" validate:"min=1"`
}

// BundleRule prices one unit each of the item and Partner at Price.
type BundleRule struct {
	Partner string          `json:"partner" validate:"required,max=64"`
	Price   decimal.Decimal `json:"price" validate:"gte=0"`
}

// NewValidator returns a validator that understands decimal amounts.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Item converts the record into a pricing entry. A record may carry at most one promotion.
func (r Record) Item() (pricing.Item, error) {
	id := strings.TrimSpace(r.ID)
	switch {
	case r.BuyXGetY != nil && r.Bundle != nil:
		return pricing.Item{}, fmt.Errorf("%w: %q carries both buyXGetY and bundle", ErrInvalidRecord, id)
	case r.BuyXGetY != nil:
		return pricing.NewBuyXGetYItem(id, r.UnitPrice, r.Tax, r.BuyXGetY.Buy, r.BuyXGetY.Free), nil
	case r.Bundle != nil:
		return pricing.NewBundleItem(id, r.UnitPrice, strings.TrimSpace(r.Bundle.Partner), r.Bundle.Price, r.Tax), nil
	default:
		return pricing.NewPlainItem(id, r.UnitPrice, r.Tax), nil
	}
}

// FromItem is the inverse of Record.Item; Name is not part of a pricing entry.
func FromItem(item pricing.Item) Record {
	rec := Record{ID: item.ID(), UnitPrice: item.UnitPrice(), Tax: item.Tax()}
	if buy, free, ok := item.BuyXGetY(); ok {
		rec.BuyXGetY = &BuyXGetYRule{Buy: buy, Free: free}
	}
	if partner, price, ok := item.Bundle(); ok {
		rec.Bundle = &BundleRule{Partner: partner, Price: price}
	}
	return rec
}

// Decode reads records from either a JSON array or an object with an "items" array.
func Decode(r io.Reader) ([]Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var records []Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		return records, nil
	}
	var doc struct {
		Items []Record `json:"items"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return doc.Items, nil
}
