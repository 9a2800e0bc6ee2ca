package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Cart holds pending quantities keyed by item identifier.
type Cart map[string]int

// Add increments the quantity of id by qty; non-positive quantities are ignored.
func (c Cart) Add(id string, qty int) {
	if qty <= 0 {
		return
	}
	c[id] += qty
}

// Clone returns an independent copy of the cart.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for id, qty := range c {
		out[id] = qty
	}
	return out
}

// Units returns the total number of scanned units.
func (c Cart) Units() int {
	var n int
	for _, qty := range c {
		if qty > 0 {
			n += qty
		}
	}
	return n
}

// Line is the resolved contribution of one identifier, or of a bundle pair.
type Line struct {
	ID              string          `json:"id"`
	Rule            PromotionKind   `json:"rule"`
	Quantity        int             `json:"quantity"`
	Partner         string          `json:"partner,omitempty"`
	PartnerQuantity int             `json:"partnerQuantity,omitempty"`
	Bundles         int             `json:"bundles,omitempty"`
	Free            int             `json:"free,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
}

// Quote aggregates resolved lines. Subtotal is exact; Total is rounded once.
type Quote struct {
	Lines    []Line          `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    Money           `json:"total"`
}

func (q *Quote) add(l Line) {
	q.Lines = append(q.Lines, l)
	q.Subtotal = q.Subtotal.Add(l.Amount)
}

// Option tunes how a cart is priced.
type Option func(*options)

type options struct {
	strict bool
}

// WithStrict turns the validation layer on: unknown identifiers, invalid
// promotions and negative amounts fail the computation instead of pricing as zero.
func WithStrict(enabled bool) Option {
	return func(o *options) { o.strict = enabled }
}

// Compute prices cart against catalog without mutating either.
//
// Identifiers are walked once in ascending order and each is priced by its
// own rule. A bundle consumes whatever is left of its partner, so a mutual
// pair resolves in one line under the smaller identifier, while a partner
// that sorts first has already been priced by its own rule.
func Compute(catalog *Catalog, cart Cart, opts ...Option) (Quote, error) {
	var cfg options
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	remaining := make(map[string]int, len(cart))
	ids := make([]string, 0, len(cart))
	for id, qty := range cart {
		if qty <= 0 {
			continue
		}
		remaining[id] = qty
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if cfg.strict {
		if err := validateCart(catalog, ids); err != nil {
			return Quote{}, err
		}
	}

	q := Quote{Lines: make([]Line, 0, len(ids)), Subtotal: decimal.Zero}
	for _, id := range ids {
		qty := remaining[id]
		if qty == 0 {
			continue
		}
		item := catalog.Lookup(id)
		if bundles(id, item) {
			q.add(resolveBundle(catalog, id, item, remaining))
			continue
		}
		remaining[id] = 0
		if buy, free, ok := item.BuyXGetY(); ok && buy > 0 && free >= 0 {
			q.add(resolveBuyXGetY(id, item, qty))
			continue
		}
		q.add(Line{ID: id, Rule: PromotionNone, Quantity: qty, Amount: taxed(item.unitPrice, item.tax, qty)})
	}
	q.Total = ToCents(q.Subtotal)
	return q, nil
}

func bundles(id string, item Item) bool {
	partner, _, ok := item.Bundle()
	return ok && partner != "" && partner != id
}

// resolveBundle consumes the item and whatever remains of its partner.
func resolveBundle(catalog *Catalog, id string, item Item, remaining map[string]int) Line {
	partner, price, _ := item.Bundle()
	qa, qb := remaining[id], remaining[partner]
	remaining[id] = 0
	if qb > 0 {
		remaining[partner] = 0
	}

	matched := min(qa, qb)
	amount := price.Mul(decimal.NewFromInt(int64(matched)))
	switch {
	case qa > qb:
		amount = amount.Add(taxed(item.unitPrice, item.tax, qa-qb))
	case qb > qa:
		owner := catalog.Lookup(partner)
		amount = amount.Add(taxed(owner.unitPrice, owner.tax, qb-qa))
	}
	return Line{
		ID:              id,
		Rule:            PromotionBundle,
		Quantity:        qa,
		Partner:         partner,
		PartnerQuantity: qb,
		Bundles:         matched,
		Amount:          amount,
	}
}

// resolveBuyXGetY charges buy units out of every buy+free batch. A trailing
// batch smaller than buy is charged in full.
func resolveBuyXGetY(id string, item Item, qty int) Line {
	buy, free, _ := item.BuyXGetY()
	batch := buy + free
	charged := (qty/batch)*buy + min(qty%batch, buy)
	return Line{
		ID:       id,
		Rule:     PromotionBuyXGetY,
		Quantity: qty,
		Free:     qty - charged,
		Amount:   taxed(item.unitPrice, item.tax, charged),
	}
}

func validateCart(catalog *Catalog, ids []string) error {
	var errs []error
	for _, id := range ids {
		item, ok := catalog.Get(id)
		if !ok {
			errs = append(errs, fmt.Errorf("scanned %q: %w", id, ErrUnknownIdentifier))
			continue
		}
		if err := ValidateItem(item); err != nil {
			errs = append(errs, err)
		}
		if partner, _, ok := item.Bundle(); ok && partner != "" && partner != id {
			if _, exists := catalog.Get(partner); !exists {
				errs = append(errs, fmt.Errorf("item %q: bundle partner %q: %w", id, partner, ErrUnknownIdentifier))
			}
		}
	}
	return errors.Join(errs...)
}

// Checkout accumulates scans against a catalog snapshot.
//
// A Checkout is not safe for concurrent use; callers serialise access.
type Checkout struct {
	catalog *Catalog
	cart    Cart
	opts    []Option
}

// New binds a checkout to a copy of catalog. Later catalog edits are not visible.
func New(catalog *Catalog, opts ...Option) *Checkout {
	return &Checkout{
		catalog: catalog.Clone(),
		cart:    make(Cart),
		opts:    opts,
	}
}

// Scan records one unit of id. Unknown identifiers are accepted.
func (c *Checkout) Scan(id string) {
	c.cart[id]++
}

// ScanQuantity records qty units of id at once.
func (c *Checkout) ScanQuantity(id string, qty int) {
	c.cart.Add(id, qty)
}

// Cart returns a copy of the pending quantities.
func (c *Checkout) Cart() Cart {
	return c.cart.Clone()
}

// Reset empties the cart.
func (c *Checkout) Reset() {
	c.cart = make(Cart)
}

// Quote prices the whole cart. It does not consume scans, so repeated calls
// return the same result until more items are scanned.
func (c *Checkout) Quote() (Quote, error) {
	return Compute(c.catalog, c.cart, c.opts...)
}

// Total returns the cart total in cents.
func (c *Checkout) Total() (Money, error) {
	q, err := c.Quote()
	if err != nil {
		return 0, err
	}
	return q.Total, nil
}
