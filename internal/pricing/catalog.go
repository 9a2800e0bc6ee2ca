package pricing

import (
	"errors"
	"fmt"
	"sort"
)

// Catalog maps identifiers to their pricing entries. The zero value is an
// empty catalog ready for AddItem. A nil *Catalog is a read-only empty
// catalog: readers and Compute accept it, AddItem panics.
type Catalog struct {
	items map[string]Item
}

// NewCatalog builds a catalog from the provided items; later duplicates win.
func NewCatalog(items ...Item) *Catalog {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for _, it := range items {
		c.AddItem(it)
	}
	return c
}

// AddItem inserts the item or overwrites the entry with the same identifier.
// c must not be nil.
func (c *Catalog) AddItem(item Item) {
	if c.items == nil {
		c.items = make(map[string]Item)
	}
	c.items[item.id] = item
}

// Lookup returns the entry for id, or the zero Item when it is absent.
func (c *Catalog) Lookup(id string) Item {
	it, _ := c.Get(id)
	return it
}

// Get returns the entry for id and whether it exists.
func (c *Catalog) Get(id string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	it, ok := c.items[id]
	return it, ok
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Items returns every entry ordered by identifier.
func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Clone returns an independent copy. Items are values so a shallow map copy suffices.
func (c *Catalog) Clone() *Catalog {
	if c == nil {
		return NewCatalog()
	}
	out := &Catalog{items: make(map[string]Item, len(c.items))}
	for id, it := range c.items {
		out.items[id] = it
	}
	return out
}

// Validate checks every entry and that bundle partners exist.
func (c *Catalog) Validate() error {
	var errs []error
	for _, it := range c.Items() {
		if err := ValidateItem(it); err != nil {
			errs = append(errs, err)
		}
		if partner, _, ok := it.Bundle(); ok && partner != "" {
			if _, exists := c.Get(partner); !exists {
				errs = append(errs, fmt.Errorf("item %q: bundle partner %q: %w", it.id, partner, ErrUnknownIdentifier))
			}
		}
	}
	return errors.Join(errs...)
}
