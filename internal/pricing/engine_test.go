package pricing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-pricing/internal/pricing"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func scanAll(c *pricing.Checkout, ids ...string) {
	for _, id := range ids {
		c.Scan(id)
	}
}

func referenceCatalog() *pricing.Catalog {
	return pricing.NewCatalog(
		pricing.NewBuyXGetYItem("1983", d("1.99"), decimal.Zero, 2, 1),        // toothbrush
		pricing.NewBundleItem("6732", d("2.49"), "4900", d("4.99"), decimal.Zero), // chips
		pricing.NewBundleItem("4900", d("3.49"), "6732", d("4.99"), decimal.Zero), // salsa
		pricing.NewPlainItem("8873", d("2.49"), decimal.Zero),                     // milk
		pricing.NewPlainItem("0923", d("15.49"), d("0.0925")),                     // wine
	)
}

func TestReferenceBasket(t *testing.T) {
	c := pricing.New(referenceCatalog())
	scanAll(c, "1983", "4900", "8873", "6732", "0923", "1983", "1983", "1983")

	total, err := c.Total()
	require.NoError(t, err)
	require.EqualValues(t, 3037, total)
}

func TestPlainTaxedItem(t *testing.T) {
	c := pricing.New(referenceCatalog())
	c.Scan("0923")

	total, err := c.Total()
	require.NoError(t, err)
	// 15.49 * 1.0925 = 16.922825
	require.EqualValues(t, 1692, total)
}

func TestPlainItems(t *testing.T) {
	catalog := pricing.NewCatalog(
		pricing.NewPlainItem("0000", d("2.23"), decimal.Zero),
		pricing.NewPlainItem("1111", d("8.00"), decimal.Zero),
		pricing.NewPlainItem("2222", d("0.49"), decimal.Zero),
		pricing.NewPlainItem("3333", d("100.00"), decimal.Zero),
		pricing.NewPlainItem("4444", d("1.00"), decimal.Zero),
		pricing.NewPlainItem("5555", d("5.00"), decimal.Zero),
	)
	c := pricing.New(catalog)
	scanAll(c, "0000", "1111", "2222", "3333", "4444", "5555")

	total, err := c.Total()
	require.NoError(t, err)
	require.EqualValues(t, 11672, total)
}

func TestBuyXGetY(t *testing.T) {
	catalog := pricing.NewCatalog(
		pricing.NewBuyXGetYItem("0000", d("1.00"), decimal.Zero, 1, 2),
		pricing.NewBuyXGetYItem("1111", d("1.00"), decimal.Zero, 1, 2),
		pricing.NewBuyXGetYItem("2222", d("1.00"), decimal.Zero, 1, 1),
		pricing.NewBuyXGetYItem("3333", d("1.00"), decimal.Zero, 3, 2),
		pricing.NewBuyXGetYItem("4444", d("1.00"), d("0.1"), 100, 1),
	)

	t.Run("exact deal", func(t *testing.T) {
		c := pricing.New(catalog)
		scanAll(c, "0000", "0000", "0000")
		total, err := c.Total()
		require.NoError(t, err)
		require.EqualValues(t, 100, total)
	})

	t.Run("mixed basket", func(t *testing.T) {
		c := pricing.New(catalog)
		c.ScanQuantity("0000", 3) // $1
		c.ScanQuantity("1111", 5) // $2, free items forgotten on the second batch
		c.ScanQuantity("2222", 5) // $3
		c.ScanQuantity("3333", 6) // $4
		c.Scan("4444")            // $1.10, deal not reached
		total, err := c.Total()
		require.NoError(t, err)
		require.EqualValues(t, 1110, total)
	})

	t.Run("free units are reported", func(t *testing.T) {
		c := pricing.New(catalog)
		c.ScanQuantity("3333", 6)
		q, err := c.Quote()
		require.NoError(t, err)
		require.Len(t, q.Lines, 1)
		require.Equal(t, pricing.PromotionBuyXGetY, q.Lines[0].Rule)
		require.Equal(t, 2, q.Lines[0].Free)
	})
}

func TestBuyXGetYChargedUnits(t *testing.T) {
	cases := []struct {
		buy, free, qty, charged int
	}{
		{1, 2, 3, 1},
		{1, 2, 4, 2},
		{2, 1, 4, 3},
		{3, 2, 4, 3},
		{3, 2, 10, 6},
		{3, 2, 9, 6},
		{5, 1, 1_000_000, 833_334},
	}
	for _, tc := range cases {
		catalog := pricing.NewCatalog(pricing.NewBuyXGetYItem("x", d("1"), decimal.Zero, tc.buy, tc.free))
		q, err := pricing.Compute(catalog, pricing.Cart{"x": tc.qty})
		require.NoError(t, err)
		require.EqualValuesf(t, tc.charged*100, q.Total, "buy %d get %d, qty %d", tc.buy, tc.free, tc.qty)
	}
}

func TestBundles(t *testing.T) {
	catalog := pricing.NewCatalog(
		pricing.NewBundleItem("0000", d("5.00"), "1111", d("1.00"), d("0.1")),
		pricing.NewBundleItem("1111", d("5.00"), "0000", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("2222", d("5.00"), "3333", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("3333", d("5.00"), "2222", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("4444", d("5.00"), "5555", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("5555", d("10.00"), "4444", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("6666", d("5.00"), "7777", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("7777", d("10.00"), "6666", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("8888", d("5.00"), "9999", d("1.00"), decimal.Zero),
		pricing.NewBundleItem("9999", d("10.00"), "8888", d("1.00"), decimal.Zero),
	)

	t.Run("one matched bundle", func(t *testing.T) {
		c := pricing.New(catalog)
		scanAll(c, "2222", "3333")
		total, err := c.Total()
		require.NoError(t, err)
		require.EqualValues(t, 100, total)
	})

	t.Run("primary leftover", func(t *testing.T) {
		c := pricing.New(catalog)
		scanAll(c, "4444", "4444", "5555")
		total, err := c.Total()
		require.NoError(t, err)
		require.EqualValues(t, 600, total)
	})

	t.Run("partner leftover uses partner price", func(t *testing.T) {
		c := pricing.New(catalog)
		scanAll(c, "6666", "7777", "7777")
		total, err := c.Total()
		require.NoError(t, err)
		require.EqualValues(t, 1100, total)
	})

	t.Run("no partner scanned", func(t *testing.T) {
		c := pricing.New(catalog)
		scanAll(c, "0000", "0000", "0000")
		total, err := c.Total()
		require.NoError(t, err)
		require.EqualValues(t, 1650, total)
	})

	t.Run("full basket", func(t *testing.T) {
		c := pricing.New(catalog)
		scanAll(c,
			"0000", "0000", "0000",
			"2222", "3333",
			"4444", "4444", "5555",
			"6666", "7777", "7777",
			"8888", "8888", "9999", "9999", "9999", "9999",
		)
		total, err := c.Total()
		require.NoError(t, err)
		require.EqualValues(t, 5650, total)
	})

	t.Run("scan order does not matter", func(t *testing.T) {
		forward := pricing.New(catalog)
		scanAll(forward, "8888", "9999", "9999", "8888", "9999")
		backward := pricing.New(catalog)
		scanAll(backward, "9999", "9999", "9999", "8888", "8888")

		a, err := forward.Total()
		require.NoError(t, err)
		b, err := backward.Total()
		require.NoError(t, err)
		require.Equal(t, a, b)
		require.EqualValues(t, 1200, a)
	})

	t.Run("pair resolves as one line", func(t *testing.T) {
		c := pricing.New(catalog)
		scanAll(c, "9999", "8888")
		q, err := c.Quote()
		require.NoError(t, err)
		require.Len(t, q.Lines, 1)
		require.Equal(t, "8888", q.Lines[0].ID)
		require.Equal(t, "9999", q.Lines[0].Partner)
		require.Equal(t, 1, q.Lines[0].Bundles)
	})
}

func TestQuoteIsRepeatable(t *testing.T) {
	c := pricing.New(referenceCatalog())
	scanAll(c, "1983", "1983", "8873")

	first, err := c.Total()
	require.NoError(t, err)
	second, err := c.Total()
	require.NoError(t, err)
	require.Equal(t, first, second)

	c.Scan("8873")
	third, err := c.Total()
	require.NoError(t, err)
	require.EqualValues(t, first+249, third)
	require.Equal(t, 4, c.Cart().Units())
}

func TestCheckoutSnapshotsCatalog(t *testing.T) {
	catalog := pricing.NewCatalog(pricing.NewPlainItem("a", d("1.00"), decimal.Zero))
	c := pricing.New(catalog)
	catalog.AddItem(pricing.NewPlainItem("a", d("9.00"), decimal.Zero))

	c.Scan("a")
	total, err := c.Total()
	require.NoError(t, err)
	require.EqualValues(t, 100, total)
}

func TestCatalogOverwriteAndLookup(t *testing.T) {
	catalog := pricing.NewCatalog()
	catalog.AddItem(pricing.NewPlainItem("a", d("1.00"), decimal.Zero))
	catalog.AddItem(pricing.NewPlainItem("a", d("2.00"), decimal.Zero))
	require.Equal(t, 1, catalog.Len())
	require.True(t, catalog.Lookup("a").UnitPrice().Equal(d("2.00")))

	missing := catalog.Lookup("zzz")
	require.Empty(t, missing.ID())
	require.True(t, missing.UnitPrice().IsZero())
	require.Equal(t, pricing.PromotionNone, missing.Promotion().Kind)
}

func TestNilCatalogIsReadOnlyAndEmpty(t *testing.T) {
	var nilCatalog *pricing.Catalog
	require.Zero(t, nilCatalog.Len())
	require.Empty(t, nilCatalog.Items())
	_, ok := nilCatalog.Get("a")
	require.False(t, ok)
	require.Empty(t, nilCatalog.Lookup("a").ID())
	require.Zero(t, nilCatalog.Clone().Len())

	q, err := pricing.Compute(nilCatalog, pricing.Cart{"a": 2})
	require.NoError(t, err)
	require.EqualValues(t, 0, q.Total)

	require.Panics(t, func() {
		nilCatalog.AddItem(pricing.NewPlainItem("a", d("1.00"), decimal.Zero))
	})

	var zero pricing.Catalog
	zero.AddItem(pricing.NewPlainItem("a", d("1.00"), decimal.Zero))
	require.Equal(t, 1, zero.Len())
}

func TestPermissiveEdgeCases(t *testing.T) {
	catalog := pricing.NewCatalog(
		pricing.NewBuyXGetYItem("zero-buy", d("1.00"), decimal.Zero, 0, 2),
		pricing.NewBundleItem("self", d("2.00"), "self", d("0.50"), decimal.Zero),
		pricing.NewBundleItem("orphan", d("3.00"), "zz-ghost", d("1.00"), decimal.Zero),
	)

	t.Run("unknown identifier is free", func(t *testing.T) {
		q, err := pricing.Compute(catalog, pricing.Cart{"nope": 4})
		require.NoError(t, err)
		require.EqualValues(t, 0, q.Total)
	})

	t.Run("zero buy count prices plain", func(t *testing.T) {
		q, err := pricing.Compute(catalog, pricing.Cart{"zero-buy": 3})
		require.NoError(t, err)
		require.EqualValues(t, 300, q.Total)
	})

	t.Run("self bundle prices plain", func(t *testing.T) {
		q, err := pricing.Compute(catalog, pricing.Cart{"self": 2})
		require.NoError(t, err)
		require.EqualValues(t, 400, q.Total)
	})

	t.Run("partner missing from catalog is free", func(t *testing.T) {
		q, err := pricing.Compute(catalog, pricing.Cart{"orphan": 1, "zz-ghost": 3})
		require.NoError(t, err)
		require.EqualValues(t, 100, q.Total)
	})
}

func TestOneSidedBundle(t *testing.T) {
	t.Run("partner sorting first keeps its own rule", func(t *testing.T) {
		catalog := pricing.NewCatalog(
			pricing.NewBuyXGetYItem("1", d("1.00"), decimal.Zero, 1, 1),
			pricing.NewBundleItem("2", d("5.00"), "1", d("0.50"), decimal.Zero),
		)
		c := pricing.New(catalog)
		scanAll(c, "1", "1", "2", "2")

		q, err := c.Quote()
		require.NoError(t, err)
		require.EqualValues(t, 1100, q.Total)
		require.Len(t, q.Lines, 2)
		require.Equal(t, pricing.PromotionBuyXGetY, q.Lines[0].Rule)
		require.Equal(t, 1, q.Lines[0].Free)
		require.Equal(t, pricing.PromotionBundle, q.Lines[1].Rule)
		require.Zero(t, q.Lines[1].Bundles)
		require.Zero(t, q.Lines[1].PartnerQuantity)
	})

	t.Run("declaring item sorting first claims the partner", func(t *testing.T) {
		catalog := pricing.NewCatalog(
			pricing.NewBundleItem("1", d("5.00"), "2", d("0.50"), decimal.Zero),
			pricing.NewBuyXGetYItem("2", d("1.00"), decimal.Zero, 1, 1),
		)
		q, err := pricing.Compute(catalog, pricing.Cart{"1": 2, "2": 2})
		require.NoError(t, err)
		require.EqualValues(t, 100, q.Total)
		require.Len(t, q.Lines, 1)
		require.Equal(t, 2, q.Lines[0].Bundles)
	})
}

func TestStrictMode(t *testing.T) {
	catalog := pricing.NewCatalog(
		pricing.NewPlainItem("ok", d("1.00"), decimal.Zero),
		pricing.NewPlainItem("neg", d("-1.00"), decimal.Zero),
		pricing.NewBuyXGetYItem("bad", d("1.00"), decimal.Zero, 0, 1),
		pricing.NewBundleItem("orphan", d("3.00"), "ghost", d("1.00"), decimal.Zero),
	)

	cases := []struct {
		name string
		cart pricing.Cart
		want error
	}{
		{"unknown", pricing.Cart{"nope": 1}, pricing.ErrUnknownIdentifier},
		{"negative", pricing.Cart{"neg": 1}, pricing.ErrNegativePriceOrTax},
		{"promotion", pricing.Cart{"bad": 1}, pricing.ErrInvalidPromotion},
		{"partner", pricing.Cart{"orphan": 1}, pricing.ErrUnknownIdentifier},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pricing.Compute(catalog, tc.cart, pricing.WithStrict(true))
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	c := pricing.New(catalog, pricing.WithStrict(true))
	c.Scan("ok")
	total, err := c.Total()
	require.NoError(t, err)
	require.EqualValues(t, 100, total)
}

func TestCatalogValidate(t *testing.T) {
	require.NoError(t, referenceCatalog().Validate())

	catalog := referenceCatalog()
	catalog.AddItem(pricing.NewBundleItem("6732", d("2.49"), "missing", d("4.99"), decimal.Zero))
	err := catalog.Validate()
	require.ErrorIs(t, err, pricing.ErrUnknownIdentifier)
}

func TestToCentsRoundsHalfAwayFromZero(t *testing.T) {
	require.EqualValues(t, 13, pricing.ToCents(d("0.125")))
	require.EqualValues(t, -13, pricing.ToCents(d("-0.125")))
	require.EqualValues(t, 12, pricing.ToCents(d("0.1249")))
	require.True(t, pricing.FromCents(3037).Equal(d("30.37")))
}
