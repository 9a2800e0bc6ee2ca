package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value stored in minor units.
type Money = int64

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ToCents rounds an amount to minor units, half away from zero.
func ToCents(amount decimal.Decimal) Money {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back into a decimal amount.
func FromCents(cents Money) decimal.Decimal {
	return decimal.New(cents, -2)
}

func taxed(unitPrice, tax decimal.Decimal, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return unitPrice.Mul(tax.Add(one)).Mul(decimal.NewFromInt(int64(qty)))
}
