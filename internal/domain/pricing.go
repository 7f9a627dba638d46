package domain

import "github.com/shopspring/decimal"

var (
	freeShippingThreshold = decimal.NewFromInt(100)
	flatShipping          = decimal.NewFromInt(10)
	taxRate               = decimal.RequireFromString("0.15")
)

type LineAmount struct {
	Price    float64
	Quantity int
}

type Totals struct {
	ItemsPrice    float64 `json:"itemsPrice"`
	ShippingPrice float64 `json:"shippingPrice"`
	TaxPrice      float64 `json:"taxPrice"`
	TotalPrice    float64 `json:"totalPrice"`
}

// ComputeTotals prices a list of lines. Shipping is free strictly above 100,
// tax is 15% of the items price, every figure is rounded to 2 decimals.
// No lines means all four totals are zero.
func ComputeTotals(lines []LineAmount) Totals {
	if len(lines) == 0 {
		return Totals{}
	}

	items := decimal.Zero
	for _, l := range lines {
		items = items.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	items = items.Round(2)

	shipping := flatShipping
	if items.GreaterThan(freeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := items.Mul(taxRate).Round(2)
	total := items.Add(tax).Add(shipping).Round(2)

	return Totals{
		ItemsPrice:    items.InexactFloat64(),
		ShippingPrice: shipping.InexactFloat64(),
		TaxPrice:      tax.InexactFloat64(),
		TotalPrice:    total.InexactFloat64(),
	}
}
