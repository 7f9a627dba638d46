package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

type CartLine struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"product_id"`
	Product   ProductSnapshot    `bson:"product" json:"product"`
	Quantity  int                `bson:"qty" json:"qty"`
}

type Cart struct {
	Lines         []CartLine `bson:"products" json:"products"`
	ItemsPrice    float64    `bson:"itemsPrice" json:"itemsPrice"`
	ShippingPrice float64    `bson:"shippingPrice" json:"shippingPrice"`
	TaxPrice      float64    `bson:"taxPrice" json:"taxPrice"`
	TotalPrice    float64    `bson:"totalPrice" json:"totalPrice"`
}

// IndexOf returns the position of the line for productID, or -1.
func (c *Cart) IndexOf(productID primitive.ObjectID) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) ProductIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (c *Cart) RecomputeTotals() {
	amounts := make([]LineAmount, 0, len(c.Lines))
	for _, l := range c.Lines {
		amounts = append(amounts, LineAmount{Price: l.Product.Price, Quantity: l.Quantity})
	}
	c.SetTotals(ComputeTotals(amounts))
}

func (c *Cart) SetTotals(t Totals) {
	c.ItemsPrice = t.ItemsPrice
	c.ShippingPrice = t.ShippingPrice
	c.TaxPrice = t.TaxPrice
	c.TotalPrice = t.TotalPrice
}

func (c *Cart) Totals() Totals {
	return Totals{
		ItemsPrice:    c.ItemsPrice,
		ShippingPrice: c.ShippingPrice,
		TaxPrice:      c.TaxPrice,
		TotalPrice:    c.TotalPrice,
	}
}

func (c *Cart) Clear() {
	c.Lines = []CartLine{}
	c.SetTotals(Totals{})
}

// Clone returns a copy whose line slice can be mutated without touching c.
func (c Cart) Clone() Cart {
	out := c
	out.Lines = make([]CartLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	return out
}
