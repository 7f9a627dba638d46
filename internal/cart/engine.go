// Package cart keeps a user's cart consistent with the live catalog.
//
// Every operation works on an in-memory *domain.Cart; persisting the result
// is the caller's job. Reconcile must run after any mutation and before the
// cart is shown, and it always leaves the aggregate price fields in step with
// the lines.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProductLookup is the slice of the catalog the engine reads.
type ProductLookup interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error)
}

type Engine struct {
	products ProductLookup
}

func NewEngine(products ProductLookup) *Engine {
	return &Engine{products: products}
}

// Report describes what Reconcile changed.
type Report struct {
	Dropped       int
	Clamped       int
	Refreshed     int
	TotalsChanged bool
}

func (r Report) Changed() bool {
	return r.Dropped > 0 || r.Clamped > 0 || r.Refreshed > 0 || r.TotalsChanged
}

// AddLine puts a new line at the front of the cart. Quantities are never
// merged into an existing line.
func (e *Engine) AddLine(ctx context.Context, c *domain.Cart, productID primitive.ObjectID, qty int) error {
	if qty <= 0 {
		return apperr.ErrInvalidQuantity
	}

	product, err := e.getProduct(ctx, productID)
	if err != nil {
		return err
	}

	if qty > product.Quantity {
		return apperr.ErrStockExceeded
	}

	if c.IndexOf(productID) >= 0 {
		return apperr.ErrAlreadyInCart
	}

	line := domain.CartLine{
		ProductID: productID,
		Product:   product.Snapshot(),
		Quantity:  qty,
	}
	c.Lines = append([]domain.CartLine{line}, c.Lines...)
	return nil
}

func (e *Engine) RemoveLine(c *domain.Cart, productID primitive.ObjectID) error {
	i := c.IndexOf(productID)
	if i < 0 {
		return apperr.ErrLineNotFound
	}
	c.Lines = append(c.Lines[:i:i], c.Lines[i+1:]...)
	return nil
}

// SetQuantity changes the quantity of an existing line; zero removes it.
func (e *Engine) SetQuantity(ctx context.Context, c *domain.Cart, productID primitive.ObjectID, qty int) error {
	if qty == 0 {
		return e.RemoveLine(c, productID)
	}

	i := c.IndexOf(productID)
	if i < 0 {
		return apperr.ErrLineNotFound
	}

	product, err := e.getProduct(ctx, productID)
	if err != nil {
		return err
	}

	if qty < 0 || qty > product.Quantity {
		return apperr.ErrStockExceeded
	}

	c.Lines[i].Quantity = qty
	c.Lines[i].Product = product.Snapshot()
	return nil
}

// Reconcile re-reads every referenced product, drops lines whose product is
// gone, refreshes snapshots, clamps quantities to stock (dropping lines with
// no stock left) and recomputes the totals. Running it twice without catalog
// changes in between yields the same cart.
func (e *Engine) Reconcile(ctx context.Context, c *domain.Cart) (Report, error) {
	var report Report
	before := c.Totals()

	products, err := e.products.GetProducts(ctx, c.ProductIDs())
	if err != nil {
		return report, fmt.Errorf("failed to load cart products: %w", err)
	}

	kept := make([]domain.CartLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			report.Dropped++
			continue
		}

		snapshot := product.Snapshot()
		if snapshot != line.Product {
			line.Product = snapshot
			report.Refreshed++
		}

		if line.Quantity > product.Quantity {
			line.Quantity = product.Quantity
			report.Clamped++
		}
		if line.Quantity <= 0 {
			report.Dropped++
			continue
		}

		kept = append(kept, line)
	}

	c.Lines = kept
	RecomputeTotals(c)
	report.TotalsChanged = c.Totals() != before

	return report, nil
}

func RecomputeTotals(c *domain.Cart) {
	c.RecomputeTotals()
}

func (e *Engine) Clear(c *domain.Cart) {
	c.Clear()
}

func (e *Engine) getProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	product, err := e.products.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperr.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to load product %s: %w", id.Hex(), err)
	}
	return product, nil
}
