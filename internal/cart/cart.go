// Package cart holds the shopper's cart and its Redis persistence.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/order/domain"
)

var ErrInvalidQuantity = errors.New("invalid quantity")

// MaxQuantity bounds a single line.
const MaxQuantity = 999

type Line struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Cart is an ordered set of lines keyed by product id. Every line has
// 1 <= Quantity <= MaxQuantity.
type Cart struct {
	ID    string `json:"id"`
	Lines []Line `json:"items"`
}

func (c *Cart) index(productID string) int {
	for i, l := range c.Lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

// Add puts qty units of p in the cart, merging with an existing line.
func (c *Cart) Add(p catalog.Product, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d is below 1", ErrInvalidQuantity, qty)
	}
	i := c.index(p.ID)
	held := 0
	if i >= 0 {
		held = c.Lines[i].Quantity
	}
	if qty > MaxQuantity-held {
		return fmt.Errorf("%w: %s would exceed %d units", ErrInvalidQuantity, p.ID, MaxQuantity)
	}
	if i >= 0 {
		c.Lines[i].Quantity += qty
		c.Lines[i].Product = p
		return nil
	}
	c.Lines = append(c.Lines, Line{Product: p, Quantity: qty})
	return nil
}

func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
// It reports whether the product was in the cart.
func (c *Cart) UpdateQuantity(productID string, qty int) (bool, error) {
	i := c.index(productID)
	if i < 0 {
		return false, nil
	}
	if qty > MaxQuantity {
		return true, fmt.Errorf("%w: %d exceeds %d", ErrInvalidQuantity, qty, MaxQuantity)
	}
	if qty <= 0 {
		c.Remove(productID)
		return true, nil
	}
	c.Lines[i].Quantity = qty
	return true, nil
}

func (c *Cart) Clear() { c.Lines = nil }

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

func (c *Cart) TotalItems() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// OrderLines converts the cart to order lines priced as held in the cart.
func (c *Cart) OrderLines() []domain.Line {
	out := make([]domain.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, domain.Line{ProductID: l.Product.ID, Quantity: l.Quantity, UnitPrice: l.Product.Price})
	}
	return out
}
