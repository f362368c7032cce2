// Package pricing is the single place totals are derived. Handlers and
// services never multiply price by quantity themselves.
package pricing

import (
	"errors"

	"github.com/beanline/coffee_shop/internal/models"
)

// TaxRate is the fixed surcharge applied when a cart becomes an order.
const TaxRate = 0.08

var ErrInvalidPrice = errors.New("pricing: resolved price is missing or not positive")

// ForSize resolves the unit price of an item for a selected size. An empty or
// unrecognized size falls back to the item's base price.
func ForSize(item *models.MenuItem, size string) float64 {
	if size == "" || len(item.Sizes) == 0 {
		return item.BasePrice
	}
	for _, s := range item.Sizes {
		if s.Size == size {
			return s.Price
		}
	}
	return item.BasePrice
}

// AvailableSizes filters the item's size list down to orderable entries.
func AvailableSizes(item *models.MenuItem) []models.Size {
	out := make([]models.Size, 0, len(item.Sizes))
	for _, s := range item.Sizes {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// LineTotal computes a cart or order line total.
func LineTotal(unitPrice float64, quantity int) float64 {
	return unitPrice * float64(quantity)
}

// CartSubtotal sums line totals.
func CartSubtotal(items []models.CartItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.TotalPrice
	}
	return sum
}

// CartQuantity sums line quantities.
func CartQuantity(items []models.CartItem) int {
	var n int
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

// OrderTotals derives tax and grand total from a subtotal.
func OrderTotals(subtotal float64) (tax, total float64) {
	tax = subtotal * TaxRate
	return tax, subtotal + tax
}

// ValidateUnitPrice rejects non-positive prices before any write happens.
func ValidateUnitPrice(p float64) error {
	if p <= 0 {
		return ErrInvalidPrice
	}
	return nil
}
