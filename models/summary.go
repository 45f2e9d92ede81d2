package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// CartSummary is the aggregate returned after a cart mutation.
type CartSummary struct {
	Success      bool    `json:"success"`
	CartQuantity int     `json:"cart_quantity"`
	Subtotal     float64 `json:"subtotal"`
	Error        string  `json:"error,omitempty"`
}

// LineUpdate is the summary returned by a quantity update. ItemTotal is the
// new total of the affected line.
type LineUpdate struct {
	CartSummary
	ItemTotal float64 `json:"item_total"`
}

// CartView is the read model rendered on the cart page.
type CartView struct {
	Items    []*CartItemView `json:"items"`
	Quantity int             `json:"cart_quantity"`
	Currency string          `json:"currency"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// CartItemView is one line of the cart page.
type CartItemView struct {
	*CartLine
	Image     string          `json:"image"`
	ShopName  string          `json:"shop_name"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func NewCartSummary(cart *Cart) *CartSummary {
	return &CartSummary{
		Success:      true,
		CartQuantity: cart.Quantity(),
		Subtotal:     Money(cart.Subtotal()),
	}
}

// FormatAmount renders an amount as shown on the cart page: a dollar sign and
// the shortest decimal form of the number, e.g. "$30" or "$59.99".
func FormatAmount(amount float64) string {
	return "$" + strconv.FormatFloat(amount, 'f', -1, 64)
}
