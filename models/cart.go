package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
)

// DefaultCartTTL is how long an untouched session cart is kept.
const DefaultCartTTL = 7 * 24 * time.Hour

// Cart 代表以 session 為單位的購物車
type Cart struct {
	SessionID string          `json:"session_id"`
	Currency  stripe.Currency `json:"currency"`
	Lines     []*CartLine     `json:"lines"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// CartLine 代表購物車中的單個商品項目
type CartLine struct {
	ProductID int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
}

func NewCart(sessionID string, currency stripe.Currency, now time.Time) *Cart {
	return &Cart{
		SessionID: sessionID,
		Currency:  currency,
		Lines:     []*CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(DefaultCartTTL),
	}
}

// Total returns price × quantity for the line.
func (l *CartLine) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Add merges quantity into the line with the same product and size,
// or appends a new line.
func (c *Cart) Add(p *Product, quantity int, size string, now time.Time) {
	for _, line := range c.Lines {
		if line.ProductID == p.ID && line.Size == size {
			line.Quantity += quantity
			c.Touch(now)
			return
		}
	}
	c.Lines = append(c.Lines, &CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  quantity,
		Size:      size,
	})
	c.Touch(now)
}

// SetQuantity sets quantity on every line of the product. A quantity <= 0
// removes those lines. The returned item total belongs to the last matching
// line and is zero when nothing matched or the lines were removed.
func (c *Cart) SetQuantity(productID int64, quantity int, now time.Time) decimal.Decimal {
	itemTotal := decimal.Zero
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		if line.ProductID != productID {
			kept = append(kept, line)
			continue
		}
		if quantity <= 0 {
			continue
		}
		line.Quantity = quantity
		itemTotal = line.Total().Round(2)
		kept = append(kept, line)
	}
	c.Lines = kept
	c.Touch(now)
	return itemTotal
}

// Remove drops every line of the product and reports how many were removed.
func (c *Cart) Remove(productID int64, now time.Time) int {
	before := len(c.Lines)
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	c.Lines = kept
	c.Touch(now)
	return before - len(kept)
}

// Retain keeps only lines whose product passes keep and reports whether
// anything was dropped.
func (c *Cart) Retain(keep func(productID int64) bool) bool {
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		if keep(line.ProductID) {
			kept = append(kept, line)
		}
	}
	dropped := len(kept) != len(c.Lines)
	c.Lines = kept
	return dropped
}

// Clear empties the cart.
func (c *Cart) Clear(now time.Time) {
	c.Lines = []*CartLine{}
	c.Touch(now)
}

// Quantity is the number of items across all lines.
func (c *Cart) Quantity() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// Subtotal is the sum of all line totals, rounded to cents.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range c.Lines {
		sum = sum.Add(line.Total())
	}
	return sum.Round(2)
}

// Touch refreshes the modification time and the expiry window.
func (c *Cart) Touch(now time.Time) {
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(DefaultCartTTL)
}

// Money converts a decimal amount to the float used on the wire.
func Money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
