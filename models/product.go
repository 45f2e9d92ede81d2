package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 代表商品
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Store       string          `json:"store"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SizeOptions lists the selectable sizes per product category.
// Categories not listed here take no size.
var SizeOptions = map[string][]string{
	"dress":    {"S", "M", "L", "XL", "XXL"},
	"sneakers": {"6", "7", "8", "9", "10"},
	"shoes":    {"6", "7", "8", "9", "10"},
	"slippers": {"6", "7", "8", "9", "10"},
}

func NewProduct() *Product {
	return new(Product)
}

// Sizes returns the size options for the product's category, or nil.
func (p *Product) Sizes() []string {
	return SizeOptions[p.Category]
}

// ValidSize reports whether size is acceptable for the product.
// Products without size options accept any input, which is then dropped.
func (p *Product) ValidSize(size string) bool {
	sizes := p.Sizes()
	if len(sizes) == 0 {
		return true
	}
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}

// SampleProducts returns the demo catalog used by the seed command.
func SampleProducts() []*Product {
	return []*Product{
		{Name: "Wireless Headphones", Price: decimal.RequireFromString("59.99"), Image: "p1.jpg", Description: "High-quality wireless headphones with noise cancellation.", Category: "electronics", Store: "Tech Store"},
		{Name: "Smart Watch", Price: decimal.RequireFromString("99.99"), Image: "p2.jpg", Description: "Stay connected with this sleek smart watch.", Category: "electronics", Store: "Tech Store"},
		{Name: "Bluetooth Speaker", Price: decimal.RequireFromString("39.99"), Image: "p3.jpg", Description: "Portable Bluetooth speaker with rich sound.", Category: "electronics", Store: "Tech Store"},
		{Name: "Red Dress", Price: decimal.RequireFromString("79.99"), Image: "dress1.jpg", Description: "Elegant red dress perfect for any occasion.", Category: "dress", Store: "Fashion Hub"},
		{Name: "Blue Dress", Price: decimal.RequireFromString("69.99"), Image: "dress2.jpg", Description: "Stylish blue dress for casual and formal wear.", Category: "dress", Store: "Fashion Hub"},
		{Name: "Sneakers", Price: decimal.RequireFromString("89.99"), Image: "sneakers1.jpg", Description: "Comfortable sneakers for daily wear.", Category: "sneakers", Store: "Fashion Hub"},
		{Name: "Slippers", Price: decimal.RequireFromString("29.99"), Image: "slippers1.jpg", Description: "Cozy slippers for indoor use.", Category: "slippers", Store: "Fashion Hub"},
	}
}
