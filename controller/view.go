package controller

import "gofalre.io/storefront/models"

// View is the page the controller reads intents from and patches with
// server responses. Implementations need not be safe for concurrent use;
// the controller serialises every call.
type View interface {
	// Quantity returns the raw text of the product's quantity field.
	Quantity(productID string) (string, bool)
	SetQuantity(productID string, quantity int)
	SetBadge(quantity int)
	// LineElements returns every fragment showing a line total for the product.
	LineElements(productID string) []LineElement
	SetSubtotal(amount float64)
	SetTotal(amount float64)
	// RemoveLine deletes every element keyed by the product.
	RemoveLine(productID string)
	// Shipping returns the fixed shipping amount shown on the page.
	Shipping() (float64, error)
	ToastContainer() (ToastContainer, bool)
}

type LineElement interface {
	SetItemTotal(amount float64)
}

type ToastContainer interface {
	// Len is the number of notifications currently shown.
	Len() int
	RemoveOldest()
	Append(toast *models.Toast)
}
