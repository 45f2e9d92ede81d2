package models

import (
	"time"

	"gofalre.io/storefront/models/enum"
)

// ToastDelay is how long a toast stays visible when auto-hide is on.
const ToastDelay = 3 * time.Second

// Toast 代表頁面上的短暫提示訊息
type Toast struct {
	Message  string
	Category enum.ToastCategory
	Delay    time.Duration
	Autohide bool
}

func NewToast(message string, category enum.ToastCategory) *Toast {
	return &Toast{
		Message:  message,
		Category: category.Normalize(),
		Delay:    ToastDelay,
		Autohide: true,
	}
}
