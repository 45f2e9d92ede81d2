package models

import (
	"time"

	"gofalre.io/storefront/models/enum"
)

type Event struct {
	ID        string         `json:"id"`
	Type      enum.EventType `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	ProductID int64          `json:"product_id,omitempty"`
	Quantity  int            `json:"quantity,omitempty"`
	Processed bool           `json:"processed"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
