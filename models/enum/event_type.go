package enum

// EventType 表示購物車與商品目錄的事件類型
type EventType string

const (
	EventTypeCartItemAdded         EventType = "cart.item.added"
	EventTypeCartItemUpdated       EventType = "cart.item.updated"
	EventTypeCartItemRemoved       EventType = "cart.item.removed"
	EventTypeCartCleared           EventType = "cart.cleared"
	EventTypeCatalogProductDeleted EventType = "catalog.product.deleted"
)

// IsCart reports whether the event concerns a session cart.
func (t EventType) IsCart() bool {
	switch t {
	case EventTypeCartItemAdded, EventTypeCartItemUpdated, EventTypeCartItemRemoved, EventTypeCartCleared:
		return true
	}
	return false
}
