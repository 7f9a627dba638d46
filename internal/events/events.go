package events

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const TopicOrderPlaced = "order-placed"

type OrderPlacedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"qty"`
}

type OrderPlaced struct {
	EventID    string            `json:"event_id"`
	OrderID    string            `json:"order_id"`
	UserID     string            `json:"user_id"`
	Items      []OrderPlacedItem `json:"items"`
	TotalPrice float64           `json:"total_price"`
	PlacedAt   time.Time         `json:"placed_at"`
}

// NewOrderPlaced builds the event for a persisted order.
func NewOrderPlaced(order *domain.Order) OrderPlaced {
	items := make([]OrderPlacedItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, OrderPlacedItem{ProductID: it.ProductID.Hex(), Quantity: it.Quantity})
	}
	return OrderPlaced{
		EventID:    uuid.NewString(),
		OrderID:    order.ID.Hex(),
		UserID:     order.UserID.Hex(),
		Items:      items,
		TotalPrice: order.TotalPrice,
		PlacedAt:   order.CreatedAt,
	}
}

type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlaced) error
	Close() error
}
