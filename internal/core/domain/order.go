package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserOrder is a snapshot of a cart at submission time. It is never mutated.
type UserOrder struct {
	ID        int64
	User      UserRef
	Items     []Item
	Total     decimal.Decimal
	CreatedAt time.Time
}

// NewOrderFromCart copies the cart's entries into a new slice so later cart
// mutations cannot reach the order.
func NewOrderFromCart(user User, cart Cart, now time.Time) UserOrder {
	items := make([]Item, len(cart.Items))
	copy(items, cart.Items)

	return UserOrder{
		User:      user.Ref(),
		Items:     items,
		Total:     cart.Total,
		CreatedAt: now,
	}
}

// OrderEvent is published after an order has been stored.
type OrderEvent struct {
	OrderID     int64           `json:"order_id"`
	Username    string          `json:"username"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

func (o UserOrder) Event() OrderEvent {
	return OrderEvent{
		OrderID:     o.ID,
		Username:    o.User.Username,
		Total:       o.Total,
		ItemCount:   len(o.Items),
		SubmittedAt: o.CreatedAt,
	}
}
