package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderCreatedEvent struct {
	OrderID       uint64          `json:"order_id"`
	UserID        uint64          `json:"user_id"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderPaidEvent.ShortItems lists product ids whose stock could not be
// decremented at settlement time; the order is paid regardless.
type OrderPaidEvent struct {
	OrderID    uint64          `json:"order_id"`
	UserID     uint64          `json:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Source     string          `json:"source"`
	ShortItems []uint64        `json:"short_items,omitempty"`
	PaidAt     time.Time       `json:"paid_at"`
}

type OrderCancelledEvent struct {
	OrderID     uint64    `json:"order_id"`
	UserID      uint64    `json:"user_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}
