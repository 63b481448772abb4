package repository

import (
	"context"
	"time"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

type OrderListFilter struct {
	UserID        *uint64
	Status        *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	Search        string
	Limit         int
	Offset        int
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	CreateItems(ctx context.Context, items []domain.OrderItem) error
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	// FindByIDForUpdate locks the order row for the duration of the
	// surrounding transaction; it is the per-order mutual exclusion
	// every settlement funnels through.
	FindByIDForUpdate(ctx context.Context, id uint64) (*domain.Order, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (*domain.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]domain.Order, int64, error)
	SetInvoice(ctx context.Context, id uint64, invoiceID, invoiceURL string) error
	SetPaymentMethod(ctx context.Context, id uint64, method domain.PaymentMethod) error
	UpdateStatus(ctx context.Context, id uint64, status domain.OrderStatus) error
	// MarkPaid flips the order to paid/processing and stamps paid_at.
	MarkPaid(ctx context.Context, id uint64, paidAt time.Time) error

	Delete(ctx context.Context, order *domain.Order) error

	// WithTx runs fn inside one transaction; the repositories passed to
	// fn are bound to that transaction.
	WithTx(ctx context.Context, fn func(orders OrderRepository, ledger LedgerRepository) error) error
}

type LedgerRepository interface {
	FindProducts(ctx context.Context, ids []uint64) (map[uint64]domain.Product, error)
	FindUser(ctx context.Context, id uint64) (*domain.User, error)
	// DecrementStock applies "decrement if stock >= qty" atomically and
	// reports whether the decrement happened.
	DecrementStock(ctx context.Context, productID uint64, qty int64) (bool, error)
	// DecrementBalance applies "decrement if balance >= amount"
	// atomically and reports whether the decrement happened.
	DecrementBalance(ctx context.Context, userID uint64, amount decimal.Decimal) (bool, error)
}
