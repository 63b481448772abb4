package services

import (
	"context"
	"time"

	"storefront/internal/domain"
	"storefront/internal/infra/rabbitmq"
	"storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService is the read/admin surface over the settlement engine's
// persisted state. Queries are pure projections; the admin mutations
// (fulfillment status, deletion) never touch stock or balance.
type OrderService struct {
	orders    repository.OrderRepository
	ledger    repository.LedgerRepository
	publisher rabbitmq.PublisherInterface
	log       *zap.Logger
	now       func() time.Time
}

func NewOrderService(orders repository.OrderRepository, ledger repository.LedgerRepository, publisher rabbitmq.PublisherInterface, log *zap.Logger) *OrderService {
	return &OrderService{
		orders:    orders,
		ledger:    ledger,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

func (s *OrderService) List(ctx context.Context, userID uint64, isAdmin bool, f repository.OrderListFilter) ([]domain.Order, int64, error) {
	if !isAdmin {
		f.UserID = &userID
	}
	return s.orders.List(ctx, f)
}

func (s *OrderService) Get(ctx context.Context, userID uint64, isAdmin bool, orderID uint64) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID && !isAdmin {
		return nil, ErrForbidden
	}
	return order, nil
}

// GetStatus is owner-only regardless of role.
func (s *OrderService) GetStatus(ctx context.Context, userID, orderID uint64) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	return order, nil
}

// Delete removes a pending order and its items. Paid orders are
// immutable here: settled money and stock must keep their audit trail.
func (s *OrderService) Delete(ctx context.Context, userID uint64, isAdmin bool, orderID uint64) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.UserID != userID && !isAdmin {
		return ErrForbidden
	}
	if order.IsPaid() {
		return ErrOrderPaidImmutable
	}
	return s.orders.Delete(ctx, order)
}

// UpdateStatus is the admin-only fulfillment transition
// (paid/processing → completed, or cancellation before completion).
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint64, status domain.OrderStatus) (*domain.Order, error) {
	switch status {
	case domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusCancelled:
	default:
		return nil, ErrInvalidStatus
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	// completed and cancelled are terminal; clients may already have
	// acted on either, so neither can be left.
	if order.Status == domain.StatusCompleted && status != domain.StatusCompleted {
		return nil, ErrInvalidStatus
	}
	if order.Status == domain.StatusCancelled && status != domain.StatusCancelled {
		return nil, ErrInvalidStatus
	}

	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}

	if status == domain.StatusCancelled && s.publisher != nil {
		evt := domain.OrderCancelledEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			CancelledAt: s.now(),
		}
		go func() {
			if err := s.publisher.Publish(context.Background(), "order.cancelled", evt); err != nil {
				s.log.Warn("event publish failed", zap.Error(err))
			}
		}()
	}

	return s.orders.FindByID(ctx, orderID)
}

func (s *OrderService) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	user, err := s.ledger.FindUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if user == nil {
		return decimal.Zero, ErrUserNotFound
	}
	return user.Balance, nil
}
