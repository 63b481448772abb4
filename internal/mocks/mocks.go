package mocks

import (
	"context"
	"time"

	"storefront/internal/domain"
	"storefront/internal/infra/xendit"
	"storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockOrderRepository struct {
	mock.Mock
	// Ledger is handed to WithTx callbacks so service code sees the
	// same pair of repositories it gets in production transactions.
	Ledger repository.LedgerRepository
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateItems(ctx context.Context, items []domain.OrderItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByInvoiceID(ctx context.Context, invoiceID string) (*domain.Order, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, f repository.OrderListFilter) ([]domain.Order, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) SetInvoice(ctx context.Context, id uint64, invoiceID, invoiceURL string) error {
	args := m.Called(ctx, id, invoiceID, invoiceURL)
	return args.Error(0)
}

func (m *MockOrderRepository) SetPaymentMethod(ctx context.Context, id uint64, method domain.PaymentMethod) error {
	args := m.Called(ctx, id, method)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id uint64, status domain.OrderStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkPaid(ctx context.Context, id uint64, paidAt time.Time) error {
	args := m.Called(ctx, id, paidAt)
	return args.Error(0)
}

func (m *MockOrderRepository) Delete(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// WithTx is a transparent passthrough: the mock plays both the outer
// repository and its own transactional view.
func (m *MockOrderRepository) WithTx(ctx context.Context, fn func(orders repository.OrderRepository, ledger repository.LedgerRepository) error) error {
	return fn(m, m.Ledger)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) FindProducts(ctx context.Context, ids []uint64) (map[uint64]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint64]domain.Product), args.Error(1)
}

func (m *MockLedgerRepository) FindUser(ctx context.Context, id uint64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockLedgerRepository) DecrementStock(ctx context.Context, productID uint64, qty int64) (bool, error) {
	args := m.Called(ctx, productID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) DecrementBalance(ctx context.Context, userID uint64, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Bool(0), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreateInvoice(ctx context.Context, p xendit.CreateInvoiceParams) (*xendit.Invoice, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*xendit.Invoice), args.Error(1)
}

func (m *MockGatewayClient) GetInvoice(ctx context.Context, invoiceID string) (*xendit.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*xendit.Invoice), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	args := m.Called(ctx, routingKey, data)
	return args.Error(0)
}
