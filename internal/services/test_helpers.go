package services

import (
	"time"

	"storefront/internal/domain"
	"storefront/internal/mocks"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type settlementFixture struct {
	orders  *mocks.MockOrderRepository
	ledger  *mocks.MockLedgerRepository
	gateway *mocks.MockGatewayClient
	svc     *SettlementService
}

func newSettlementFixture() *settlementFixture {
	orders := &mocks.MockOrderRepository{}
	ledger := &mocks.MockLedgerRepository{}
	orders.Ledger = ledger
	gateway := &mocks.MockGatewayClient{}

	svc := NewSettlementService(orders, ledger, gateway, nil, zap.NewNop())
	svc.now = func() time.Time { return testNow }

	return &settlementFixture{orders: orders, ledger: ledger, gateway: gateway, svc: svc}
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decimalEq(v int64) func(decimal.Decimal) bool {
	want := decimal.NewFromInt(v)
	return func(d decimal.Decimal) bool { return d.Equal(want) }
}

func testProduct(id uint64, name string, unitPrice, stock int64) domain.Product {
	return domain.Product{ID: id, Name: name, Price: price(unitPrice), Stock: stock}
}

func pendingOrder(id, userID uint64, total int64, items ...domain.OrderItem) *domain.Order {
	return &domain.Order{
		ID:            id,
		UserID:        userID,
		TotalPrice:    price(total),
		PaymentMethod: domain.PaymentMethodXendit,
		PaymentStatus: domain.PaymentPending,
		Status:        domain.StatusPending,
		Items:         items,
		CreatedAt:     testNow,
	}
}

func paidOrder(id, userID uint64, total int64) *domain.Order {
	o := pendingOrder(id, userID, total)
	paidAt := testNow
	o.PaymentStatus = domain.PaymentPaid
	o.Status = domain.StatusProcessing
	o.PaidAt = &paidAt
	return o
}

func item(productID uint64, qty, unitPrice int64) domain.OrderItem {
	return domain.OrderItem{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: price(unitPrice),
		LineTotal: price(unitPrice * qty),
	}
}
