package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeStore is an in-memory OrderRepository + LedgerRepository whose
// WithTx holds a mutex for the whole callback, mimicking the row-lock
// serialization the mysql store provides. It does not roll back, which
// is fine here: every guarded failure happens before any mutation.
type fakeStore struct {
	mu       sync.Mutex
	orders   map[uint64]*domain.Order
	items    map[uint64][]domain.OrderItem
	products map[uint64]*domain.Product
	users    map[uint64]*domain.User
	nextID   uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   map[uint64]*domain.Order{},
		items:    map[uint64][]domain.OrderItem{},
		products: map[uint64]*domain.Product{},
		users:    map[uint64]*domain.User{},
	}
}

func (f *fakeStore) addProduct(p domain.Product) { cp := p; f.products[p.ID] = &cp }
func (f *fakeStore) addUser(u domain.User)       { cp := u; f.users[u.ID] = &cp }

func (f *fakeStore) snapshot(id uint64) *domain.Order {
	o, ok := f.orders[id]
	if !ok {
		return nil
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), f.items[id]...)
	return &cp
}

func (f *fakeStore) Create(_ context.Context, order *domain.Order) error {
	f.nextID++
	order.ID = f.nextID
	cp := *order
	cp.Items = nil
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeStore) CreateItems(_ context.Context, items []domain.OrderItem) error {
	for _, it := range items {
		f.items[it.OrderID] = append(f.items[it.OrderID], it)
	}
	return nil
}

func (f *fakeStore) FindByID(_ context.Context, id uint64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(id), nil
}

func (f *fakeStore) FindByIDForUpdate(_ context.Context, id uint64) (*domain.Order, error) {
	return f.snapshot(id), nil
}

func (f *fakeStore) FindByInvoiceID(_ context.Context, invoiceID string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, o := range f.orders {
		if o.InvoiceID != nil && *o.InvoiceID == invoiceID {
			return f.snapshot(id), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) List(_ context.Context, _ repository.OrderListFilter) ([]domain.Order, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) SetInvoice(_ context.Context, id uint64, invoiceID, invoiceURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.InvoiceID = &invoiceID
	o.InvoiceURL = &invoiceURL
	return nil
}

func (f *fakeStore) SetPaymentMethod(_ context.Context, id uint64, method domain.PaymentMethod) error {
	f.orders[id].PaymentMethod = method
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id uint64, status domain.OrderStatus) error {
	f.orders[id].Status = status
	return nil
}

func (f *fakeStore) MarkPaid(_ context.Context, id uint64, paidAt time.Time) error {
	o := f.orders[id]
	o.PaymentStatus = domain.PaymentPaid
	o.Status = domain.StatusProcessing
	o.PaidAt = &paidAt
	return nil
}

func (f *fakeStore) Delete(_ context.Context, order *domain.Order) error {
	delete(f.orders, order.ID)
	delete(f.items, order.ID)
	return nil
}

func (f *fakeStore) WithTx(_ context.Context, fn func(orders repository.OrderRepository, ledger repository.LedgerRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f, f)
}

func (f *fakeStore) FindProducts(_ context.Context, ids []uint64) (map[uint64]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[uint64]domain.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = *p
		}
	}
	return out, nil
}

func (f *fakeStore) FindUser(_ context.Context, id uint64) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) DecrementStock(_ context.Context, productID uint64, qty int64) (bool, error) {
	p, ok := f.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (f *fakeStore) DecrementBalance(_ context.Context, userID uint64, amount decimal.Decimal) (bool, error) {
	u, ok := f.users[userID]
	if !ok || u.Balance.LessThan(amount) {
		return false, nil
	}
	u.Balance = u.Balance.Sub(amount)
	return true, nil
}

var (
	_ repository.OrderRepository  = (*fakeStore)(nil)
	_ repository.LedgerRepository = (*fakeStore)(nil)
)

func newFakeSettlement(store *fakeStore) *SettlementService {
	svc := NewSettlementService(store, store, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func seedPendingOrder(store *fakeStore, userID uint64, productID uint64, qty, unitPrice int64) uint64 {
	ord := &domain.Order{
		UserID:        userID,
		TotalPrice:    price(unitPrice * qty),
		PaymentMethod: domain.PaymentMethodXendit,
		PaymentStatus: domain.PaymentPending,
		Status:        domain.StatusPending,
	}
	_ = store.Create(context.Background(), ord)
	_ = store.CreateItems(context.Background(), []domain.OrderItem{{
		OrderID:   ord.ID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: price(unitPrice),
		LineTotal: price(unitPrice * qty),
	}})
	return ord.ID
}

func TestConcurrentPayBalance_ExactlyOneSettles(t *testing.T) {
	// Balance exactly covers the order once. Of two racing Pay calls,
	// the loser must see AlreadyPaid, not InsufficientBalance: the
	// winner's commit is visible before the loser's guard runs.
	store := newFakeStore()
	store.addProduct(testProduct(1, "Keyboard", 100, 10))
	store.addUser(domain.User{ID: 7, Email: "buyer@example.com", Balance: price(200)})
	orderID := seedPendingOrder(store, 7, 1, 2, 100)

	svc := newFakeSettlement(store)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Pay(context.Background(), 7, false, orderID, ChannelBalance)
		}(i)
	}
	wg.Wait()

	var succeeded, alreadyPaid int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyPaid):
			alreadyPaid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, alreadyPaid)

	assert.True(t, store.users[7].Balance.IsZero())
	assert.Equal(t, int64(8), store.products[1].Stock)
}

func TestConcurrentPayBalance_BalanceNeverNegative(t *testing.T) {
	// Three distinct 100-unit orders against a 250 balance: exactly
	// the affordable number settles and the balance stays >= 0.
	store := newFakeStore()
	store.addProduct(testProduct(1, "Keyboard", 100, 100))
	store.addUser(domain.User{ID: 7, Email: "buyer@example.com", Balance: price(250)})

	svc := newFakeSettlement(store)

	orderIDs := []uint64{
		seedPendingOrder(store, 7, 1, 1, 100),
		seedPendingOrder(store, 7, 1, 1, 100),
		seedPendingOrder(store, 7, 1, 1, 100),
	}

	errs := make([]error, len(orderIDs))
	var wg sync.WaitGroup
	for i, id := range orderIDs {
		wg.Add(1)
		go func(i int, id uint64) {
			defer wg.Done()
			_, _, errs[i] = svc.Pay(context.Background(), 7, false, id, ChannelBalance)
		}(i, id)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.True(t, store.users[7].Balance.Equal(price(50)))
	assert.False(t, store.users[7].Balance.IsNegative())
}

func TestPriceImmutability(t *testing.T) {
	// A later catalog price change must not leak into the snapshot.
	store := newFakeStore()
	store.addProduct(testProduct(1, "Keyboard", 100, 10))
	store.addUser(domain.User{ID: 7, Email: "buyer@example.com", Balance: price(1000)})

	svc := newFakeSettlement(store)
	order, _, err := svc.CreateOrder(context.Background(), 7,
		[]CreateOrderItemInput{{ProductID: 1, Quantity: 2}}, domain.PaymentMethodBalance)
	assert.NoError(t, err)

	store.products[1].Price = price(999)

	reloaded, err := store.FindByID(context.Background(), order.ID)
	assert.NoError(t, err)
	assert.True(t, reloaded.TotalPrice.Equal(price(200)))
	assert.True(t, reloaded.Items[0].UnitPrice.Equal(price(100)))
}

func TestIdempotentSettlement_RepeatedConfirmations(t *testing.T) {
	// N confirmations of one invoice mutate stock exactly once; the
	// final state equals the state after the first call.
	store := newFakeStore()
	store.addProduct(testProduct(1, "Keyboard", 100, 10))
	store.addUser(domain.User{ID: 7, Email: "buyer@example.com", Balance: price(0)})
	orderID := seedPendingOrder(store, 7, 1, 2, 100)
	_ = store.SetInvoice(context.Background(), orderID, "inv-1", "https://checkout.example/inv-1")

	svc := newFakeSettlement(store)

	first, err := svc.Simulate(context.Background(), "inv-1")
	assert.NoError(t, err)
	assert.True(t, first.IsPaid())
	firstPaidAt := *first.PaidAt

	for i := 0; i < 4; i++ {
		_, err := svc.Simulate(context.Background(), "inv-1")
		assert.ErrorIs(t, err, ErrAlreadyPaid)
	}

	assert.Equal(t, int64(8), store.products[1].Stock)
	final, _ := store.FindByID(context.Background(), orderID)
	assert.True(t, final.IsPaid())
	assert.Equal(t, firstPaidAt, *final.PaidAt)
}
