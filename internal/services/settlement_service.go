package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/infra/rabbitmq"
	"storefront/internal/infra/xendit"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payment channels accepted by Pay. BALANCE settles against the user
// wallet immediately; everything else opens a gateway invoice.
const ChannelBalance = "BALANCE"

var gatewayChannels = map[string]bool{
	"BCA":       true,
	"MANDIRI":   true,
	"BNI":       true,
	"BRI":       true,
	"DANA":      true,
	"OVO":       true,
	"SHOPEEPAY": true,
}

const (
	settleSourceBalance = "balance"
	settleSourceGateway = "gateway"
)

type CreateOrderItemInput struct {
	ProductID uint64
	Quantity  int64
}

// SettlementService owns every state transition of an order from
// creation to terminal settlement. It is the only component that
// mutates stock or balance as a payment side effect.
type SettlementService struct {
	orders    repository.OrderRepository
	ledger    repository.LedgerRepository
	gateway   xendit.ClientInterface
	publisher rabbitmq.PublisherInterface
	log       *zap.Logger
	now       func() time.Time
}

func NewSettlementService(
	orders repository.OrderRepository,
	ledger repository.LedgerRepository,
	gateway xendit.ClientInterface,
	publisher rabbitmq.PublisherInterface,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		orders:    orders,
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// CreateOrder validates the cart, snapshots prices, persists the order
// and its items atomically, and branches on payment method. The
// balance path settles inside the same transaction, so an unaffordable
// order leaves no rows behind. The gateway path commits first and only
// then opens the invoice; a gateway failure leaves the order pending
// for a later Pay retry.
func (s *SettlementService) CreateOrder(ctx context.Context, userID uint64, items []CreateOrderItemInput, method domain.PaymentMethod) (*domain.Order, string, error) {
	if len(items) == 0 {
		return nil, "", ErrEmptyItems
	}
	if method != domain.PaymentMethodBalance && method != domain.PaymentMethodXendit {
		return nil, "", ErrInvalidPaymentMethod
	}

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, "", ErrQuantityInvalid
		}
		ids = append(ids, it.ProductID)
	}

	products, err := s.ledger.FindProducts(ctx, ids)
	if err != nil {
		return nil, "", err
	}

	var (
		total    = decimal.Zero
		itemRows = make([]domain.OrderItem, 0, len(items))
	)
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, "", fmt.Errorf("%w: id %d", ErrProductNotFound, it.ProductID)
		}
		// Advisory check only; the authoritative guard is the
		// compare-and-decrement at settlement time.
		if p.Stock < it.Quantity {
			return nil, "", fmt.Errorf("%w: %s", ErrInsufficientStock, p.Name)
		}

		line := p.Price.Mul(decimal.NewFromInt(it.Quantity))
		total = total.Add(line)
		itemRows = append(itemRows, domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
			LineTotal: line,
		})
	}

	order := &domain.Order{
		UserID:        userID,
		TotalPrice:    total,
		PaymentMethod: method,
		PaymentStatus: domain.PaymentPending,
		Status:        domain.StatusPending,
		Items:         itemRows,
	}

	var shortItems []uint64
	err = s.orders.WithTx(ctx, func(orders repository.OrderRepository, ledger repository.LedgerRepository) error {
		if err := orders.Create(ctx, order); err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		if err := orders.CreateItems(ctx, order.Items); err != nil {
			return err
		}

		if method == domain.PaymentMethodBalance {
			// The order is invisible to other transactions until this
			// commits, so no row lock is needed here.
			short, err := s.settleLocked(ctx, orders, ledger, order, settleSourceBalance, s.now())
			if err != nil {
				return err
			}
			shortItems = short
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.publishAsync("order.created", domain.OrderCreatedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
		CreatedAt:     order.CreatedAt,
	})

	if method == domain.PaymentMethodBalance {
		s.publishPaid(order, settleSourceBalance, shortItems)
		return order, "", nil
	}

	inv, err := s.createInvoice(ctx, order, products)
	if err != nil {
		// Order stays pending; the caller retries via Pay.
		s.log.Error("invoice creation failed after order commit",
			zap.Uint64("order_id", order.ID), zap.Error(err))
		return order, "", err
	}
	if err := s.orders.SetInvoice(ctx, order.ID, inv.ID, inv.InvoiceURL); err != nil {
		return nil, "", err
	}
	order.InvoiceID = &inv.ID
	order.InvoiceURL = &inv.InvoiceURL

	return order, inv.InvoiceURL, nil
}

// Pay retries or switches payment for an existing pending order:
// BALANCE settles immediately under the order row lock, a gateway
// channel reuses the existing invoice or opens a new one.
func (s *SettlementService) Pay(ctx context.Context, userID uint64, isAdmin bool, orderID uint64, channel string) (*domain.Order, string, error) {
	order, err := s.authorizedOrder(ctx, userID, isAdmin, orderID)
	if err != nil {
		return nil, "", err
	}
	if order.IsPaid() {
		return nil, "", ErrAlreadyPaid
	}

	switch {
	case channel == ChannelBalance:
		var shortItems []uint64
		err = s.orders.WithTx(ctx, func(orders repository.OrderRepository, ledger repository.LedgerRepository) error {
			locked, err := orders.FindByIDForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if locked == nil {
				return ErrOrderNotFound
			}
			short, err := s.settleLocked(ctx, orders, ledger, locked, settleSourceBalance, s.now())
			if err != nil {
				return err
			}
			shortItems = short
			return orders.SetPaymentMethod(ctx, orderID, domain.PaymentMethodBalance)
		})
		if err != nil {
			return nil, "", err
		}

		order, err = s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, "", err
		}
		s.publishPaid(order, settleSourceBalance, shortItems)
		return order, "", nil

	case gatewayChannels[channel]:
		// Reuse an existing invoice so retried Pay calls never create
		// duplicate remote invoices for the same order.
		if order.InvoiceURL != nil && *order.InvoiceURL != "" {
			return order, *order.InvoiceURL, nil
		}

		products, err := s.productsForOrder(ctx, order)
		if err != nil {
			return nil, "", err
		}
		inv, err := s.createInvoice(ctx, order, products)
		if err != nil {
			return nil, "", err
		}
		if err := s.orders.SetInvoice(ctx, order.ID, inv.ID, inv.InvoiceURL); err != nil {
			return nil, "", err
		}
		if err := s.orders.SetPaymentMethod(ctx, order.ID, domain.PaymentMethodXendit); err != nil {
			return nil, "", err
		}
		order.InvoiceID = &inv.ID
		order.InvoiceURL = &inv.InvoiceURL
		order.PaymentMethod = domain.PaymentMethodXendit
		return order, inv.InvoiceURL, nil

	default:
		return nil, "", ErrInvalidPaymentMethod
	}
}

// CheckPayment polls the gateway for the order's invoice and settles
// if the invoice turned PAID. Safe to call redundantly: settlement is
// guarded by the order row lock and the paid check under it.
func (s *SettlementService) CheckPayment(ctx context.Context, userID uint64, isAdmin bool, orderID uint64) (*domain.Order, string, error) {
	order, err := s.authorizedOrder(ctx, userID, isAdmin, orderID)
	if err != nil {
		return nil, "", err
	}
	if order.InvoiceID == nil || *order.InvoiceID == "" {
		return nil, "", ErrNoInvoice
	}

	inv, err := s.gateway.GetInvoice(ctx, *order.InvoiceID)
	if err != nil {
		return nil, "", err
	}

	if inv.Status == xendit.InvoiceStatusPaid && !order.IsPaid() {
		paidAt := s.now()
		if inv.PaidAt != nil {
			paidAt = *inv.PaidAt
		}
		if err := s.settleConfirmed(ctx, orderID, paidAt); err != nil {
			return nil, "", err
		}
	}

	order, err = s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	return order, inv.Status, nil
}

// Simulate stands in for the gateway webhook in test environments:
// it confirms the invoice without talking to the gateway at all.
func (s *SettlementService) Simulate(ctx context.Context, invoiceID string) (*domain.Order, error) {
	order, err := s.orders.FindByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrInvoiceNotFound
	}
	if order.IsPaid() {
		return nil, ErrAlreadyPaid
	}

	if err := s.settleConfirmed(ctx, order.ID, s.now()); err != nil {
		return nil, err
	}

	s.log.Info("payment simulation applied",
		zap.String("invoice_id", invoiceID),
		zap.Uint64("order_id", order.ID))

	return s.orders.FindByID(ctx, order.ID)
}

// settleConfirmed runs the gateway-confirmation edge under the order
// row lock. A concurrent settlement that won the race surfaces as
// ErrAlreadyPaid from settleLocked and is treated as a no-op.
func (s *SettlementService) settleConfirmed(ctx context.Context, orderID uint64, paidAt time.Time) error {
	var (
		settled    *domain.Order
		shortItems []uint64
	)
	err := s.orders.WithTx(ctx, func(orders repository.OrderRepository, ledger repository.LedgerRepository) error {
		locked, err := orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrOrderNotFound
		}
		short, err := s.settleLocked(ctx, orders, ledger, locked, settleSourceGateway, paidAt)
		if err != nil {
			return err
		}
		settled = locked
		shortItems = short
		return nil
	})
	if errors.Is(err, ErrAlreadyPaid) {
		return nil
	}
	if err != nil {
		return err
	}

	s.publishPaid(settled, settleSourceGateway, shortItems)
	return nil
}

// settleLocked applies payment side effects to an order the current
// transaction owns (freshly created, or fetched FOR UPDATE). Calling
// it on an already-paid order mutates nothing.
//
// Stock is decremented per item with an independent decrement-if-≥
// guard; a short line is skipped and the order is still marked paid.
// See DESIGN.md for why this lenient policy is kept.
func (s *SettlementService) settleLocked(ctx context.Context, orders repository.OrderRepository, ledger repository.LedgerRepository, order *domain.Order, source string, paidAt time.Time) ([]uint64, error) {
	if order.IsPaid() {
		return nil, ErrAlreadyPaid
	}

	if source == settleSourceBalance {
		ok, err := ledger.DecrementBalance(ctx, order.UserID, order.TotalPrice)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInsufficientBalance
		}
	}

	// Stable decrement order across settlements keeps two orders
	// touching the same products from deadlocking.
	items := append([]domain.OrderItem(nil), order.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	var short []uint64
	for _, it := range items {
		ok, err := ledger.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			short = append(short, it.ProductID)
			s.log.Warn("stock short at settlement, line skipped",
				zap.Uint64("order_id", order.ID),
				zap.Uint64("product_id", it.ProductID),
				zap.Int64("quantity", it.Quantity))
		}
	}

	if err := orders.MarkPaid(ctx, order.ID, paidAt); err != nil {
		return nil, err
	}
	order.PaymentStatus = domain.PaymentPaid
	order.Status = domain.StatusProcessing
	order.PaidAt = &paidAt
	return short, nil
}

func (s *SettlementService) createInvoice(ctx context.Context, order *domain.Order, products map[uint64]domain.Product) (*xendit.Invoice, error) {
	user, err := s.ledger.FindUser(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	lineItems := make([]xendit.LineItem, 0, len(order.Items))
	for _, it := range order.Items {
		name := fmt.Sprintf("product-%d", it.ProductID)
		if p, ok := products[it.ProductID]; ok {
			name = p.Name
		}
		lineItems = append(lineItems, xendit.LineItem{
			Name:     name,
			Quantity: it.Quantity,
			Price:    it.UnitPrice.InexactFloat64(),
		})
	}

	externalID := fmt.Sprintf("ORDER_%d_%s", order.ID, strings.Split(uuid.NewString(), "-")[0])
	return s.gateway.CreateInvoice(ctx, xendit.CreateInvoiceParams{
		ExternalID:  externalID,
		Amount:      order.TotalPrice,
		PayerEmail:  user.Email,
		Description: fmt.Sprintf("Payment for order #%d", order.ID),
		Items:       lineItems,
	})
}

func (s *SettlementService) productsForOrder(ctx context.Context, order *domain.Order) (map[uint64]domain.Product, error) {
	ids := make([]uint64, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
	}
	return s.ledger.FindProducts(ctx, ids)
}

func (s *SettlementService) authorizedOrder(ctx context.Context, userID uint64, isAdmin bool, orderID uint64) (*domain.Order, error) {
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

func (s *SettlementService) publishPaid(order *domain.Order, source string, shortItems []uint64) {
	paidAt := s.now()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	s.publishAsync("order.paid", domain.OrderPaidEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice,
		Source:     source,
		ShortItems: shortItems,
		PaidAt:     paidAt,
	})
}

func (s *SettlementService) publishAsync(routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	go func() {
		if err := s.publisher.Publish(context.Background(), routingKey, payload); err != nil {
			s.log.Warn("event publish failed",
				zap.String("routing_key", routingKey), zap.Error(err))
		}
	}()
}
