package services

import "errors"

// Business-rule and validation failures. All of them mean "nothing was
// mutated, retrying is safe"; handlers map them to 4xx with a stable
// code. Gateway and persistence failures are the only "unknown
// outcome" class and arrive wrapped from the infra layer.
var (
	ErrEmptyItems           = errors.New("order must contain at least one item")
	ErrQuantityInvalid      = errors.New("item quantity must be at least 1")
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAlreadyPaid          = errors.New("order already paid")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrNoInvoice            = errors.New("order has no gateway invoice")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrForbidden            = errors.New("not allowed")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrOrderPaidImmutable   = errors.New("paid order cannot be deleted")
)
