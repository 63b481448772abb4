package xendit

import "context"

type ClientInterface interface {
	CreateInvoice(ctx context.Context, p CreateInvoiceParams) (*Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

var _ ClientInterface = (*Client)(nil)
