package xendit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnavailable covers network failures, timeouts and non-2xx gateway
// responses. Callers never see a half-populated invoice: either a full
// record comes back or this error does.
var ErrUnavailable = errors.New("payment gateway unavailable")

const (
	InvoiceStatusPending = "PENDING"
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusExpired = "EXPIRED"
)

type Invoice struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"external_id"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	InvoiceURL string          `json:"invoice_url"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

type LineItem struct {
	Name     string  `json:"name"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

type CreateInvoiceParams struct {
	ExternalID  string
	Amount      decimal.Decimal
	PayerEmail  string
	Description string
	Items       []LineItem
}

type Client struct {
	cfg        config.XenditConfig
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient builds a gateway client with a bounded request timeout so a
// slow gateway cannot hold a caller indefinitely.
func NewClient(cfg config.XenditConfig, log *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type createInvoiceRequest struct {
	ExternalID         string     `json:"external_id"`
	Amount             float64    `json:"amount"`
	PayerEmail         string     `json:"payer_email"`
	Description        string     `json:"description"`
	InvoiceDuration    int64      `json:"invoice_duration"`
	SuccessRedirectURL string     `json:"success_redirect_url"`
	FailureRedirectURL string     `json:"failure_redirect_url"`
	Currency           string     `json:"currency"`
	Items              []LineItem `json:"items,omitempty"`
}

func (c *Client) CreateInvoice(ctx context.Context, p CreateInvoiceParams) (*Invoice, error) {
	body, err := json.Marshal(createInvoiceRequest{
		ExternalID:         p.ExternalID,
		Amount:             p.Amount.InexactFloat64(),
		PayerEmail:         p.PayerEmail,
		Description:        p.Description,
		InvoiceDuration:    int64(c.cfg.InvoiceDuration.Seconds()),
		SuccessRedirectURL: c.cfg.SuccessRedirectURL,
		FailureRedirectURL: c.cfg.FailureRedirectURL,
		Currency:           "IDR",
		Items:              p.Items,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.SecretKey, "")

	return c.do(req, "create invoice")
}

func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/invoices/"+invoiceID, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.SecretKey, "")

	return c.do(req, "get invoice")
}

func (c *Client) do(req *http.Request, op string) (*Invoice, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("xendit request failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error("xendit returned non-2xx",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var inv Invoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return &inv, nil
}
