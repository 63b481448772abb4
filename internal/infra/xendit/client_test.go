package xendit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.XenditConfig{
		SecretKey:          "xnd_test_secret",
		BaseURL:            baseURL,
		InvoiceDuration:    24 * time.Hour,
		SuccessRedirectURL: "https://shop.example/payment/success",
		FailureRedirectURL: "https://shop.example/payment/failed",
	}, zap.NewNop())
}

func TestCreateInvoice(t *testing.T) {
	var got createInvoiceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/invoices", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "xnd_test_secret", user)
		assert.Empty(t, pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "inv-123",
			"external_id": "ORDER_1_abc",
			"status": "PENDING",
			"amount": 250000,
			"invoice_url": "https://checkout.example/inv-123"
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	inv, err := c.CreateInvoice(context.Background(), CreateInvoiceParams{
		ExternalID:  "ORDER_1_abc",
		Amount:      decimal.NewFromInt(250000),
		PayerEmail:  "buyer@example.com",
		Description: "Payment for order #1",
		Items:       []LineItem{{Name: "Keyboard", Quantity: 2, Price: 125000}},
	})

	require.NoError(t, err)
	assert.Equal(t, "inv-123", inv.ID)
	assert.Equal(t, InvoiceStatusPending, inv.Status)
	assert.Equal(t, "https://checkout.example/inv-123", inv.InvoiceURL)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(250000)))

	assert.Equal(t, "ORDER_1_abc", got.ExternalID)
	assert.Equal(t, float64(250000), got.Amount)
	assert.Equal(t, "buyer@example.com", got.PayerEmail)
	assert.Equal(t, int64(86400), got.InvoiceDuration)
	assert.Equal(t, "IDR", got.Currency)
	assert.Equal(t, "https://shop.example/payment/success", got.SuccessRedirectURL)
	assert.Len(t, got.Items, 1)
}

func TestCreateInvoice_Non2xxWrapsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	inv, err := c.CreateInvoice(context.Background(), CreateInvoiceParams{
		ExternalID: "ORDER_1_abc",
		Amount:     decimal.NewFromInt(100),
	})

	assert.Nil(t, inv)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateInvoice_NetworkErrorWrapsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.CreateInvoice(context.Background(), CreateInvoiceParams{
		ExternalID: "ORDER_1_abc",
		Amount:     decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetInvoice_ParsesPaidAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/invoices/inv-123", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "inv-123",
			"external_id": "ORDER_1_abc",
			"status": "PAID",
			"amount": 250000,
			"invoice_url": "https://checkout.example/inv-123",
			"paid_at": "2025-06-01T12:30:00Z"
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	inv, err := c.GetInvoice(context.Background(), "inv-123")

	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), inv.PaidAt.UTC())
}

func TestGetInvoice_MalformedBodyWrapsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetInvoice(context.Background(), "inv-123")
	assert.ErrorIs(t, err, ErrUnavailable)
}
