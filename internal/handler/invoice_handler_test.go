package handler

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/groeimetai/billing/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, r io.Reader) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func TestPayInvoiceCreatesCheckout(t *testing.T) {
	f := newHandlerFixture()
	invoice := f.createInvoice(t, 121000, domain.InvoiceStatusSent)

	req := httptest.NewRequest("POST", "/api/invoices/"+invoice.ID+"/pay", nil)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.NotEmpty(t, data["payment_id"])
	assert.Contains(t, data["checkout_url"], "checkout")
	assert.NotEmpty(t, data["expires_at"])
}

func TestPayInvoiceReusesActiveCheckout(t *testing.T) {
	f := newHandlerFixture()
	invoice := f.createInvoice(t, 50000, domain.InvoiceStatusSent)

	first, err := f.app.Test(httptest.NewRequest("POST", "/api/invoices/"+invoice.ID+"/pay", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, first.StatusCode)
	firstData := decodeBody(t, first.Body)["data"].(map[string]interface{})

	second, err := f.app.Test(httptest.NewRequest("POST", "/api/invoices/"+invoice.ID+"/pay", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, second.StatusCode, "reusing an active checkout is not a new creation")
	secondData := decodeBody(t, second.Body)["data"].(map[string]interface{})
	assert.Equal(t, firstData["checkout_url"], secondData["checkout_url"])
}

func TestPayInvoiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		wantStatus int
		wantError  string
	}{
		{"already paid", domain.InvoiceStatusPaid, fiber.StatusConflict, "Deze factuur is al betaald"},
		{"cancelled", domain.InvoiceStatusCancelled, fiber.StatusConflict, "Deze factuur is geannuleerd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			invoice := f.createInvoice(t, 1000, tt.status)

			resp, err := f.app.Test(httptest.NewRequest("POST", "/api/invoices/"+invoice.ID+"/pay", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeBody(t, resp.Body)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestPayInvoiceNotFound(t *testing.T) {
	f := newHandlerFixture()

	resp, err := f.app.Test(httptest.NewRequest("POST", "/api/invoices/does-not-exist/pay", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Factuur niet gevonden", decodeBody(t, resp.Body)["error"])
}

func TestGetPublicInvoiceProjection(t *testing.T) {
	f := newHandlerFixture()
	invoice := f.createInvoice(t, 121000, domain.InvoiceStatusSent)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/invoices/"+invoice.ID+"/pay", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	data := decodeBody(t, resp.Body)["data"].(map[string]interface{})
	assert.Equal(t, invoice.InvoiceNumber, data["invoice_number"])
	assert.Equal(t, "sent", data["status"])
	assert.Equal(t, float64(121000), data["total"])
	assert.Equal(t, true, data["payable"])
	// Public projection hides internals.
	assert.NotContains(t, data, "client_id")
	assert.NotContains(t, data, "items")
	assert.NotContains(t, data, "revision")
}

func TestGetPublicInvoiceNotPayableWhenPaid(t *testing.T) {
	f := newHandlerFixture()
	invoice := f.createInvoice(t, 1000, domain.InvoiceStatusPaid)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/invoices/"+invoice.ID+"/pay", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	data := decodeBody(t, resp.Body)["data"].(map[string]interface{})
	assert.Equal(t, false, data["payable"])
}
