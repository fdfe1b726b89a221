package mollie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config holds Mollie API configuration
type Config struct {
	APIKey      string // API key from the Mollie dashboard (test_... or live_...)
	BaseURL     string // Base URL, overridable for tests
	RedirectURL string // Where Mollie sends the customer after checkout
	WebhookURL  string // Webhook URL for payment status notifications
}

// Client is the Mollie Payments API v2 client
type Client struct {
	config     Config
	httpClient *http.Client
}

// Amount is Mollie's wire representation of a monetary value:
// a currency code plus a string with exactly two decimals.
type Amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// CreatePaymentRequest is the request body for POST /v2/payments
type CreatePaymentRequest struct {
	Amount      Amount            `json:"amount"`
	Description string            `json:"description"`
	RedirectURL string            `json:"redirectUrl"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PaymentResponse is the payment object returned by the Mollie API
type PaymentResponse struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Amount      Amount            `json:"amount"`
	Description string            `json:"description"`
	Method      string            `json:"method"`
	Metadata    map[string]string `json:"metadata"`
	PaidAt      *time.Time        `json:"paidAt,omitempty"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	Links       struct {
		Checkout *struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

// CheckoutURL returns the hosted checkout page URL, if present
func (p *PaymentResponse) CheckoutURL() string {
	if p.Links.Checkout == nil {
		return ""
	}
	return p.Links.Checkout.Href
}

type apiError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// NewClient creates a new Mollie client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mollie.com"
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreatePayment creates a hosted checkout payment
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error) {
	if req.RedirectURL == "" {
		req.RedirectURL = c.config.RedirectURL
	}
	if req.WebhookURL == "" {
		req.WebhookURL = c.config.WebhookURL
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Printf("[Mollie] Creating payment: amount=%s %s, description=%q",
		req.Amount.Value, req.Amount.Currency, req.Description)

	return c.do(ctx, http.MethodPost, "/v2/payments", bytes.NewReader(jsonBody))
}

// GetPayment fetches the authoritative state of a payment
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentResponse, error) {
	return c.do(ctx, http.MethodGet, "/v2/payments/"+paymentID, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*PaymentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Title != "" {
			return nil, fmt.Errorf("mollie API error: %d %s: %s", apiErr.Status, apiErr.Title, apiErr.Detail)
		}
		return nil, fmt.Errorf("mollie API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var payment PaymentResponse
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if payment.ID == "" || payment.Status == "" {
		return nil, fmt.Errorf("mollie API returned unexpected payment shape: %s", string(respBody))
	}
	return &payment, nil
}

// FormatAmount renders cents as Mollie's decimal string, e.g. 100000 -> "1000.00"
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseAmount converts Mollie's decimal string back to cents, e.g. "1000.00" -> 100000
func ParseAmount(value string) (int64, error) {
	whole, frac, found := strings.Cut(value, ".")
	if !found {
		frac = "00"
	}
	if len(frac) != 2 {
		return 0, fmt.Errorf("invalid amount %q: expected two decimals", value)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid amount %q: bad decimals", value)
	}
	if w < 0 || strings.HasPrefix(whole, "-") {
		return w*100 - f, nil
	}
	return w*100 + f, nil
}
