package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/groeimetai/billing/internal/config"
	"github.com/groeimetai/billing/internal/domain"
	"github.com/groeimetai/billing/internal/infrastructure/mollie"
	"github.com/oklog/ulid/v2"
)

// CheckoutPayment is the result of creating a hosted checkout payment
type CheckoutPayment struct {
	MolliePaymentID string
	Status          string
	CheckoutURL     string
	ExpiresAt       time.Time
}

// RemotePayment is the authoritative state of a payment at the processor
type RemotePayment struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string
	Method      string
	PaidAt      *time.Time
}

// PaymentProvider defines the interface for the payment processor integration
type PaymentProvider interface {
	// CreatePayment requests a hosted checkout payment for the invoice
	CreatePayment(ctx context.Context, invoice *domain.Invoice) (*CheckoutPayment, error)
	// GetPayment re-fetches the authoritative payment state
	GetPayment(ctx context.Context, molliePaymentID string) (*RemotePayment, error)
}

// MollieClientAdapter adapts the mollie.Client to PaymentProvider
type MollieClientAdapter struct {
	client *mollie.Client
}

// NewPaymentProvider returns the provider configured by the environment.
// Without an API key it returns the mock in development mode, or nil so
// callers can surface a service-unavailable error.
func NewPaymentProvider(cfg config.MollieConfig) PaymentProvider {
	if cfg.APIKey == "" {
		if cfg.UseMock {
			log.Println("[Payment] Using mock Mollie client (no credentials configured)")
			return NewMockMollieClient()
		}
		log.Println("[Payment] Mollie credentials not configured, checkout disabled")
		return nil
	}

	log.Printf("[Payment] Using real Mollie client (redirect: %s, webhook: %s)",
		cfg.RedirectURL, cfg.WebhookURL)
	client := mollie.NewClient(mollie.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		RedirectURL: cfg.RedirectURL,
		WebhookURL:  cfg.WebhookURL,
	})
	return &MollieClientAdapter{client: client}
}

// CreatePayment creates a real hosted checkout payment via the Mollie API
func (a *MollieClientAdapter) CreatePayment(ctx context.Context, invoice *domain.Invoice) (*CheckoutPayment, error) {
	resp, err := a.client.CreatePayment(ctx, mollie.CreatePaymentRequest{
		Amount: mollie.Amount{
			Currency: invoice.Financial.Currency,
			Value:    mollie.FormatAmount(invoice.AmountDue()),
		},
		Description: fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		Metadata: map[string]string{
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.InvoiceNumber,
		},
	})
	if err != nil {
		log.Printf("[Payment] Mollie API error: %v", err)
		return nil, fmt.Errorf("payment provider error: %w", err)
	}

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	if resp.ExpiresAt != nil {
		expiresAt = *resp.ExpiresAt
	}

	return &CheckoutPayment{
		MolliePaymentID: resp.ID,
		Status:          resp.Status,
		CheckoutURL:     resp.CheckoutURL(),
		ExpiresAt:       expiresAt,
	}, nil
}

// GetPayment fetches the authoritative payment state from the Mollie API
func (a *MollieClientAdapter) GetPayment(ctx context.Context, molliePaymentID string) (*RemotePayment, error) {
	resp, err := a.client.GetPayment(ctx, molliePaymentID)
	if err != nil {
		return nil, fmt.Errorf("payment provider error: %w", err)
	}

	cents, err := mollie.ParseAmount(resp.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("payment provider returned bad amount: %w", err)
	}

	return &RemotePayment{
		ID:          resp.ID,
		Status:      resp.Status,
		AmountCents: cents,
		Currency:    resp.Amount.Currency,
		Method:      resp.Method,
		PaidAt:      resp.PaidAt,
	}, nil
}

// MockMollieClient is an in-memory PaymentProvider for development and tests
type MockMollieClient struct {
	mu       sync.Mutex
	payments map[string]*RemotePayment
}

// NewMockMollieClient creates an empty mock provider
func NewMockMollieClient() *MockMollieClient {
	return &MockMollieClient{payments: make(map[string]*RemotePayment)}
}

// CreatePayment registers a mock open payment and returns a fake checkout URL
func (m *MockMollieClient) CreatePayment(ctx context.Context, invoice *domain.Invoice) (*CheckoutPayment, error) {
	id := "tr_mock_" + ulid.Make().String()

	m.mu.Lock()
	m.payments[id] = &RemotePayment{
		ID:          id,
		Status:      domain.PaymentStatusOpen,
		AmountCents: invoice.AmountDue(),
		Currency:    invoice.Financial.Currency,
	}
	m.mu.Unlock()

	return &CheckoutPayment{
		MolliePaymentID: id,
		Status:          domain.PaymentStatusOpen,
		CheckoutURL:     fmt.Sprintf("https://mock.mollie.local/checkout/%s", id),
		ExpiresAt:       time.Now().UTC().Add(24 * time.Hour),
	}, nil
}

// GetPayment returns the mock payment state
func (m *MockMollieClient) GetPayment(ctx context.Context, molliePaymentID string) (*RemotePayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[molliePaymentID]
	if !ok {
		return nil, fmt.Errorf("payment provider error: no payment %s", molliePaymentID)
	}
	copied := *payment
	return &copied, nil
}

// SetStatus moves a mock payment to the given status. Used by tests and by
// the dev-only flow of completing a mock checkout.
func (m *MockMollieClient) SetStatus(molliePaymentID, status, method string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[molliePaymentID]
	if !ok {
		return
	}
	payment.Status = status
	payment.Method = method
	if status == domain.PaymentStatusPaid {
		now := time.Now().UTC()
		payment.PaidAt = &now
	}
}
