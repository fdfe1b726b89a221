package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/groeimetai/billing/internal/domain"
	"github.com/oklog/ulid/v2"
)

// CheckoutService is the payment initiator: it requests hosted checkout
// payments for unpaid invoices and records the local payment state needed
// for later reconciliation.
type CheckoutService struct {
	invoiceRepo domain.InvoiceRepository
	paymentRepo domain.PaymentRepository
	provider    PaymentProvider
}

// NewCheckoutService creates a new CheckoutService. provider may be nil when
// payment credentials are not configured.
func NewCheckoutService(
	invoiceRepo domain.InvoiceRepository,
	paymentRepo domain.PaymentRepository,
	provider PaymentProvider,
) *CheckoutService {
	return &CheckoutService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		provider:    provider,
	}
}

// CheckoutResult is returned to the caller initiating a payment
type CheckoutResult struct {
	PaymentID       string    `json:"payment_id"`
	MolliePaymentID string    `json:"mollie_payment_id"`
	CheckoutURL     string    `json:"checkout_url"`
	ExpiresAt       time.Time `json:"expires_at"`
	Reused          bool      `json:"reused"`
}

// CreateCheckout requests a new hosted checkout payment for the invoice.
// Precondition order: invoice must exist, must not be paid, must not be
// cancelled, and the provider must be configured. An existing non-terminal,
// non-expired payment is reused instead of creating a duplicate remote
// payment (reserve-before-create).
func (s *CheckoutService) CreateCheckout(ctx context.Context, invoiceID string) (*CheckoutResult, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if invoice.Status == domain.InvoiceStatusPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, domain.ErrInvoiceCancelled
	}
	if s.provider == nil {
		return nil, domain.ErrProviderUnavailable
	}

	// Reuse an active payment if the customer already opened a checkout.
	existing, err := s.paymentRepo.GetActiveByInvoiceID(ctx, invoiceID)
	if err == nil && existing != nil {
		log.Printf("[Checkout] Reusing active payment %s for invoice %s", existing.MolliePaymentID, invoiceID)
		return &CheckoutResult{
			PaymentID:       existing.ID,
			MolliePaymentID: existing.MolliePaymentID,
			CheckoutURL:     existing.CheckoutURL,
			ExpiresAt:       existing.ExpiresAt,
			Reused:          true,
		}, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing payments: %w", err)
	}

	remote, err := s.provider.CreatePayment(ctx, invoice)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:              ulid.Make().String(),
		InvoiceID:       invoice.ID,
		ClientID:        invoice.ClientID,
		MolliePaymentID: remote.MolliePaymentID,
		AmountCents:     invoice.AmountDue(),
		Currency:        invoice.Financial.Currency,
		Status:          remote.Status,
		CheckoutURL:     remote.CheckoutURL,
		ExpiresAt:       remote.ExpiresAt,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	// Patch the invoice with the transaction reference so the sync path
	// can resolve the remote payment without the payments collection.
	if err := s.invoiceRepo.SetTransactionID(ctx, invoice.ID, remote.MolliePaymentID); err != nil {
		log.Printf("[Checkout] Failed to patch invoice %s with transaction id: %v", invoice.ID, err)
	}

	log.Printf("[Checkout] Created payment %s (%s) for invoice %s", payment.ID, remote.MolliePaymentID, invoice.ID)
	return &CheckoutResult{
		PaymentID:       payment.ID,
		MolliePaymentID: remote.MolliePaymentID,
		CheckoutURL:     remote.CheckoutURL,
		ExpiresAt:       remote.ExpiresAt,
	}, nil
}
