package domain

import (
	"context"
	"time"
)

// Mollie payment status vocabulary, mirrored on the local Payment record
const (
	PaymentStatusOpen       = "open"
	PaymentStatusPending    = "pending"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusPaid       = "paid"
	PaymentStatusFailed     = "failed"
	PaymentStatusCanceled   = "canceled"
	PaymentStatusExpired    = "expired"
)

// Payment is the local mirror of one remote Mollie checkout payment,
// 1:1 with the remote payment object identified by MolliePaymentID.
type Payment struct {
	ID              string     `bson:"_id,omitempty" json:"id"`
	InvoiceID       string     `bson:"invoice_id" json:"invoice_id"`
	ClientID        string     `bson:"client_id,omitempty" json:"client_id"`
	MolliePaymentID string     `bson:"mollie_payment_id" json:"mollie_payment_id"`
	AmountCents     int64      `bson:"amount_cents" json:"amount_cents"`
	Currency        string     `bson:"currency" json:"currency"`
	Status          string     `bson:"status" json:"status"`
	CheckoutURL     string     `bson:"checkout_url,omitempty" json:"checkout_url,omitempty"`
	WebhookURL      string     `bson:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	Method          string     `bson:"method,omitempty" json:"method,omitempty"`
	FailedAt        *time.Time `bson:"failed_at,omitempty" json:"failed_at,omitempty"`
	CreatedAt       time.Time  `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at,omitempty" json:"updated_at"`
	ExpiresAt       time.Time  `bson:"expires_at,omitempty" json:"expires_at"`
}

// IsTerminalPaymentStatus reports whether no further remote transition is expected
func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusExpired:
		return true
	}
	return false
}

// IsFailurePaymentStatus reports whether the payment ended without settling
func IsFailurePaymentStatus(status string) bool {
	switch status {
	case PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusExpired:
		return true
	}
	return false
}

// MapMollieStatus maps the remote Mollie status to the local taxonomy:
// the in-flight statuses collapse to "pending", terminal ones pass through,
// and unrecognized codes are returned unchanged.
func MapMollieStatus(remote string) string {
	switch remote {
	case PaymentStatusOpen, PaymentStatusPending, PaymentStatusAuthorized:
		return PaymentStatusPending
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusExpired:
		return remote
	default:
		return remote
	}
}

// PaymentRepository defines persistence operations for payment records
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByMolliePaymentID(ctx context.Context, molliePaymentID string) (*Payment, error)
	// GetLatestByInvoiceID returns the most recent payment record for the
	// invoice, ordered by creation time descending.
	GetLatestByInvoiceID(ctx context.Context, invoiceID string) (*Payment, error)
	// GetActiveByInvoiceID returns a non-terminal, non-expired payment for
	// the invoice, if one exists.
	GetActiveByInvoiceID(ctx context.Context, invoiceID string) (*Payment, error)
	UpdateStatus(ctx context.Context, id string, status string, method string, failedAt *time.Time) error
}
