package domain

import (
	"context"
	"time"
)

// Invoice status constants
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusViewed    = "viewed"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

// OpenInvoiceStatuses are the statuses eligible for payment reconciliation
var OpenInvoiceStatuses = []string{InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusOverdue}

// LineItem is a single billable line on an invoice
type LineItem struct {
	Description string `bson:"description" json:"description"`
	Quantity    int64  `bson:"quantity" json:"quantity"`
	UnitPrice   int64  `bson:"unit_price" json:"unit_price"` // cents
	Tax         int64  `bson:"tax" json:"tax"`               // cents
	Total       int64  `bson:"total" json:"total"`           // cents
}

// Financial holds the monetary totals of an invoice.
// All amounts are in the smallest currency unit (cents).
type Financial struct {
	Subtotal int64  `bson:"subtotal" json:"subtotal"`
	Discount int64  `bson:"discount" json:"discount"`
	Tax      int64  `bson:"tax" json:"tax"`
	Total    int64  `bson:"total" json:"total"`
	Paid     int64  `bson:"paid" json:"paid"`
	Balance  int64  `bson:"balance" json:"balance"`
	Currency string `bson:"currency" json:"currency"`
}

// PaymentDetails records how a paid invoice was settled
type PaymentDetails struct {
	Method        string     `bson:"method,omitempty" json:"method,omitempty"`
	TransactionID string     `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	PaidAt        *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}

// Invoice is the authoritative billing record for a client.
// Revision is an optimistic-concurrency counter: reconciling writes
// compare-and-swap on it and fail with ErrConflict when it advanced.
type Invoice struct {
	ID                  string         `bson:"_id,omitempty" json:"id"`
	InvoiceNumber       string         `bson:"invoice_number" json:"invoice_number"` // INV-YYYYMM-NNN
	ClientID            string         `bson:"client_id,omitempty" json:"client_id"`
	Status              string         `bson:"status" json:"status"`
	Financial           Financial      `bson:"financial" json:"financial"`
	Items               []LineItem     `bson:"items,omitempty" json:"items,omitempty"`
	PaymentDetails      PaymentDetails `bson:"payment_details,omitempty" json:"payment_details,omitempty"`
	IssueDate           time.Time      `bson:"issue_date" json:"issue_date"`
	DueDate             time.Time      `bson:"due_date" json:"due_date"`
	LastPaymentSync     *time.Time     `bson:"last_payment_sync,omitempty" json:"last_payment_sync,omitempty"`
	MolliePaymentStatus string         `bson:"mollie_payment_status,omitempty" json:"mollie_payment_status,omitempty"`
	Revision            int64          `bson:"revision" json:"revision"`
	CreatedAt           time.Time      `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt           time.Time      `bson:"updated_at,omitempty" json:"updated_at"`
}

// IsOpen reports whether the invoice is still eligible for payment
func (i *Invoice) IsOpen() bool {
	for _, s := range OpenInvoiceStatuses {
		if i.Status == s {
			return true
		}
	}
	return false
}

// AmountDue returns the amount a new checkout payment should request:
// the outstanding balance, or the full total when no balance is tracked yet.
func (i *Invoice) AmountDue() int64 {
	if i.Financial.Balance > 0 {
		return i.Financial.Balance
	}
	if i.Financial.Paid == 0 {
		return i.Financial.Total
	}
	return 0
}

// Recalculate derives totals from the line items and restores the
// balance invariant (balance == total - paid, floored at zero).
func (i *Invoice) Recalculate() {
	if len(i.Items) > 0 {
		var subtotal, tax int64
		for _, item := range i.Items {
			subtotal += item.Quantity * item.UnitPrice
			tax += item.Tax
		}
		i.Financial.Subtotal = subtotal
		i.Financial.Tax = tax
		i.Financial.Total = subtotal - i.Financial.Discount + tax
	}
	i.Financial.Balance = i.Financial.Total - i.Financial.Paid
	if i.Financial.Balance < 0 {
		i.Financial.Balance = 0
	}
}

// MarkPaid applies the paid transition: records the settled amount,
// zeroes the balance and stores the settlement details.
func (i *Invoice) MarkPaid(amountCents int64, method, transactionID string, paidAt time.Time) {
	i.Status = InvoiceStatusPaid
	i.Financial.Paid = amountCents
	i.Financial.Balance = i.Financial.Total - i.Financial.Paid
	if i.Financial.Balance < 0 {
		i.Financial.Balance = 0
	}
	i.PaymentDetails.Method = method
	i.PaymentDetails.TransactionID = transactionID
	i.PaymentDetails.PaidAt = &paidAt
}

// InvoiceRepository defines persistence operations for invoices
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *Invoice) error
	GetByID(ctx context.Context, id string) (*Invoice, error)
	ListOpen(ctx context.Context) ([]*Invoice, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	SetTransactionID(ctx context.Context, id string, transactionID string) error
	// ApplyPaid persists the paid transition with a compare-and-swap on
	// the given revision. Returns ErrConflict when the revision advanced.
	ApplyPaid(ctx context.Context, invoice *Invoice, expectedRevision int64) error
	// StampSync records the observation of a reconciliation pass
	// (unconditional write; stamp fields are observational only).
	StampSync(ctx context.Context, id string, mollieStatus string, syncedAt time.Time) error
}
