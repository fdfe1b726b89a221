package service

import (
	"context"
	"testing"
	"time"

	"github.com/groeimetai/billing/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckout(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()

	invoice := newTestInvoice(121000, domain.InvoiceStatusSent)
	require.NoError(t, f.invoiceRepo.Create(ctx, invoice))

	result, err := f.checkout.CreateCheckout(ctx, invoice.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.PaymentID)
	assert.NotEmpty(t, result.MolliePaymentID)
	assert.Contains(t, result.CheckoutURL, result.MolliePaymentID)
	assert.False(t, result.Reused)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	payment, err := f.paymentRepo.GetByMolliePaymentID(ctx, result.MolliePaymentID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, payment.InvoiceID)
	assert.Equal(t, int64(121000), payment.AmountCents)
	assert.Equal(t, "EUR", payment.Currency)
	assert.Equal(t, domain.PaymentStatusOpen, payment.Status)

	got, err := f.invoiceRepo.GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, result.MolliePaymentID, got.PaymentDetails.TransactionID)
}

func TestCreateCheckoutReusesActivePayment(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()

	invoice := newTestInvoice(50000, domain.InvoiceStatusSent)
	require.NoError(t, f.invoiceRepo.Create(ctx, invoice))

	first, err := f.checkout.CreateCheckout(ctx, invoice.ID)
	require.NoError(t, err)

	second, err := f.checkout.CreateCheckout(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.MolliePaymentID, second.MolliePaymentID)
	assert.Equal(t, first.CheckoutURL, second.CheckoutURL)

	// No duplicate remote payment or local record.
	latest, err := f.paymentRepo.GetLatestByInvoiceID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, latest.ID)
}

func TestCreateCheckoutAfterFailureStartsFresh(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()

	invoice := newTestInvoice(50000, domain.InvoiceStatusSent)
	require.NoError(t, f.invoiceRepo.Create(ctx, invoice))

	first, err := f.checkout.CreateCheckout(ctx, invoice.ID)
	require.NoError(t, err)

	// The first attempt expires; the customer retries.
	f.provider.SetStatus(first.MolliePaymentID, domain.PaymentStatusExpired, "")
	require.NoError(t, f.reconciler.HandleWebhook(ctx, first.MolliePaymentID))

	second, err := f.checkout.CreateCheckout(ctx, invoice.ID)
	require.NoError(t, err)
	assert.False(t, second.Reused)
	assert.NotEqual(t, first.MolliePaymentID, second.MolliePaymentID)
}

func TestCreateCheckoutPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("invoice not found", func(t *testing.T) {
		f := newReconcileFixture()
		_, err := f.checkout.CreateCheckout(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("already paid", func(t *testing.T) {
		f := newReconcileFixture()
		invoice := newTestInvoice(1000, domain.InvoiceStatusPaid)
		require.NoError(t, f.invoiceRepo.Create(ctx, invoice))
		_, err := f.checkout.CreateCheckout(ctx, invoice.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newReconcileFixture()
		invoice := newTestInvoice(1000, domain.InvoiceStatusCancelled)
		require.NoError(t, f.invoiceRepo.Create(ctx, invoice))
		_, err := f.checkout.CreateCheckout(ctx, invoice.ID)
		assert.ErrorIs(t, err, domain.ErrInvoiceCancelled)
	})

	t.Run("provider not configured", func(t *testing.T) {
		invoiceRepo := newFakeInvoiceRepo()
		invoice := newTestInvoice(1000, domain.InvoiceStatusSent)
		require.NoError(t, invoiceRepo.Create(ctx, invoice))
		checkout := NewCheckoutService(invoiceRepo, &fakePaymentRepo{}, nil)
		_, err := checkout.CreateCheckout(ctx, invoice.ID)
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	})
}

func TestCreateCheckoutUsesBalanceForPartiallyPaid(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()

	invoice := newTestInvoice(100000, domain.InvoiceStatusSent)
	invoice.Financial.Paid = 40000
	invoice.Financial.Balance = 60000
	require.NoError(t, f.invoiceRepo.Create(ctx, invoice))

	result, err := f.checkout.CreateCheckout(ctx, invoice.ID)
	require.NoError(t, err)

	payment, err := f.paymentRepo.GetByMolliePaymentID(ctx, result.MolliePaymentID)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), payment.AmountCents)
}
