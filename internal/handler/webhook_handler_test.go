package handler

import (
	"context"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/groeimetai/billing/internal/domain"
	"github.com/groeimetai/billing/internal/service"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory repositories backing the handler tests.

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[string]*domain.Invoice)}
}

func (r *memInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if invoice.ID == "" {
		invoice.ID = ulid.Make().String()
	}
	if invoice.InvoiceNumber == "" {
		invoice.InvoiceNumber = "INV-202608-001"
	}
	invoice.Revision = 1
	copied := *invoice
	r.invoices[invoice.ID] = &copied
	return nil
}

func (r *memInvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *memInvoiceRepo) ListOpen(ctx context.Context) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []*domain.Invoice
	for _, stored := range r.invoices {
		if stored.IsOpen() {
			copied := *stored
			open = append(open, &copied)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].IssueDate.Before(open[j].IssueDate) })
	return open, nil
}

func (r *memInvoiceRepo) UpdateStatus(ctx context.Context, id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Status = status
	stored.Revision++
	return nil
}

func (r *memInvoiceRepo) SetTransactionID(ctx context.Context, id string, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	stored.PaymentDetails.TransactionID = transactionID
	return nil
}

func (r *memInvoiceRepo) ApplyPaid(ctx context.Context, invoice *domain.Invoice, expectedRevision int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[invoice.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Revision != expectedRevision {
		return domain.ErrConflict
	}
	stored.Status = invoice.Status
	stored.Financial = invoice.Financial
	stored.PaymentDetails = invoice.PaymentDetails
	stored.Revision = expectedRevision + 1
	invoice.Revision = stored.Revision
	return nil
}

func (r *memInvoiceRepo) StampSync(ctx context.Context, id string, mollieStatus string, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	stored.LastPaymentSync = &syncedAt
	stored.MolliePaymentStatus = mollieStatus
	return nil
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments []*domain.Payment
}

func (r *memPaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.CreatedAt = time.Now().UTC()
	copied := *payment
	r.payments = append(r.payments, &copied)
	return nil
}

func (r *memPaymentRepo) GetByMolliePaymentID(ctx context.Context, molliePaymentID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.MolliePaymentID == molliePaymentID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) GetLatestByInvoiceID(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.payments) - 1; i >= 0; i-- {
		if r.payments[i].InvoiceID == invoiceID {
			copied := *r.payments[i]
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) GetActiveByInvoiceID(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID && !domain.IsTerminalPaymentStatus(p.Status) && p.ExpiresAt.After(now) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) UpdateStatus(ctx context.Context, id string, status string, method string, failedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id {
			p.Status = status
			if method != "" {
				p.Method = method
			}
			p.FailedAt = failedAt
			return nil
		}
	}
	return domain.ErrNotFound
}

type memSyncRunRepo struct {
	mu   sync.Mutex
	runs []*domain.SyncRun
}

func (r *memSyncRunRepo) Save(ctx context.Context, run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *memSyncRunRepo) GetLast(ctx context.Context) (*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil, domain.ErrNotFound
	}
	return r.runs[len(r.runs)-1], nil
}

// handlerFixture wires the handlers onto a bare fiber app, public routes only.
type handlerFixture struct {
	app         *fiber.App
	invoiceRepo *memInvoiceRepo
	paymentRepo *memPaymentRepo
	provider    *service.MockMollieClient
	checkout    *service.CheckoutService
	reconciler  *service.ReconcileService
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		invoiceRepo: newMemInvoiceRepo(),
		paymentRepo: &memPaymentRepo{},
		provider:    service.NewMockMollieClient(),
	}
	f.checkout = service.NewCheckoutService(f.invoiceRepo, f.paymentRepo, f.provider)
	f.reconciler = service.NewReconcileService(f.invoiceRepo, f.paymentRepo, &memSyncRunRepo{}, f.provider, nil, nil)

	invoiceHandler := NewInvoiceHandler(f.invoiceRepo, f.checkout, nil)
	webhookHandler := NewWebhookHandler(f.reconciler)

	f.app = fiber.New()
	api := f.app.Group("/api")
	api.Post("/webhooks/mollie", webhookHandler.MollieWebhook)
	api.Get("/invoices/:id/pay", invoiceHandler.GetPublicInvoice)
	api.Post("/invoices/:id/pay", invoiceHandler.PayInvoice)
	return f
}

func (f *handlerFixture) createInvoice(t *testing.T, totalCents int64, status string) *domain.Invoice {
	t.Helper()
	invoice := &domain.Invoice{
		Status: status,
		Financial: domain.Financial{
			Total:    totalCents,
			Balance:  totalCents,
			Currency: "EUR",
		},
		IssueDate: time.Now().UTC(),
		DueDate:   time.Now().UTC().AddDate(0, 0, 30),
	}
	require.NoError(t, f.invoiceRepo.Create(context.Background(), invoice))
	return invoice
}

func TestMollieWebhookFormPayload(t *testing.T) {
	f := newHandlerFixture()

	invoice := f.createInvoice(t, 100000, domain.InvoiceStatusSent)
	checkout, err := f.checkout.CreateCheckout(context.Background(), invoice.ID)
	require.NoError(t, err)
	f.provider.SetStatus(checkout.MolliePaymentID, domain.PaymentStatusPaid, "ideal")

	req := httptest.NewRequest("POST", "/api/webhooks/mollie", strings.NewReader("id="+checkout.MolliePaymentID))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	got, err := f.invoiceRepo.GetByID(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, got.Status)
}

func TestMollieWebhookMissingID(t *testing.T) {
	f := newHandlerFixture()

	req := httptest.NewRequest("POST", "/api/webhooks/mollie", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMollieWebhookProviderFailure(t *testing.T) {
	f := newHandlerFixture()

	// An id the processor does not recognize makes the re-fetch fail; a
	// non-2xx response tells Mollie to retry later.
	req := httptest.NewRequest("POST", "/api/webhooks/mollie", strings.NewReader("id=tr_unknown"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestMollieWebhookIgnoresPayloadStatus(t *testing.T) {
	f := newHandlerFixture()

	invoice := f.createInvoice(t, 100000, domain.InvoiceStatusSent)
	checkout, err := f.checkout.CreateCheckout(context.Background(), invoice.ID)
	require.NoError(t, err)

	// A forged "paid" status in the payload must not mark anything paid:
	// the remote payment is still open.
	body := `{"id":"` + checkout.MolliePaymentID + `","status":"paid"}`
	req := httptest.NewRequest("POST", "/api/webhooks/mollie", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	got, err := f.invoiceRepo.GetByID(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, got.Status)
	assert.Equal(t, int64(0), got.Financial.Paid)
}
