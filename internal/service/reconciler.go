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

// ProjectionCache invalidates cached public invoice projections after a
// reconciling write. Implementations must tolerate a cold cache.
type ProjectionCache interface {
	InvalidateInvoice(ctx context.Context, invoiceID string) error
}

// ReportArchive stores batch-run reports for audit
type ReportArchive interface {
	ArchiveSyncRun(ctx context.Context, run *domain.SyncRun) error
}

// ReconcileService pulls authoritative payment status from the processor and
// corrects local invoice/payment state. The webhook receiver and both sync
// modes converge on the same apply step, so concurrent deliveries are
// convergent: every path re-fetches from the processor and computes the same
// target state.
type ReconcileService struct {
	invoiceRepo domain.InvoiceRepository
	paymentRepo domain.PaymentRepository
	syncRunRepo domain.SyncRunRepository
	provider    PaymentProvider
	cache       ProjectionCache
	archive     ReportArchive
}

// NewReconcileService creates a new ReconcileService. cache and archive are
// optional; provider may be nil when credentials are not configured.
func NewReconcileService(
	invoiceRepo domain.InvoiceRepository,
	paymentRepo domain.PaymentRepository,
	syncRunRepo domain.SyncRunRepository,
	provider PaymentProvider,
	cache ProjectionCache,
	archive ReportArchive,
) *ReconcileService {
	return &ReconcileService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		syncRunRepo: syncRunRepo,
		provider:    provider,
		cache:       cache,
		archive:     archive,
	}
}

// HandleWebhook processes an asynchronous payment notification. The payload
// carries only an opaque payment id; the status always comes from a fresh
// GetPayment call, never from the notification itself.
func (s *ReconcileService) HandleWebhook(ctx context.Context, molliePaymentID string) error {
	if s.provider == nil {
		return domain.ErrProviderUnavailable
	}

	remote, err := s.provider.GetPayment(ctx, molliePaymentID)
	if err != nil {
		return err
	}

	payment, err := s.paymentRepo.GetByMolliePaymentID(ctx, molliePaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Unknown to us: possibly created outside this system. Ack and move on.
			log.Printf("[Reconcile] Webhook for unknown payment %s (status=%s)", molliePaymentID, remote.Status)
			return nil
		}
		return err
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, payment.InvoiceID)
	if err != nil {
		return err
	}

	updated, err := s.applyRemoteStatus(ctx, invoice, payment, remote)
	if err != nil {
		return err
	}
	log.Printf("[Reconcile] Webhook applied: payment=%s status=%s invoice=%s updated=%t",
		molliePaymentID, remote.Status, invoice.ID, updated)
	return nil
}

// SyncInvoice re-checks one invoice against the processor, correcting drift
// from missed or delayed webhooks.
func (s *ReconcileService) SyncInvoice(ctx context.Context, invoiceID string) (*domain.SyncResult, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.syncInvoice(ctx, invoice)
}

func (s *ReconcileService) syncInvoice(ctx context.Context, invoice *domain.Invoice) (*domain.SyncResult, error) {
	now := time.Now().UTC()
	result := &domain.SyncResult{
		InvoiceID:     invoice.ID,
		InvoiceStatus: invoice.Status,
		SyncedAt:      now,
	}

	// Resolve the remote payment id: the invoice's transaction reference
	// wins, else the most recent payment record for this invoice.
	molliePaymentID := invoice.PaymentDetails.TransactionID
	var payment *domain.Payment
	if p, err := s.paymentRepo.GetLatestByInvoiceID(ctx, invoice.ID); err == nil {
		payment = p
		if molliePaymentID == "" {
			molliePaymentID = p.MolliePaymentID
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve payment record: %w", err)
	}
	if payment != nil && payment.MolliePaymentID != molliePaymentID {
		// The latest record belongs to a different checkout attempt than the
		// invoice's transaction reference; only mirror onto a matching record.
		payment = nil
	}

	if molliePaymentID == "" {
		// Not an error: an invoice with no payment yet is a valid state.
		result.Synced = true
		result.Message = "No Mollie payment found"
		return result, nil
	}
	result.MolliePaymentID = molliePaymentID

	if s.provider == nil {
		return nil, domain.ErrProviderUnavailable
	}
	remote, err := s.provider.GetPayment(ctx, molliePaymentID)
	if err != nil {
		return nil, err
	}

	updated, err := s.applyRemoteStatus(ctx, invoice, payment, remote)
	if err != nil {
		return nil, err
	}

	result.Synced = true
	result.MollieStatus = remote.Status
	result.LocalStatus = domain.MapMollieStatus(remote.Status)
	result.InvoiceStatus = invoice.Status
	result.InvoiceUpdated = updated
	result.PaidAt = invoice.PaymentDetails.PaidAt
	result.Method = invoice.PaymentDetails.Method
	return result, nil
}

// SyncAll applies the single-invoice algorithm to every open invoice,
// sequentially, oldest first. One invoice's failure never aborts the batch:
// errors are recorded per invoice and the run always completes with
// total == synced + noPayment + errors.
func (s *ReconcileService) SyncAll(ctx context.Context, syncedBy string) (*domain.BatchSyncSummary, error) {
	invoices, err := s.invoiceRepo.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open invoices: %w", err)
	}

	summary := &domain.BatchSyncSummary{
		Total:   len(invoices),
		Details: make([]domain.BatchDetail, 0, len(invoices)),
	}

	for _, invoice := range invoices {
		detail := domain.BatchDetail{
			InvoiceID:      invoice.ID,
			InvoiceNumber:  invoice.InvoiceNumber,
			PreviousStatus: invoice.Status,
			NewStatus:      invoice.Status,
		}

		result, err := s.syncInvoice(ctx, invoice)
		switch {
		case err != nil:
			summary.Errors++
			detail.Error = err.Error()
			log.Printf("[Reconcile] Batch sync error for invoice %s: %v", invoice.ID, err)
		case result.MolliePaymentID == "":
			summary.NoPayment++
		default:
			summary.Synced++
			detail.MollieStatus = result.MollieStatus
			detail.NewStatus = result.InvoiceStatus
			detail.Updated = result.InvoiceUpdated
			if result.InvoiceUpdated {
				summary.Updated++
			}
		}
		summary.Details = append(summary.Details, detail)
	}

	run := &domain.SyncRun{
		ID:         ulid.Make().String(),
		LastSyncAt: time.Now().UTC(),
		SyncedBy:   syncedBy,
		Summary:    *summary,
	}
	if err := s.syncRunRepo.Save(ctx, run); err != nil {
		log.Printf("[Reconcile] Failed to persist sync run: %v", err)
	}
	if s.archive != nil {
		if err := s.archive.ArchiveSyncRun(ctx, run); err != nil {
			log.Printf("[Reconcile] Failed to archive sync run: %v", err)
		}
	}

	log.Printf("[Reconcile] Batch complete: total=%d synced=%d updated=%d noPayment=%d errors=%d",
		summary.Total, summary.Synced, summary.Updated, summary.NoPayment, summary.Errors)
	return summary, nil
}

// LastRun returns the persisted summary of the most recent batch sync
func (s *ReconcileService) LastRun(ctx context.Context) (*domain.SyncRun, error) {
	return s.syncRunRepo.GetLast(ctx)
}

// applyRemoteStatus is the single convergence point of the webhook and sync
// paths. It mirrors the remote status onto the payment record, applies the
// paid transition to the invoice when warranted, and always stamps the
// invoice with the observation. Returns whether the invoice was mutated.
func (s *ReconcileService) applyRemoteStatus(ctx context.Context, invoice *domain.Invoice, payment *domain.Payment, remote *RemotePayment) (bool, error) {
	now := time.Now().UTC()

	// Mirror the remote status onto the local payment record.
	if payment != nil && payment.Status != remote.Status {
		var failedAt *time.Time
		if domain.IsFailurePaymentStatus(remote.Status) {
			failedAt = &now
		}
		if err := s.paymentRepo.UpdateStatus(ctx, payment.ID, remote.Status, remote.Method, failedAt); err != nil {
			return false, fmt.Errorf("failed to update payment record: %w", err)
		}
		payment.Status = remote.Status
	}

	updated := false
	if remote.Status == domain.PaymentStatusPaid && invoice.Status != domain.InvoiceStatusPaid {
		paidAt := now
		if remote.PaidAt != nil {
			paidAt = *remote.PaidAt
		}

		expected := invoice.Revision
		invoice.MarkPaid(remote.AmountCents, remote.Method, remote.ID, paidAt)
		err := s.invoiceRepo.ApplyPaid(ctx, invoice, expected)
		if errors.Is(err, domain.ErrConflict) {
			// Lost the race. Re-read: if the winner already marked it paid
			// we are done, otherwise retry once against the new revision.
			fresh, rerr := s.invoiceRepo.GetByID(ctx, invoice.ID)
			if rerr != nil {
				return false, rerr
			}
			*invoice = *fresh
			if invoice.Status != domain.InvoiceStatusPaid {
				expected = invoice.Revision
				invoice.MarkPaid(remote.AmountCents, remote.Method, remote.ID, paidAt)
				if err := s.invoiceRepo.ApplyPaid(ctx, invoice, expected); err != nil {
					return false, err
				}
				updated = true
			}
		} else if err != nil {
			return false, err
		} else {
			updated = true
		}
	}
	// Failure states leave the invoice alone: a separate billing workflow
	// decides whether it becomes overdue.

	if err := s.invoiceRepo.StampSync(ctx, invoice.ID, remote.Status, now); err != nil {
		log.Printf("[Reconcile] Failed to stamp sync on invoice %s: %v", invoice.ID, err)
	}
	invoice.LastPaymentSync = &now
	invoice.MolliePaymentStatus = remote.Status

	if updated && s.cache != nil {
		if err := s.cache.InvalidateInvoice(ctx, invoice.ID); err != nil {
			log.Printf("[Reconcile] Failed to invalidate cache for invoice %s: %v", invoice.ID, err)
		}
	}
	return updated, nil
}
