package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/groeimetai/billing/internal/domain"
	"github.com/groeimetai/billing/internal/middleware"
	"github.com/groeimetai/billing/internal/service"
	"github.com/groeimetai/billing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// SyncHandler handles the admin reconciliation endpoints
type SyncHandler struct {
	reconciler *service.ReconcileService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(reconciler *service.ReconcileService) *SyncHandler {
	return &SyncHandler{reconciler: reconciler}
}

// SyncInvoice handles POST /api/invoices/:id/sync-payment (admin only)
func (h *SyncHandler) SyncInvoice(c *fiber.Ctx) error {
	result, err := h.reconciler.SyncInvoice(c.UserContext(), c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "invoice not found",
			})
		case errors.Is(err, domain.ErrProviderUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "payment provider not configured",
			})
		default:
			// Admin audience: raw error detail is acceptable here.
			log.Printf("[Sync] Error syncing invoice %s: %v", c.Params("id"), err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// SyncAll handles POST /api/invoices/sync-all-payments (admin only)
func (h *SyncHandler) SyncAll(c *fiber.Ctx) error {
	syncedBy := middleware.GetUserEmail(c)
	if syncedBy == "" {
		syncedBy = middleware.GetUserID(c)
	}

	summary, err := h.reconciler.SyncAll(c.UserContext(), syncedBy)
	if err != nil {
		log.Printf("[Sync] Batch sync failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	telemetry.AddSpanEvent(c, "billing.batch_sync_completed",
		attribute.Int("sync.total", summary.Total),
		attribute.Int("sync.updated", summary.Updated),
		attribute.Int("sync.errors", summary.Errors),
	)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
	})
}

// GetLastSync handles GET /api/invoices/sync-all-payments (admin only)
func (h *SyncHandler) GetLastSync(c *fiber.Ctx) error {
	run, err := h.reconciler.LastRun(c.UserContext())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "no sync run recorded yet",
			})
		}
		log.Printf("[Sync] Error fetching last run: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch last sync run",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    run,
	})
}
