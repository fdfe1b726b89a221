package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/groeimetai/billing/internal/service"
	"github.com/groeimetai/billing/internal/telemetry"
)

// WebhookHandler handles payment status notifications from Mollie
type WebhookHandler struct {
	reconciler *service.ReconcileService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler *service.ReconcileService) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// MollieWebhookRequest is the notification payload. Mollie sends only the
// payment id, as form data or JSON; it never carries a status. The body is
// untrusted either way: the id is purely a wake-up signal and the actual
// status is always re-fetched from the API.
type MollieWebhookRequest struct {
	ID string `json:"id" form:"id"`
}

// MollieWebhook handles POST /api/webhooks/mollie.
// This is a public endpoint - no authentication required.
func (h *WebhookHandler) MollieWebhook(c *fiber.Ctx) error {
	var req MollieWebhookRequest
	if err := c.BodyParser(&req); err != nil || req.ID == "" {
		log.Printf("[Webhook] Invalid payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	log.Printf("[Webhook] Received notification for payment %s", req.ID)
	telemetry.SetSpanAttribute(c, "mollie.payment_id", req.ID)

	if err := h.reconciler.HandleWebhook(c.UserContext(), req.ID); err != nil {
		// Non-2xx makes Mollie retry with backoff, which is what we want
		// for transient failures.
		log.Printf("[Webhook] Failed to process payment %s: %v", req.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to process notification",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "notification processed",
	})
}
