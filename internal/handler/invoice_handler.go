package handler

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/groeimetai/billing/internal/domain"
	"github.com/groeimetai/billing/internal/repository"
	"github.com/groeimetai/billing/internal/service"
)

const publicInvoiceCacheTTL = 5 * time.Minute

// InvoiceHandler handles invoice API endpoints, including the public
// pay-this-invoice endpoints used from email links.
type InvoiceHandler struct {
	invoiceRepo domain.InvoiceRepository
	checkout    *service.CheckoutService
	cache       *repository.RedisCacheRepository
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(
	invoiceRepo domain.InvoiceRepository,
	checkout *service.CheckoutService,
	cache *repository.RedisCacheRepository,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceRepo: invoiceRepo,
		checkout:    checkout,
		cache:       cache,
	}
}

// CreateInvoiceRequest is the request body for invoice creation
type CreateInvoiceRequest struct {
	ClientID string            `json:"client_id"`
	Currency string            `json:"currency"`
	Discount int64             `json:"discount"`
	Items    []domain.LineItem `json:"items"`
	IssueAt  time.Time         `json:"issue_date"`
	DueAt    time.Time         `json:"due_date"`
	Status   string            `json:"status"`
}

// CreateInvoice handles POST /api/invoices (admin or consultant)
func (h *InvoiceHandler) CreateInvoice(c *fiber.Ctx) error {
	var req CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	if len(req.Items) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "at least one line item is required",
		})
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}
	if req.Status == "" {
		req.Status = domain.InvoiceStatusDraft
	}
	if req.Status != domain.InvoiceStatusDraft && req.Status != domain.InvoiceStatusSent {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "status must be draft or sent",
		})
	}

	now := time.Now().UTC()
	issueDate := req.IssueAt
	if issueDate.IsZero() {
		issueDate = now
	}
	dueDate := req.DueAt
	if dueDate.IsZero() {
		dueDate = issueDate.AddDate(0, 0, 30)
	}

	for i := range req.Items {
		item := &req.Items[i]
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		item.Total = item.Quantity*item.UnitPrice + item.Tax
	}

	invoice := &domain.Invoice{
		ClientID:  req.ClientID,
		Status:    req.Status,
		Financial: domain.Financial{Discount: req.Discount, Currency: req.Currency},
		Items:     req.Items,
		IssueDate: issueDate,
		DueDate:   dueDate,
	}
	invoice.Recalculate()

	ctx := c.UserContext()
	if err := h.invoiceRepo.Create(ctx, invoice); err != nil {
		log.Printf("[Invoice] Error creating invoice: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to create invoice",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    invoice,
	})
}

// GetInvoice handles GET /api/invoices/:id (admin or consultant)
func (h *InvoiceHandler) GetInvoice(c *fiber.Ctx) error {
	ctx := c.UserContext()

	invoice, err := h.invoiceRepo.GetByID(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "invoice not found",
			})
		}
		log.Printf("[Invoice] Error fetching invoice: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch invoice",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    invoice,
	})
}

// UpdateStatusRequest is the request body for an explicit status update
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

var validStatusUpdates = map[string]bool{
	domain.InvoiceStatusSent:      true,
	domain.InvoiceStatusViewed:    true,
	domain.InvoiceStatusOverdue:   true,
	domain.InvoiceStatusCancelled: true,
}

// UpdateStatus handles PATCH /api/invoices/:id/status (admin or consultant).
// The paid transition is reserved for the reconciliation flow.
func (h *InvoiceHandler) UpdateStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if !validStatusUpdates[req.Status] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "status must be one of sent, viewed, overdue, cancelled",
		})
	}

	ctx := c.UserContext()
	invoice, err := h.invoiceRepo.GetByID(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "invoice not found",
			})
		}
		log.Printf("[Invoice] Error fetching invoice: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch invoice",
		})
	}

	// Terminal states stay terminal.
	if invoice.Status == domain.InvoiceStatusPaid || invoice.Status == domain.InvoiceStatusCancelled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "invoice is in a terminal state",
		})
	}

	if err := h.invoiceRepo.UpdateStatus(ctx, invoice.ID, req.Status); err != nil {
		log.Printf("[Invoice] Error updating status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to update invoice status",
		})
	}
	if h.cache != nil {
		_ = h.cache.InvalidateInvoice(ctx, invoice.ID)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":     invoice.ID,
			"status": req.Status,
		},
	})
}

// PublicInvoiceResponse is the public-safe projection served on the pay
// endpoint: no internal ids, no per-line pricing beyond totals.
type PublicInvoiceResponse struct {
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	Balance       int64  `json:"balance"`
	DueDate       string `json:"due_date"`
	Payable       bool   `json:"payable"`
}

// GetPublicInvoice handles GET /api/invoices/:id/pay (public, unauthenticated)
func (h *InvoiceHandler) GetPublicInvoice(c *fiber.Ctx) error {
	ctx := c.UserContext()
	invoiceID := c.Params("id")

	if h.cache != nil {
		var cached PublicInvoiceResponse
		if err := h.cache.GetPublicInvoice(ctx, invoiceID, &cached); err == nil {
			return c.JSON(fiber.Map{"success": true, "data": cached})
		}
	}

	invoice, err := h.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Factuur niet gevonden",
			})
		}
		log.Printf("[Invoice] Error fetching public invoice: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Er is iets misgegaan",
		})
	}

	resp := PublicInvoiceResponse{
		InvoiceNumber: invoice.InvoiceNumber,
		Status:        invoice.Status,
		Currency:      invoice.Financial.Currency,
		Total:         invoice.Financial.Total,
		Balance:       invoice.Financial.Balance,
		DueDate:       invoice.DueDate.Format("2006-01-02"),
		Payable:       invoice.IsOpen(),
	}
	if h.cache != nil {
		_ = h.cache.SetPublicInvoice(ctx, invoiceID, resp, publicInvoiceCacheTTL)
	}

	return c.JSON(fiber.Map{"success": true, "data": resp})
}

// PayInvoice handles POST /api/invoices/:id/pay (public, unauthenticated).
// Errors are localized and non-technical: the audience is a customer
// following a payment link, not an operator.
func (h *InvoiceHandler) PayInvoice(c *fiber.Ctx) error {
	ctx := c.UserContext()

	result, err := h.checkout.CreateCheckout(ctx, c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Factuur niet gevonden",
			})
		case errors.Is(err, domain.ErrAlreadyPaid):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "Deze factuur is al betaald",
			})
		case errors.Is(err, domain.ErrInvoiceCancelled):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "Deze factuur is geannuleerd",
			})
		case errors.Is(err, domain.ErrProviderUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "Betaalservice is momenteel niet beschikbaar",
			})
		default:
			log.Printf("[Invoice] Error creating checkout: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "Kon betaling niet aanmaken",
			})
		}
	}

	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"payment_id":   result.PaymentID,
			"checkout_url": result.CheckoutURL,
			"expires_at":   result.ExpiresAt.Format(time.RFC3339),
		},
	})
}
