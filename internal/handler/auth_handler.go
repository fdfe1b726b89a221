package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/groeimetai/billing/internal/service"
)

// AuthHandler handles the login endpoint
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest carries the Firebase ID token to exchange
type LoginRequest struct {
	FirebaseToken string `json:"firebase_token"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil || req.FirebaseToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "firebase_token is required",
		})
	}

	resp, err := h.authService.Login(c.UserContext(), req.FirebaseToken)
	if err != nil {
		log.Printf("[Auth] Login failed: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "invalid or expired token",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    resp,
	})
}
