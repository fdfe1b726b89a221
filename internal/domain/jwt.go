package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// BillingClaims represents custom JWT claims for the billing API
type BillingClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
