package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/groeimetai/billing/internal/domain"
)

// FirebaseAuthClient defines the interface for Firebase Auth operations.
// This allows mocking for tests.
type FirebaseAuthClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthService exchanges Firebase ID tokens for internal access tokens
type AuthService struct {
	userRepo    domain.UserRepository
	authClient  FirebaseAuthClient
	jwtSecret   string
	tokenExpiry time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo domain.UserRepository,
	authClient FirebaseAuthClient,
	jwtSecret string,
	tokenExpiry time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		authClient:  authClient,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
	}
}

// LoginResponse contains the user and the issued access token
type LoginResponse struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"` // seconds
	IsNewUser bool         `json:"is_new_user"`
}

// Login verifies a Firebase ID token, resolves (or registers) the local user
// and issues a short-lived access JWT carrying the user's role.
func (s *AuthService) Login(ctx context.Context, firebaseToken string) (*LoginResponse, error) {
	token, err := s.authClient.VerifyIDToken(ctx, firebaseToken)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	email, _ := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)
	if name == "" {
		name = email
	}

	user, err := s.userRepo.GetByFirebaseUID(ctx, token.UID)
	isNew := false
	if errors.Is(err, domain.ErrNotFound) {
		// First login registers a client account; operator roles are
		// provisioned out of band.
		user = &domain.User{
			FirebaseUID: token.UID,
			Email:       email,
			Name:        name,
			Role:        domain.RoleClient,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to register user: %w", err)
		}
		isNew = true
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &LoginResponse{
		User:      user,
		Token:     accessToken,
		ExpiresIn: int64(s.tokenExpiry.Seconds()),
		IsNewUser: isNew,
	}, nil
}

func (s *AuthService) generateAccessToken(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := domain.BillingClaims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			Issuer:    "groeimetai-billing",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}
