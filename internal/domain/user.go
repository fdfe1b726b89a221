package domain

import (
	"context"
	"time"
)

// Operator roles
const (
	RoleAdmin      = "admin"
	RoleConsultant = "consultant"
	RoleClient     = "client"
)

// User is an operator or client account of the billing portal
type User struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	FirebaseUID string    `bson:"firebase_uid" json:"firebase_uid"`
	Email       string    `bson:"email" json:"email"`
	Name        string    `bson:"name,omitempty" json:"name,omitempty"`
	Role        string    `bson:"role" json:"role"`
	CreatedAt   time.Time `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at,omitempty" json:"updated_at"`
}

// UserRepository defines operations for managing users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByFirebaseUID(ctx context.Context, firebaseUID string) (*User, error)
}
