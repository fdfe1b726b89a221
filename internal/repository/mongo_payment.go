package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/groeimetai/billing/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPaymentRepository implements domain.PaymentRepository.
// Payment ids are ULIDs generated by the checkout service, stored as _id.
type MongoPaymentRepository struct {
	collection *mongo.Collection
}

// NewMongoPaymentRepository creates a new payment repository
func NewMongoPaymentRepository(db *mongo.Database) *MongoPaymentRepository {
	return &MongoPaymentRepository{
		collection: db.Collection("payments"),
	}
}

func (r *MongoPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, payment)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *MongoPaymentRepository) GetByMolliePaymentID(ctx context.Context, molliePaymentID string) (*domain.Payment, error) {
	var payment domain.Payment
	if err := r.collection.FindOne(ctx, bson.M{"mollie_payment_id": molliePaymentID}).Decode(&payment); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment by mollie id: %w", err)
	}
	return &payment, nil
}

// GetLatestByInvoiceID returns the most recent payment record for the invoice
func (r *MongoPaymentRepository) GetLatestByInvoiceID(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var payment domain.Payment
	if err := r.collection.FindOne(ctx, bson.M{"invoice_id": invoiceID}, opts).Decode(&payment); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest payment: %w", err)
	}
	return &payment, nil
}

// GetActiveByInvoiceID finds a non-terminal, non-expired payment for reuse
func (r *MongoPaymentRepository) GetActiveByInvoiceID(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	filter := bson.M{
		"invoice_id": invoiceID,
		"status": bson.M{"$in": []string{
			domain.PaymentStatusOpen,
			domain.PaymentStatusPending,
			domain.PaymentStatusAuthorized,
		}},
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var payment domain.Payment
	if err := r.collection.FindOne(ctx, filter, opts).Decode(&payment); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active payment: %w", err)
	}
	return &payment, nil
}

func (r *MongoPaymentRepository) UpdateStatus(ctx context.Context, id string, status string, method string, failedAt *time.Time) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if method != "" {
		set["method"] = method
	}
	if failedAt != nil {
		set["failed_at"] = failedAt
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
