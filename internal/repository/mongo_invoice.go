package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/groeimetai/billing/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoInvoiceRepository implements domain.InvoiceRepository
type MongoInvoiceRepository struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

// invoiceDoc is the persisted shape of an invoice; _id stays an ObjectID
// while the domain type carries the hex string.
type invoiceDoc struct {
	ID                  primitive.ObjectID    `bson:"_id"`
	InvoiceNumber       string                `bson:"invoice_number"`
	ClientID            string                `bson:"client_id,omitempty"`
	Status              string                `bson:"status"`
	Financial           domain.Financial      `bson:"financial"`
	Items               []domain.LineItem     `bson:"items,omitempty"`
	PaymentDetails      domain.PaymentDetails `bson:"payment_details,omitempty"`
	IssueDate           time.Time             `bson:"issue_date"`
	DueDate             time.Time             `bson:"due_date"`
	LastPaymentSync     *time.Time            `bson:"last_payment_sync,omitempty"`
	MolliePaymentStatus string                `bson:"mollie_payment_status,omitempty"`
	Revision            int64                 `bson:"revision"`
	CreatedAt           time.Time             `bson:"created_at"`
	UpdatedAt           time.Time             `bson:"updated_at"`
}

// NewMongoInvoiceRepository creates a new invoice repository
func NewMongoInvoiceRepository(db *mongo.Database) *MongoInvoiceRepository {
	return &MongoInvoiceRepository{
		collection: db.Collection("invoices"),
		counters:   db.Collection("counters"),
	}
}

// Create persists a new invoice, assigning an id and a sequential
// per-month invoice number (INV-YYYYMM-NNN) when none is set.
func (r *MongoInvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	invoice.Revision = 1

	objID := primitive.NewObjectID()
	invoice.ID = objID.Hex()

	if invoice.InvoiceNumber == "" {
		number, err := r.nextInvoiceNumber(ctx, invoice.IssueDate)
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = number
	}

	_, err := r.collection.InsertOne(ctx, toInvoiceDoc(invoice, objID))
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// nextInvoiceNumber increments the monthly counter and formats the number
func (r *MongoInvoiceRepository) nextInvoiceNumber(ctx context.Context, issueDate time.Time) (string, error) {
	if issueDate.IsZero() {
		issueDate = time.Now().UTC()
	}
	month := issueDate.UTC().Format("200601")

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "invoice_number:" + month},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return "", fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	return fmt.Sprintf("INV-%s-%03d", month, counter.Seq), nil
}

func (r *MongoInvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice id: %w", err)
	}

	var doc invoiceDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return doc.toDomain(), nil
}

// ListOpen returns all invoices eligible for reconciliation, oldest first
func (r *MongoInvoiceRepository) ListOpen(ctx context.Context) ([]*domain.Invoice, error) {
	filter := bson.M{"status": bson.M{"$in": domain.OpenInvoiceStatuses}}
	opts := options.Find().SetSort(bson.D{{Key: "issue_date", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list open invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var invoices []*domain.Invoice
	for cursor.Next(ctx) {
		var doc invoiceDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		invoices = append(invoices, doc.toDomain())
	}
	return invoices, cursor.Err()
}

func (r *MongoInvoiceRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now().UTC(),
		},
		"$inc": bson.M{"revision": 1},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTransactionID patches the invoice with the remote payment reference
func (r *MongoInvoiceRepository) SetTransactionID(ctx context.Context, id string, transactionID string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"payment_details.transaction_id": transactionID,
			"updated_at":                     time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to set transaction id: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyPaid persists the paid transition with a compare-and-swap on the
// revision counter. A matched-but-stale revision means another writer won;
// the caller decides whether to re-read and retry.
func (r *MongoInvoiceRepository) ApplyPaid(ctx context.Context, invoice *domain.Invoice, expectedRevision int64) error {
	objID, err := primitive.ObjectIDFromHex(invoice.ID)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":            invoice.Status,
			"financial.paid":    invoice.Financial.Paid,
			"financial.balance": invoice.Financial.Balance,
			"payment_details":   invoice.PaymentDetails,
			"updated_at":        now,
		},
		"$inc": bson.M{"revision": 1},
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objID, "revision": expectedRevision}, update)
	if err != nil {
		return fmt.Errorf("failed to apply paid transition: %w", err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a missing invoice from a lost race.
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objID})
		if err != nil {
			return fmt.Errorf("failed to apply paid transition: %w", err)
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}

	invoice.Revision = expectedRevision + 1
	invoice.UpdatedAt = now
	return nil
}

// StampSync records a reconciliation observation. Unconditional write:
// stamp fields are observational and never contended semantically.
func (r *MongoInvoiceRepository) StampSync(ctx context.Context, id string, mollieStatus string, syncedAt time.Time) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"last_payment_sync":     syncedAt,
			"mollie_payment_status": mollieStatus,
			"updated_at":            syncedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to stamp sync: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toInvoiceDoc(invoice *domain.Invoice, objID primitive.ObjectID) invoiceDoc {
	return invoiceDoc{
		ID:                  objID,
		InvoiceNumber:       invoice.InvoiceNumber,
		ClientID:            invoice.ClientID,
		Status:              invoice.Status,
		Financial:           invoice.Financial,
		Items:               invoice.Items,
		PaymentDetails:      invoice.PaymentDetails,
		IssueDate:           invoice.IssueDate,
		DueDate:             invoice.DueDate,
		LastPaymentSync:     invoice.LastPaymentSync,
		MolliePaymentStatus: invoice.MolliePaymentStatus,
		Revision:            invoice.Revision,
		CreatedAt:           invoice.CreatedAt,
		UpdatedAt:           invoice.UpdatedAt,
	}
}

func (d *invoiceDoc) toDomain() *domain.Invoice {
	return &domain.Invoice{
		ID:                  d.ID.Hex(),
		InvoiceNumber:       d.InvoiceNumber,
		ClientID:            d.ClientID,
		Status:              d.Status,
		Financial:           d.Financial,
		Items:               d.Items,
		PaymentDetails:      d.PaymentDetails,
		IssueDate:           d.IssueDate,
		DueDate:             d.DueDate,
		LastPaymentSync:     d.LastPaymentSync,
		MolliePaymentStatus: d.MolliePaymentStatus,
		Revision:            d.Revision,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}
