package repository

import (
	"context"
	"fmt"

	"github.com/groeimetai/billing/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSyncRunRepository implements domain.SyncRunRepository
type MongoSyncRunRepository struct {
	collection *mongo.Collection
}

// NewMongoSyncRunRepository creates a new sync-run repository
func NewMongoSyncRunRepository(db *mongo.Database) *MongoSyncRunRepository {
	return &MongoSyncRunRepository{
		collection: db.Collection("payment_sync_runs"),
	}
}

func (r *MongoSyncRunRepository) Save(ctx context.Context, run *domain.SyncRun) error {
	_, err := r.collection.InsertOne(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// GetLast returns the most recent batch run summary
func (r *MongoSyncRunRepository) GetLast(ctx context.Context) (*domain.SyncRun, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "last_sync_at", Value: -1}})

	var run domain.SyncRun
	if err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&run); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}
	return &run, nil
}
