package database

import (
	"context"
	"errors"
	"fmt"
	"toolocal-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const quotaCollectionName = "user_limits"

// MongoQuotaRepository implements QuotaRepository for MongoDB.
type MongoQuotaRepository struct {
	collection *mongo.Collection
}

// NewMongoQuotaRepository creates a new MongoDB quota repository.
func NewMongoQuotaRepository(db *mongo.Database) *MongoQuotaRepository {
	return &MongoQuotaRepository{collection: db.Collection(quotaCollectionName)}
}

// Get returns the quota record for a user, or (nil, nil) if none exists yet.
func (r *MongoQuotaRepository) Get(ctx context.Context, userID int64) (*models.UserQuotaRecord, error) {
	var record models.UserQuotaRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load quota record for user %d: %w", userID, err)
	}
	return &record, nil
}

// Save upserts the quota record. The write is synchronous; quota state must
// survive a restart or the flood control is worthless.
func (r *MongoQuotaRepository) Save(ctx context.Context, record *models.UserQuotaRecord) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": record.UserID}, record, opts); err != nil {
		return fmt.Errorf("failed to save quota record for user %d: %w", record.UserID, err)
	}
	return nil
}

// ListAll returns every quota record, used for aggregate statistics.
func (r *MongoQuotaRepository) ListAll(ctx context.Context) ([]models.UserQuotaRecord, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list quota records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.UserQuotaRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode quota records: %w", err)
	}
	return records, nil
}
