package database

import (
	"context"
	"fmt"
	"time"
	"toolocal-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const adminCollectionName = "admins"

// MongoAdminRepository implements AdminRepository for MongoDB.
type MongoAdminRepository struct {
	collection *mongo.Collection
}

// NewMongoAdminRepository creates a new MongoDB admin repository.
func NewMongoAdminRepository(db *mongo.Database) *MongoAdminRepository {
	return &MongoAdminRepository{collection: db.Collection(adminCollectionName)}
}

// Add upserts an admin entry. Adding an existing admin refreshes its name.
func (r *MongoAdminRepository) Add(ctx context.Context, admin *models.Admin) error {
	if admin.AddedAt.IsZero() {
		admin.AddedAt = time.Now()
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": admin.UserID}, admin, opts); err != nil {
		return fmt.Errorf("failed to add admin %d: %w", admin.UserID, err)
	}
	return nil
}

// Remove deletes an admin entry. Removing an unknown admin is not an error.
func (r *MongoAdminRepository) Remove(ctx context.Context, userID int64) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return fmt.Errorf("failed to remove admin %d: %w", userID, err)
	}
	return nil
}

// List returns all registered admins.
func (r *MongoAdminRepository) List(ctx context.Context) ([]models.Admin, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer cursor.Close(ctx)

	var admins []models.Admin
	if err := cursor.All(ctx, &admins); err != nil {
		return nil, fmt.Errorf("failed to decode admins: %w", err)
	}
	return admins, nil
}
