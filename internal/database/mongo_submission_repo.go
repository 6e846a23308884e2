package database

import (
	"context"
	"errors"
	"fmt"
	"time"
	"toolocal-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	submissionCollectionName = "submissions"
	counterCollectionName    = "counters"
	submissionCounterID      = "submission_id"
)

// MongoSubmissionRepository implements SubmissionRepository for MongoDB.
type MongoSubmissionRepository struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

// NewMongoSubmissionRepository creates a new MongoDB submission repository.
func NewMongoSubmissionRepository(db *mongo.Database) *MongoSubmissionRepository {
	return &MongoSubmissionRepository{
		collection: db.Collection(submissionCollectionName),
		counters:   db.Collection(counterCollectionName),
	}
}

// nextID atomically increments and returns the submission id counter.
func (r *MongoSubmissionRepository) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": submissionCounterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate submission id: %w", err)
	}
	return counter.Seq, nil
}

// Create assigns a fresh id and inserts the submission with status pending.
func (r *MongoSubmissionRepository) Create(ctx context.Context, submission *models.Submission) (int64, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return 0, err
	}

	submission.ID = id
	submission.Status = models.StatusPending
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, submission); err != nil {
		return 0, fmt.Errorf("failed to insert submission: %w", err)
	}
	return id, nil
}

// Get retrieves a single submission by id. It returns ErrSubmissionNotFound
// if no submission matches.
func (r *MongoSubmissionRepository) Get(ctx context.Context, id int64) (*models.Submission, error) {
	var submission models.Submission
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&submission)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to find submission %d: %w", id, err)
	}
	return &submission, nil
}

// SetStatus transitions a pending submission to the given terminal status.
// The update filter matches on the pending status, so when two resolvers
// race, only the first commit succeeds; the second gets ErrAlreadyResolved.
func (r *MongoSubmissionRepository) SetStatus(ctx context.Context, id int64, status models.SubmissionStatus, reviewerID int64, reviewerUsername string) error {
	filter := bson.M{"_id": id, "status": models.StatusPending}
	update := bson.M{
		"$set": bson.M{
			"status":            status,
			"reviewed_by":       reviewerID,
			"reviewer_username": reviewerUsername,
			"reviewed_at":       time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update status of submission %d: %w", id, err)
	}
	if result.MatchedCount == 0 {
		// Either the id is unknown or the submission is no longer pending.
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check submission %d after status miss: %w", id, err)
		}
		if count == 0 {
			return ErrSubmissionNotFound
		}
		return ErrAlreadyResolved
	}
	return nil
}

// ListPending returns all pending submissions, oldest first.
func (r *MongoSubmissionRepository) ListPending(ctx context.Context) ([]models.Submission, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"status": models.StatusPending}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending submissions: %w", err)
	}
	defer cursor.Close(ctx)

	var submissions []models.Submission
	if err := cursor.All(ctx, &submissions); err != nil {
		return nil, fmt.Errorf("failed to decode pending submissions: %w", err)
	}
	return submissions, nil
}
