package database

import (
	"context"
	"errors"
	"toolocal-bot/internal/database/models"
)

// ErrSubmissionNotFound is returned when a submission id is unknown.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrAlreadyResolved is returned when a status transition is attempted on a
// submission that is no longer pending. Callers treat it as an idempotent
// no-op, not a failure.
var ErrAlreadyResolved = errors.New("submission already resolved")

// SubmissionRepository defines the durable registry of submissions.
// Every mutation is flushed before the call returns.
type SubmissionRepository interface {
	// Create assigns a fresh id, persists the submission with status pending
	// and returns the id.
	Create(ctx context.Context, submission *models.Submission) (int64, error)
	Get(ctx context.Context, id int64) (*models.Submission, error)
	// SetStatus transitions pending -> status. It returns ErrAlreadyResolved
	// if the submission is not pending, so exactly one transition ever wins.
	SetStatus(ctx context.Context, id int64, status models.SubmissionStatus, reviewerID int64, reviewerUsername string) error
	// ListPending returns all pending submissions in creation order.
	ListPending(ctx context.Context) ([]models.Submission, error)
}

// QuotaRepository persists per-user quota records.
type QuotaRepository interface {
	// Get returns (nil, nil) when the user has no record yet.
	Get(ctx context.Context, userID int64) (*models.UserQuotaRecord, error)
	Save(ctx context.Context, record *models.UserQuotaRecord) error
	ListAll(ctx context.Context) ([]models.UserQuotaRecord, error)
}

// AdminRepository persists the dynamic reviewer registry.
type AdminRepository interface {
	Add(ctx context.Context, admin *models.Admin) error
	Remove(ctx context.Context, userID int64) error
	List(ctx context.Context) ([]models.Admin, error)
}
