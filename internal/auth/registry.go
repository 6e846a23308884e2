package auth

import (
	"context"
	"fmt"
	"time"
	"toolocal-bot/internal/database"
	"toolocal-bot/internal/database/models"
)

// AdminRegistry resolves reviewer identities: the main admin configured at
// startup plus a dynamic set persisted through an AdminRepository.
type AdminRegistry struct {
	mainAdminID int64
	repo        database.AdminRepository
}

// NewAdminRegistry creates a registry. It requires a non-zero main admin id
// and a non-nil repository.
func NewAdminRegistry(mainAdminID int64, repo database.AdminRepository) (*AdminRegistry, error) {
	if mainAdminID == 0 {
		return nil, fmt.Errorf("main admin ID cannot be zero")
	}
	if repo == nil {
		return nil, fmt.Errorf("admin repository cannot be nil")
	}
	return &AdminRegistry{mainAdminID: mainAdminID, repo: repo}, nil
}

// IsMainAdmin reports whether the user is the configured main admin.
func (r *AdminRegistry) IsMainAdmin(userID int64) bool {
	return userID == r.mainAdminID
}

// IsReviewer reports whether the user may approve or reject submissions.
func (r *AdminRegistry) IsReviewer(ctx context.Context, userID int64) (bool, error) {
	if userID == r.mainAdminID {
		return true, nil
	}
	admins, err := r.repo.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check reviewer status: %w", err)
	}
	for _, admin := range admins {
		if admin.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// Reviewers returns the ids of all reviewers, main admin included, without
// duplicates.
func (r *AdminRegistry) Reviewers(ctx context.Context) ([]int64, error) {
	admins, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewers: %w", err)
	}

	ids := make([]int64, 0, len(admins)+1)
	ids = append(ids, r.mainAdminID)
	for _, admin := range admins {
		if admin.UserID != r.mainAdminID {
			ids = append(ids, admin.UserID)
		}
	}
	return ids, nil
}

// Add registers a new admin. The main admin is implicit and never stored.
func (r *AdminRegistry) Add(ctx context.Context, userID int64, username string, addedBy int64) error {
	if userID == r.mainAdminID {
		return fmt.Errorf("user %d is already the main admin", userID)
	}
	return r.repo.Add(ctx, &models.Admin{
		UserID:   userID,
		Username: username,
		AddedBy:  addedBy,
		AddedAt:  time.Now(),
	})
}

// Remove deregisters an admin. The main admin cannot be removed.
func (r *AdminRegistry) Remove(ctx context.Context, userID int64) error {
	if userID == r.mainAdminID {
		return fmt.Errorf("the main admin cannot be removed")
	}
	return r.repo.Remove(ctx, userID)
}

// List returns the dynamic admin set (main admin excluded).
func (r *AdminRegistry) List(ctx context.Context) ([]models.Admin, error) {
	return r.repo.List(ctx)
}
