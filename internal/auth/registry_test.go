package auth

import (
	"context"
	"sync"
	"testing"
	"toolocal-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memAdminRepo is an in-memory AdminRepository for registry tests.
type memAdminRepo struct {
	mu     sync.Mutex
	admins map[int64]models.Admin
}

func newMemAdminRepo() *memAdminRepo {
	return &memAdminRepo{admins: make(map[int64]models.Admin)}
}

func (r *memAdminRepo) Add(_ context.Context, admin *models.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[admin.UserID] = *admin
	return nil
}

func (r *memAdminRepo) Remove(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.admins, userID)
	return nil
}

func (r *memAdminRepo) List(_ context.Context) ([]models.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]models.Admin, 0, len(r.admins))
	for _, admin := range r.admins {
		all = append(all, admin)
	}
	return all, nil
}

func TestAdminRegistry(t *testing.T) {
	ctx := context.Background()
	const mainAdminID = int64(999)

	registry, err := NewAdminRegistry(mainAdminID, newMemAdminRepo())
	require.NoError(t, err)

	t.Run("MainAdminIsAlwaysReviewer", func(t *testing.T) {
		assert.True(t, registry.IsMainAdmin(mainAdminID))

		ok, err := registry.IsReviewer(ctx, mainAdminID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("AddAndRemove", func(t *testing.T) {
		ok, err := registry.IsReviewer(ctx, 555)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, registry.Add(ctx, 555, "mod", mainAdminID))
		ok, err = registry.IsReviewer(ctx, 555)
		require.NoError(t, err)
		assert.True(t, ok)

		reviewers, err := registry.Reviewers(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{mainAdminID, 555}, reviewers)

		require.NoError(t, registry.Remove(ctx, 555))
		ok, err = registry.IsReviewer(ctx, 555)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MainAdminCannotBeManaged", func(t *testing.T) {
		assert.Error(t, registry.Add(ctx, mainAdminID, "main", mainAdminID))
		assert.Error(t, registry.Remove(ctx, mainAdminID))
	})

	t.Run("RequiresMainAdmin", func(t *testing.T) {
		_, err := NewAdminRegistry(0, newMemAdminRepo())
		assert.Error(t, err)
	})
}
