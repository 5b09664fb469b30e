package repository

import (
	"path/filepath"
	"testing"

	"cineai/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestUserRepo(t *testing.T) *UserRepository {
	repo, err := NewUserRepository(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Logf("Failed to close account database: %v", err)
		}
	})
	return repo
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := setupTestUserRepo(t)

	user := &models.User{ID: "u1", Name: "Ana", Email: "Ana@Example.com", Password: "secret", Role: models.RoleUser}
	require.NoError(t, repo.Create(user))

	byID, err := repo.GetByID("u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", byID.Name)
	assert.Equal(t, "secret", byID.Password)

	byEmail, err := repo.GetByEmail("  ana@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	repo := setupTestUserRepo(t)

	require.NoError(t, repo.Create(&models.User{ID: "u1", Email: "ana@example.com"}))
	err := repo.Create(&models.User{ID: "u2", Email: "ANA@example.com"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestUserRepository_Update(t *testing.T) {
	repo := setupTestUserRepo(t)

	user := &models.User{ID: "u1", Email: "ana@example.com"}
	require.NoError(t, repo.Create(user))

	user.Favorites = []string{"550"}
	require.NoError(t, repo.Update(user))

	stored, err := repo.GetByID("u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"550"}, stored.Favorites)

	err = repo.Update(&models.User{ID: "ghost"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	repo := setupTestUserRepo(t)

	_, err := repo.GetByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
