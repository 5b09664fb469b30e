package services

import (
	"testing"

	"cineai/models"
	"cineai/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_Register(t *testing.T) {
	accounts := setupAccounts(t, "Admin@Example.com")

	user, err := accounts.Register(" Ana ", "ANA@example.com", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Contains(t, user.Avatar, "seed=Ana")
	assert.NotEmpty(t, user.JoinedDate)
	assert.Empty(t, user.Favorites)

	admin, err := accounts.Register("Boss", "admin@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestAccountService_Register_DuplicateEmail(t *testing.T) {
	accounts := setupAccounts(t, "")

	_, err := accounts.Register("Ana", "ana@example.com", "secret")
	require.NoError(t, err)

	_, err = accounts.Register("Other Ana", "Ana@Example.com", "other")
	assert.ErrorIs(t, err, repository.ErrUserExists)
}

func TestAccountService_Register_Invalid(t *testing.T) {
	accounts := setupAccounts(t, "")

	_, err := accounts.Register("", "ana@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidAccount)

	_, err = accounts.Register("Ana", "not-an-email", "secret")
	assert.ErrorIs(t, err, ErrInvalidAccount)

	_, err = accounts.Register("Ana", "ana@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestAccountService_Login(t *testing.T) {
	accounts := setupAccounts(t, "")

	registered, err := accounts.Register("Ana", "ana@example.com", "secret")
	require.NoError(t, err)

	user, err := accounts.Login(" ANA@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = accounts.Login("ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = accounts.Login("nobody@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccountService_ToggleFavorite(t *testing.T) {
	accounts := setupAccounts(t, "")

	user, err := accounts.Register("Ana", "ana@example.com", "secret")
	require.NoError(t, err)

	updated, favorite, err := accounts.ToggleFavorite(user.ID, "550")
	require.NoError(t, err)
	assert.True(t, favorite)
	assert.Equal(t, []string{"550"}, updated.Favorites)

	_, _, err = accounts.ToggleFavorite(user.ID, "603")
	require.NoError(t, err)

	updated, favorite, err = accounts.ToggleFavorite(user.ID, "550")
	require.NoError(t, err)
	assert.False(t, favorite)
	assert.Equal(t, []string{"603"}, updated.Favorites)

	stored, err := accounts.Get(user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"603"}, stored.Favorites)

	_, _, err = accounts.ToggleFavorite("ghost", "550")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
