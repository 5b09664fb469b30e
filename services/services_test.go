package services

import (
	"context"
	"path/filepath"
	"testing"

	"cineai/database"
	"cineai/models"
	"cineai/repository"

	"github.com/stretchr/testify/require"
)

func setupMovieRepo(t *testing.T) *repository.MovieRepository {
	testDB, err := database.NewDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, testDB.Migrate(context.Background()))
	t.Cleanup(func() {
		if err := testDB.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return repository.NewMovieRepository(testDB)
}

func setupAccounts(t *testing.T, adminEmail string) *AccountService {
	users, err := repository.NewUserRepository(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := users.Close(); err != nil {
			t.Logf("Failed to close account database: %v", err)
		}
	})
	return NewAccountService(users, adminEmail)
}

func movie(id, title string) models.Movie {
	return models.Movie{
		ID:       id,
		Title:    title,
		Year:     2000,
		Rating:   7,
		Director: "Someone",
		Genre:    []string{"Drama"},
		Cast:     []string{},
		Links:    []models.LanguageGroup{},
	}
}
