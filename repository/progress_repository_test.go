package repository

import (
	"context"
	"testing"

	"cineai/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressRepository_UpsertAndGet(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewProgressRepository(testDB)
	ctx := context.Background()

	p := models.ViewingProgress{MovieID: "550", MovieTitle: "Fight Club", PosterURL: "p.jpg", LastPlayed: 1000, ProgressPercentage: 10}
	require.NoError(t, repo.Upsert(ctx, p))

	p.ProgressPercentage = 55
	p.LastPlayed = 2000
	require.NoError(t, repo.Upsert(ctx, p))

	stored, err := repo.GetByMovieID(ctx, "550")
	require.NoError(t, err)
	assert.Equal(t, 55, stored.ProgressPercentage)
	assert.Equal(t, int64(2000), stored.LastPlayed)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProgressRepository_GetAll_SortedByLastPlayed(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewProgressRepository(testDB)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.ViewingProgress{MovieID: "a", MovieTitle: "A", LastPlayed: 300}))
	require.NoError(t, repo.Upsert(ctx, models.ViewingProgress{MovieID: "b", MovieTitle: "B", LastPlayed: 100}))
	require.NoError(t, repo.Upsert(ctx, models.ViewingProgress{MovieID: "c", MovieTitle: "C", LastPlayed: 200}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].MovieID)
	assert.Equal(t, "c", all[1].MovieID)
	assert.Equal(t, "b", all[2].MovieID)
}

func TestProgressRepository_GetByMovieID_NotFound(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewProgressRepository(testDB)

	_, err := repo.GetByMovieID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProgressNotFound)
}
