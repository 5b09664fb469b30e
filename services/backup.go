package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cineai/models"
	"cineai/repository"

	"github.com/goccy/go-json"
)

// ErrInvalidBackup is returned when a backup document cannot be imported
var ErrInvalidBackup = errors.New("invalid backup file")

// BackupService exports and restores the catalog as a JSON array of movies
type BackupService struct {
	movies *repository.MovieRepository
}

// NewBackupService creates a backup service
func NewBackupService(movies *repository.MovieRepository) *BackupService {
	return &BackupService{movies: movies}
}

// Export writes every movie as a single JSON array and returns how many
func (s *BackupService) Export(ctx context.Context, w io.Writer) (int, error) {
	movies, err := s.movies.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	if err := json.NewEncoder(w).Encode(movies); err != nil {
		return 0, fmt.Errorf("failed to encode backup: %w", err)
	}
	return len(movies), nil
}

// Import reads a JSON array of movies and upserts them by id.
// The whole document is decoded and validated before anything is written.
func (s *BackupService) Import(ctx context.Context, r io.Reader) (int, error) {
	var movies []models.Movie
	if err := json.NewDecoder(r).Decode(&movies); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	for i := range movies {
		if err := validate.Struct(&movies[i]); err != nil {
			return 0, fmt.Errorf("%w: item %d: %v", ErrInvalidBackup, i, err)
		}
		if movies[i].Links == nil {
			movies[i].Links = []models.LanguageGroup{}
		}
	}

	// Exports are newest first; write oldest first so the restored catalog
	// keeps the same order.
	for i, j := 0, len(movies)-1; i < j; i, j = i+1, j-1 {
		movies[i], movies[j] = movies[j], movies[i]
	}

	if err := s.movies.UpsertMany(ctx, movies); err != nil {
		return 0, err
	}
	return len(movies), nil
}
