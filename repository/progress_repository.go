package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"cineai/database"
	"cineai/models"
)

// ErrProgressNotFound is returned when a movie has no recorded progress
var ErrProgressNotFound = errors.New("viewing progress not found")

// ProgressRepository handles viewing progress records, one per movie
type ProgressRepository struct {
	db *database.DB
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *database.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Upsert stores the progress, replacing any previous record for the movie
func (r *ProgressRepository) Upsert(ctx context.Context, progress models.ViewingProgress) error {
	query := `
		INSERT INTO playback_progress (movie_id, movie_title, poster_url, last_played, progress_percentage)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(movie_id) DO UPDATE SET
			movie_title = excluded.movie_title,
			poster_url = excluded.poster_url,
			last_played = excluded.last_played,
			progress_percentage = excluded.progress_percentage
	`

	_, err := r.db.ExecContext(ctx, query,
		progress.MovieID, progress.MovieTitle, nullString(progress.PosterURL),
		progress.LastPlayed, progress.ProgressPercentage,
	)
	if err != nil {
		return fmt.Errorf("failed to save progress for movie %s: %w", progress.MovieID, err)
	}
	return nil
}

// GetAll returns every progress record, most recently played first
func (r *ProgressRepository) GetAll(ctx context.Context) ([]models.ViewingProgress, error) {
	query := `SELECT movie_id, movie_title, poster_url, last_played, progress_percentage
			  FROM playback_progress
			  ORDER BY last_played DESC, movie_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Printf("Failed to close rows: %v", cerr)
		}
	}()

	records := []models.ViewingProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		records = append(records, *p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress: %w", err)
	}

	return records, nil
}

// GetByMovieID returns the progress recorded for a movie
func (r *ProgressRepository) GetByMovieID(ctx context.Context, movieID string) (*models.ViewingProgress, error) {
	query := `SELECT movie_id, movie_title, poster_url, last_played, progress_percentage
			  FROM playback_progress WHERE movie_id = ?`

	p, err := scanProgress(r.db.QueryRowContext(ctx, query, movieID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return p, nil
}

func scanProgress(row rowScanner) (*models.ViewingProgress, error) {
	var p models.ViewingProgress
	var poster sql.NullString
	if err := row.Scan(&p.MovieID, &p.MovieTitle, &poster, &p.LastPlayed, &p.ProgressPercentage); err != nil {
		return nil, err
	}
	p.PosterURL = poster.String
	return &p, nil
}
