// Package repository provides data access layer for the catalog application.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"cineai/database"
	"cineai/models"

	"github.com/goccy/go-json"
)

// ErrMovieNotFound is returned when no movie has the requested id
var ErrMovieNotFound = errors.New("movie not found")

const movieColumns = `id, imdb_id, title, year, rating, duration, genre, description,
	poster_url, backdrop_url, director, cast_names, links, created_at, updated_at`

// MovieRepository handles database operations for movies.
// Movies are keyed by id and listed most recently inserted first.
type MovieRepository struct {
	db *database.DB
}

// NewMovieRepository creates a new movie repository
func NewMovieRepository(db *database.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

// UpsertMany inserts the movies or replaces the stored ones with the same id.
// All rows are written in a single transaction. A replaced movie keeps its
// original position in the catalog order.
func (r *MovieRepository) UpsertMany(ctx context.Context, movies []models.Movie) error {
	if len(movies) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("Failed to rollback movie upsert: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO movies (id, imdb_id, title, year, rating, duration, genre, description,
							poster_url, backdrop_url, director, cast_names, links, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			imdb_id = excluded.imdb_id,
			title = excluded.title,
			year = excluded.year,
			rating = excluded.rating,
			duration = excluded.duration,
			genre = excluded.genre,
			description = excluded.description,
			poster_url = excluded.poster_url,
			backdrop_url = excluded.backdrop_url,
			director = excluded.director,
			cast_names = excluded.cast_names,
			links = excluded.links,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare movie upsert: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			log.Printf("Failed to close statement: %v", err)
		}
	}()

	now := time.Now()
	for i := range movies {
		movie := &movies[i]
		if movie.ID == "" {
			return fmt.Errorf("movie %q has no id", movie.Title)
		}

		genre, err := encodeList(movie.Genre)
		if err != nil {
			return err
		}
		cast, err := encodeList(movie.Cast)
		if err != nil {
			return err
		}
		links, err := encodeLinks(movie.Links)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			movie.ID, nullString(movie.IMDBID), movie.Title, nullInt(movie.Year),
			nullFloat64(movie.Rating), nullString(movie.Duration), genre,
			nullString(movie.Description), nullString(movie.PosterURL), nullString(movie.BackdropURL),
			nullString(movie.Director), cast, links, now, now,
		); err != nil {
			return fmt.Errorf("failed to upsert movie %s: %w", movie.ID, err)
		}
		movie.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit movie upsert: %w", err)
	}
	return nil
}

// GetPage returns up to limit movies starting at offset, newest first.
// Consecutive pages over an unchanged catalog never overlap or skip.
func (r *MovieRepository) GetPage(ctx context.Context, offset, limit int) ([]models.Movie, error) {
	if limit <= 0 {
		return []models.Movie{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + movieColumns + ` FROM movies ORDER BY seq DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, offset)
}

// GetAll retrieves all movies, in the same order as GetPage
func (r *MovieRepository) GetAll(ctx context.Context) ([]models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies ORDER BY seq DESC`
	return r.query(ctx, query)
}

// GetByIDs retrieves the movies with the given ids that exist, in catalog order
func (r *MovieRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Movie, error) {
	if len(ids) == 0 {
		return []models.Movie{}, nil
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	movies := make([]models.Movie, 0, len(ids))
	for _, movie := range all {
		if _, ok := wanted[movie.ID]; ok {
			movies = append(movies, movie)
		}
	}
	return movies, nil
}

// Count returns the number of movies in the catalog
func (r *MovieRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return count, nil
}

// GetByID retrieves a movie by its ID
func (r *MovieRepository) GetByID(ctx context.Context, id string) (*models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE id = ?`

	movie, err := scanMovie(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("movie with id %s: %w", id, ErrMovieNotFound)
		}
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return movie, nil
}

// Clear removes every movie from the catalog
func (r *MovieRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM movies`); err != nil {
		return fmt.Errorf("failed to clear movies: %w", err)
	}
	return nil
}

func (r *MovieRepository) query(ctx context.Context, query string, args ...any) ([]models.Movie, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movies: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Failed to close rows: %v", err)
		}
	}()

	movies := []models.Movie{}
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		movies = append(movies, *movie)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return movies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (*models.Movie, error) {
	var movie models.Movie
	var imdbID, duration, genre, description, poster, backdrop, director, cast, links sql.NullString
	var year sql.NullInt64
	var rating sql.NullFloat64

	err := row.Scan(
		&movie.ID, &imdbID, &movie.Title, &year, &rating, &duration, &genre,
		&description, &poster, &backdrop, &director, &cast, &links,
		&movie.CreatedAt, &movie.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	movie.IMDBID = imdbID.String
	movie.Year = int(year.Int64)
	movie.Rating = rating.Float64
	movie.Duration = duration.String
	movie.Description = description.String
	movie.PosterURL = poster.String
	movie.BackdropURL = backdrop.String
	movie.Director = director.String

	if movie.Genre, err = decodeList(genre); err != nil {
		return nil, err
	}
	if movie.Cast, err = decodeList(cast); err != nil {
		return nil, err
	}
	if movie.Links, err = decodeLinks(links); err != nil {
		return nil, err
	}

	return &movie, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(s sql.NullString) ([]string, error) {
	values := []string{}
	if !s.Valid || s.String == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(s.String), &values); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return values, nil
}

func encodeLinks(links []models.LanguageGroup) (string, error) {
	if links == nil {
		links = []models.LanguageGroup{}
	}
	data, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("failed to encode links: %w", err)
	}
	return string(data), nil
}

func decodeLinks(s sql.NullString) ([]models.LanguageGroup, error) {
	links := []models.LanguageGroup{}
	if !s.Valid || s.String == "" {
		return links, nil
	}
	if err := json.Unmarshal([]byte(s.String), &links); err != nil {
		return nil, fmt.Errorf("failed to decode links: %w", err)
	}
	return links, nil
}

// Helper functions for handling null values
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

func nullFloat64(f float64) sql.NullFloat64 {
	if f == 0.0 {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
