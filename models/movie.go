// Package models defines the data structures used throughout the application.
package models

import "time"

// ServerLink is a single playable server for a movie. Either field may be
// empty when the import line had nothing on that side of the colon.
type ServerLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// LanguageGroup groups playable servers under a language label
type LanguageGroup struct {
	Language string       `json:"language"`
	Servers  []ServerLink `json:"servers" validate:"dive"`
}

// Movie represents a movie in the catalog
type Movie struct {
	ID          string          `json:"id" validate:"required"`
	IMDBID      string          `json:"imdbId,omitempty"`
	Title       string          `json:"title" validate:"required"`
	Year        int             `json:"year"`
	Rating      float64         `json:"rating" validate:"gte=0,lte=10"`
	Duration    string          `json:"duration"`
	Genre       []string        `json:"genre"`
	Description string          `json:"description"`
	PosterURL   string          `json:"posterUrl"`
	BackdropURL string          `json:"backdropUrl,omitempty"`
	Director    string          `json:"director"`
	Cast        []string        `json:"cast"`
	Links       []LanguageGroup `json:"links" validate:"dive"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`
}

// ViewingProgress tracks how far the viewer got in a movie.
// Title and poster are copied from the movie so "continue watching" can be
// rendered without a catalog lookup.
type ViewingProgress struct {
	MovieID            string `json:"movieId" validate:"required"`
	MovieTitle         string `json:"movieTitle"`
	PosterURL          string `json:"posterUrl"`
	LastPlayed         int64  `json:"lastPlayed"` // unix milliseconds
	ProgressPercentage int    `json:"progressPercentage" validate:"gte=0,lte=100"`
}
