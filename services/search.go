package services

import (
	"context"
	"sort"
	"strings"

	"cineai/models"
	"cineai/repository"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// CatalogSearch finds movies in the local catalog
type CatalogSearch struct {
	movies *repository.MovieRepository
}

// NewCatalogSearch creates a catalog search
func NewCatalogSearch(movies *repository.MovieRepository) *CatalogSearch {
	return &CatalogSearch{movies: movies}
}

// Search returns up to limit movies matching query. Fuzzy title matches come
// first, best match first, followed by movies whose director or cast contain
// the query.
func (s *CatalogSearch) Search(ctx context.Context, query string, limit int) ([]models.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []models.Movie{}, nil
	}

	all, err := s.movies.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(all))
	for i, movie := range all {
		titles[i] = movie.Title
	}

	ranks := fuzzy.RankFindNormalizedFold(query, titles)
	sort.Stable(ranks)

	results := make([]models.Movie, 0, limit)
	picked := make(map[int]bool)
	for _, rank := range ranks {
		if len(results) == limit {
			return results, nil
		}
		results = append(results, all[rank.OriginalIndex])
		picked[rank.OriginalIndex] = true
	}

	lower := strings.ToLower(query)
	for i, movie := range all {
		if len(results) == limit {
			break
		}
		if picked[i] {
			continue
		}
		if matchesPeople(movie, lower) {
			results = append(results, movie)
		}
	}

	return results, nil
}

func matchesPeople(movie models.Movie, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(movie.Director), lowerQuery) {
		return true
	}
	for _, name := range movie.Cast {
		if strings.Contains(strings.ToLower(name), lowerQuery) {
			return true
		}
	}
	return false
}
