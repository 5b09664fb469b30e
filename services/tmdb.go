// Package services provides external service integrations.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cineai/metrics"
	"cineai/models"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultTMDBBaseURL  = "https://api.themoviedb.org/3"
	defaultTMDBImageURL = "https://image.tmdb.org/t/p"
	unknownDirector     = "Desconocido"
	maxCastNames        = 5
)

// ErrMetadataNotFound is returned when the provider has no movie for an id
var ErrMetadataNotFound = models.ErrMetadataNotFound

// statusError is a non-2xx answer from TMDB
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("TMDB API returned status %d", e.Code)
}

// retryable reports whether the request may succeed if sent again
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, ErrMetadataNotFound) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// TMDBService handles interactions with The Movie Database API
type TMDBService struct {
	apiKey   string
	language string
	baseURL  string
	imageURL string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	attempts uint
	delay    time.Duration
}

// TMDBOption customizes a TMDBService
type TMDBOption func(*TMDBService)

// WithTMDBBaseURL points the service at another API root (used by tests)
func WithTMDBBaseURL(baseURL string) TMDBOption {
	return func(t *TMDBService) { t.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTMDBLanguage sets the language metadata is requested in
func WithTMDBLanguage(language string) TMDBOption {
	return func(t *TMDBService) { t.language = language }
}

// WithTMDBRateLimit caps outgoing requests per second
func WithTMDBRateLimit(perSecond float64) TMDBOption {
	return func(t *TMDBService) {
		if perSecond > 0 {
			t.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
		}
	}
}

// WithTMDBRetry sets how many times a throttled or failed request is sent
func WithTMDBRetry(attempts uint, delay time.Duration) TMDBOption {
	return func(t *TMDBService) {
		if attempts > 0 {
			t.attempts = attempts
		}
		t.delay = delay
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) TMDBOption {
	return func(t *TMDBService) { t.client = client }
}

// NewTMDBService creates a new TMDB service instance
func NewTMDBService(apiKey string, opts ...TMDBOption) *TMDBService {
	t := &TMDBService{
		apiKey:   strings.TrimSpace(apiKey),
		language: "es-ES",
		baseURL:  defaultTMDBBaseURL,
		imageURL: defaultTMDBImageURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:  rate.NewLimiter(rate.Limit(35), 36),
		attempts: 3,
		delay:    300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}

	const cbName = "tmdb-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)
	t.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Missing titles and client errors say nothing about TMDB health
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[tmdb] circuit breaker %s: %s -> %s", name, from, to)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return t
}

// TMDBFindResponse is the answer of the /find endpoint
type TMDBFindResponse struct {
	MovieResults []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	} `json:"movie_results"`
}

// TMDBMovie represents a movie response from TMDB API
type TMDBMovie struct {
	ID           int     `json:"id"`
	IMDBID       string  `json:"imdb_id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	Runtime      int     `json:"runtime"`
	Genres       []Genre `json:"genres"`
	Credits      Credits `json:"credits"`
}

// Genre represents a movie genre from TMDB
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Credits contains cast and crew information
type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// CastMember represents an actor in a movie
type CastMember struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// CrewMember represents a crew member in a movie
type CrewMember struct {
	Job  string `json:"job"`
	Name string `json:"name"`
}

// Resolve looks up an IMDb id and returns the movie metadata without links.
// It returns ErrMetadataNotFound when TMDB has no movie for the id.
func (t *TMDBService) Resolve(ctx context.Context, imdbID string) (*models.Movie, error) {
	tmdbID, err := t.FindByIMDBID(ctx, imdbID)
	if err != nil {
		return nil, err
	}

	movie, err := t.GetMovie(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	movie.IMDBID = imdbID
	return movie, nil
}

// FindByIMDBID returns the TMDB id of the movie with the given IMDb id
func (t *TMDBService) FindByIMDBID(ctx context.Context, imdbID string) (int, error) {
	params := url.Values{}
	params.Set("external_source", "imdb_id")

	var found TMDBFindResponse
	if err := t.get(ctx, "find", "/find/"+url.PathEscape(imdbID), params, &found); err != nil {
		return 0, fmt.Errorf("failed to find %s on TMDB: %w", imdbID, err)
	}

	if len(found.MovieResults) == 0 {
		return 0, fmt.Errorf("imdb id %s: %w", imdbID, ErrMetadataNotFound)
	}
	return found.MovieResults[0].ID, nil
}

// GetMovie fetches movie details from TMDB by ID
func (t *TMDBService) GetMovie(ctx context.Context, tmdbID int) (*models.Movie, error) {
	params := url.Values{}
	params.Set("append_to_response", "credits")

	var tmdbMovie TMDBMovie
	if err := t.get(ctx, "movie", "/movie/"+strconv.Itoa(tmdbID), params, &tmdbMovie); err != nil {
		return nil, fmt.Errorf("failed to fetch movie %d from TMDB: %w", tmdbID, err)
	}

	return t.convertToMovie(tmdbMovie), nil
}

// get performs a rate limited, retried and circuit-broken GET and decodes
// the JSON body into v
func (t *TMDBService) get(ctx context.Context, endpoint, path string, params url.Values, v any) error {
	params.Set("api_key", t.apiKey)
	if t.language != "" {
		params.Set("language", t.language)
	}
	reqURL := t.baseURL + path + "?" + params.Encode()

	var body []byte
	err := retry.Do(
		func() error {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
			var err error
			body, err = t.breaker.Execute(func() ([]byte, error) {
				return t.fetch(ctx, reqURL)
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.Delay(t.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[tmdb] %s request failed (attempt %d/%d): %v", endpoint, n+1, t.attempts, err)
		}),
	)
	if err != nil {
		metrics.MetadataRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return err
	}
	metrics.MetadataRequestsTotal.WithLabelValues(endpoint, "ok").Inc()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode TMDB response: %w", err)
	}
	return nil
}

func (t *TMDBService) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrMetadataNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

func (t *TMDBService) convertToMovie(tmdbMovie TMDBMovie) *models.Movie {
	movie := &models.Movie{
		ID:          strconv.Itoa(tmdbMovie.ID),
		IMDBID:      tmdbMovie.IMDBID,
		Title:       tmdbMovie.Title,
		Description: tmdbMovie.Overview,
		Rating:      tmdbMovie.VoteAverage,
		Director:    unknownDirector,
		Genre:       []string{},
		Cast:        []string{},
		Links:       []models.LanguageGroup{},
	}

	// Parse release year
	if len(tmdbMovie.ReleaseDate) >= 4 {
		if year, err := strconv.Atoi(tmdbMovie.ReleaseDate[:4]); err == nil {
			movie.Year = year
		} else {
			log.Printf("Failed to parse year from release date %q: %v", tmdbMovie.ReleaseDate, err)
		}
	}

	if tmdbMovie.Runtime > 0 {
		movie.Duration = fmt.Sprintf("%d min", tmdbMovie.Runtime)
	}

	if tmdbMovie.PosterPath != "" {
		movie.PosterURL = t.imageURL + "/w500" + tmdbMovie.PosterPath
	}
	if tmdbMovie.BackdropPath != "" {
		movie.BackdropURL = t.imageURL + "/original" + tmdbMovie.BackdropPath
	}

	for _, genre := range tmdbMovie.Genres {
		movie.Genre = append(movie.Genre, genre.Name)
	}

	// Extract director
	for _, crew := range tmdbMovie.Credits.Crew {
		if crew.Job == "Director" {
			movie.Director = crew.Name
			break
		}
	}

	for _, member := range tmdbMovie.Credits.Cast {
		if len(movie.Cast) == maxCastNames {
			break
		}
		movie.Cast = append(movie.Cast, member.Name)
	}

	return movie
}
