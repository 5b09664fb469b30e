package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"cineai/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockResolver is a testify mock of MetadataResolver
type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, externalID string) (*models.Movie, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(*models.Movie), args.Error(1)
}

// resolverFunc adapts a function to MetadataResolver
type resolverFunc func(ctx context.Context, externalID string) (*models.Movie, error)

func (f resolverFunc) Resolve(ctx context.Context, externalID string) (*models.Movie, error) {
	return f(ctx, externalID)
}

// movieFor resolves every id to a movie whose id is the external id
func movieFor(_ context.Context, externalID string) (*models.Movie, error) {
	return &models.Movie{ID: "m-" + externalID, Title: "Movie " + externalID}, nil
}

// fakeCatalog records upserts in memory
type fakeCatalog struct {
	mu        sync.Mutex
	movies    map[string]models.Movie
	calls     int
	upsertErr error
	countErr  error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{movies: make(map[string]models.Movie)}
}

func (c *fakeCatalog) UpsertMany(_ context.Context, movies []models.Movie) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.upsertErr != nil {
		return c.upsertErr
	}
	for _, movie := range movies {
		c.movies[movie.ID] = movie
	}
	return nil
}

func (c *fakeCatalog) Count(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countErr != nil {
		return 0, c.countErr
	}
	return len(c.movies), nil
}

func (c *fakeCatalog) upserts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func entries(ids ...string) []models.ImportEntry {
	out := make([]models.ImportEntry, len(ids))
	for i, id := range ids {
		out[i] = models.ImportEntry{
			ExternalID: id,
			Links: []models.LanguageGroup{
				{Language: "Latino", Servers: []models.ServerLink{{Name: "Voe", URL: "https://voe.sx/e/" + id}}},
			},
		}
	}
	return out
}

func numberedEntries(n int) []models.ImportEntry {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("tt%d", i+1)
	}
	return entries(ids...)
}

func TestIngestionEngine_PartialBatchFailure(t *testing.T) {
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, "tt1").Return(&models.Movie{ID: "1", Title: "One"}, nil)
	resolver.On("Resolve", mock.Anything, "tt2").Return((*models.Movie)(nil), errors.New("connection reset"))
	resolver.On("Resolve", mock.Anything, "tt3").Return(&models.Movie{ID: "3", Title: "Three"}, nil)

	catalog := newFakeCatalog()
	engine := NewIngestionEngine(resolver, catalog, WithBatchSize(3), WithBatchPause(0))

	var events []models.ImportProgress
	result, err := engine.Run(context.Background(), entries("tt1", "tt2", "tt3"), func(p models.ImportProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	assert.Equal(t, models.ImportProgress{Seen: 3, Total: 3, Added: 2}, result.Progress)
	assert.Equal(t, []models.ImportProgress{{Seen: 3, Total: 3, Added: 2}}, events)
	assert.Equal(t, 1, catalog.upserts())

	require.Len(t, catalog.movies, 2)
	assert.Equal(t, "https://voe.sx/e/tt1", catalog.movies["1"].Links[0].Servers[0].URL)
	assert.Equal(t, "https://voe.sx/e/tt3", catalog.movies["3"].Links[0].Servers[0].URL)

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, models.EntryAdded, result.Outcomes[0].Status)
	assert.Equal(t, "1", result.Outcomes[0].MovieID)
	assert.Equal(t, models.EntryFailed, result.Outcomes[1].Status)
	assert.Equal(t, "connection reset", result.Outcomes[1].Error)
	assert.Equal(t, models.EntryAdded, result.Outcomes[2].Status)
	resolver.AssertExpectations(t)
}

func TestIngestionEngine_NotFoundOutcome(t *testing.T) {
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, "tt1").Return((*models.Movie)(nil), fmt.Errorf("imdb id tt1: %w", models.ErrMetadataNotFound))
	resolver.On("Resolve", mock.Anything, "tt2").Return((*models.Movie)(nil), nil)

	catalog := newFakeCatalog()
	engine := NewIngestionEngine(resolver, catalog, WithBatchPause(0))

	result, err := engine.Run(context.Background(), entries("tt1", "tt2"), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count(models.EntryNotFound))
	assert.Zero(t, result.Progress.Added)
	// Nothing resolved, nothing written
	assert.Zero(t, catalog.upserts())
}

func TestIngestionEngine_CustomNotFoundMatcher(t *testing.T) {
	errNoMatch := errors.New("provider has no match")
	resolver := resolverFunc(func(context.Context, string) (*models.Movie, error) {
		return nil, errNoMatch
	})

	engine := NewIngestionEngine(resolver, newFakeCatalog(),
		WithBatchPause(0),
		WithNotFound(func(err error) bool { return errors.Is(err, errNoMatch) }),
	)

	result, err := engine.Run(context.Background(), entries("tt1"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(models.EntryNotFound))
	assert.Zero(t, result.Count(models.EntryFailed))
}

func TestIngestionEngine_ProgressIsMonotonic(t *testing.T) {
	resolver := resolverFunc(func(ctx context.Context, id string) (*models.Movie, error) {
		if id == "tt4" || id == "tt7" {
			return nil, ErrMetadataNotFound
		}
		return movieFor(ctx, id)
	})

	catalog := newFakeCatalog()
	engine := NewIngestionEngine(resolver, catalog, WithBatchSize(3), WithBatchPause(0))

	var events []models.ImportProgress
	result, err := engine.Run(context.Background(), numberedEntries(8), func(p models.ImportProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, []int{3, 6, 8}, []int{events[0].Seen, events[1].Seen, events[2].Seen})
	for i, p := range events {
		assert.Equal(t, 8, p.Total)
		assert.LessOrEqual(t, p.Added, p.Seen)
		if i > 0 {
			assert.GreaterOrEqual(t, p.Seen, events[i-1].Seen)
			assert.GreaterOrEqual(t, p.Added, events[i-1].Added)
		}
	}
	assert.Equal(t, models.ImportProgress{Seen: 8, Total: 8, Added: 6}, result.Progress)
	assert.Equal(t, 3, catalog.upserts())
}

func TestIngestionEngine_EmptyInput(t *testing.T) {
	resolver := new(mockResolver)
	catalog := newFakeCatalog()
	engine := NewIngestionEngine(resolver, catalog)

	called := false
	result, err := engine.Run(context.Background(), nil, func(models.ImportProgress) { called = true })
	require.NoError(t, err)

	assert.False(t, called)
	assert.Equal(t, models.ImportProgress{}, result.Progress)
	assert.Zero(t, catalog.upserts())
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestIngestionEngine_BoundsConcurrencyToBatch(t *testing.T) {
	var inFlight, peak atomic.Int32
	resolver := resolverFunc(func(ctx context.Context, id string) (*models.Movie, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		return movieFor(ctx, id)
	})

	engine := NewIngestionEngine(resolver, newFakeCatalog(), WithBatchSize(4), WithBatchPause(0))

	result, err := engine.Run(context.Background(), numberedEntries(20), nil)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Progress.Added)
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestIngestionEngine_StoreFailureAbortsRun(t *testing.T) {
	var resolved atomic.Int32
	resolver := resolverFunc(func(ctx context.Context, id string) (*models.Movie, error) {
		resolved.Add(1)
		return movieFor(ctx, id)
	})

	catalog := newFakeCatalog()
	catalog.upsertErr = errors.New("disk full")
	engine := NewIngestionEngine(resolver, catalog, WithBatchSize(2), WithBatchPause(0))

	called := false
	result, err := engine.Run(context.Background(), numberedEntries(5), func(models.ImportProgress) { called = true })
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.upsertErr)

	assert.False(t, called)
	assert.Equal(t, int32(2), resolved.Load())
	assert.Zero(t, result.Progress.Added)
	assert.Equal(t, 2, result.Count(models.EntryFailed))
}

func TestIngestionEngine_CancelBetweenBatches(t *testing.T) {
	var resolved atomic.Int32
	resolver := resolverFunc(func(ctx context.Context, id string) (*models.Movie, error) {
		resolved.Add(1)
		return movieFor(ctx, id)
	})

	engine := NewIngestionEngine(resolver, newFakeCatalog(), WithBatchSize(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := engine.Run(ctx, numberedEntries(6), func(models.ImportProgress) {
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), resolved.Load())
	assert.Equal(t, models.ImportProgress{Seen: 2, Total: 6, Added: 2}, result.Progress)
}

func TestIngestionEngine_CancelDuringLastBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := resolverFunc(func(ctx context.Context, _ string) (*models.Movie, error) {
		cancel()
		return nil, ctx.Err()
	})
	catalog := newFakeCatalog()
	engine := NewIngestionEngine(resolver, catalog, WithBatchSize(2))

	result, err := engine.Run(ctx, numberedEntries(2), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.ImportProgress{Seen: 2, Total: 2, Added: 0}, result.Progress)
	assert.Equal(t, 2, result.Count(models.EntryFailed))
	assert.Zero(t, catalog.upserts())
}
