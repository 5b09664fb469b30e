// Package jobs provides background job processing functionality.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cineai/metrics"
	"cineai/models"

	"github.com/sourcegraph/conc"
)

const (
	// DefaultBatchSize is how many entries are resolved concurrently
	DefaultBatchSize = 15
	// DefaultBatchPause is the pause between two batches
	DefaultBatchPause = 50 * time.Millisecond
)

// ErrMetadataNotFound is what a resolver returns when it has no movie for an id
var ErrMetadataNotFound = models.ErrMetadataNotFound

// MetadataResolver turns an external id into movie metadata without links
type MetadataResolver interface {
	Resolve(ctx context.Context, externalID string) (*models.Movie, error)
}

// CatalogWriter persists resolved movies
type CatalogWriter interface {
	UpsertMany(ctx context.Context, movies []models.Movie) error
}

// ProgressFunc receives cumulative progress after every batch
type ProgressFunc func(models.ImportProgress)

// RunResult is what an ingestion run produced
type RunResult struct {
	Progress models.ImportProgress
	Outcomes []models.EntryOutcome
}

// Count returns the number of outcomes with the given status
func (r *RunResult) Count(status models.EntryStatus) int {
	n := 0
	for _, outcome := range r.Outcomes {
		if outcome.Status == status {
			n++
		}
	}
	return n
}

// IngestionEngine resolves import entries in sequential batches and persists
// each batch before starting the next one
type IngestionEngine struct {
	resolver   MetadataResolver
	store      CatalogWriter
	notFound   func(error) bool
	batchSize  int
	batchPause time.Duration
}

// EngineOption customizes an IngestionEngine
type EngineOption func(*IngestionEngine)

// WithBatchSize sets how many entries run concurrently in one batch
func WithBatchSize(size int) EngineOption {
	return func(e *IngestionEngine) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithBatchPause sets the pause between batches. Zero disables it.
func WithBatchPause(pause time.Duration) EngineOption {
	return func(e *IngestionEngine) {
		if pause >= 0 {
			e.batchPause = pause
		}
	}
}

// WithNotFound sets how resolver errors meaning "no match" are recognized
func WithNotFound(match func(error) bool) EngineOption {
	return func(e *IngestionEngine) {
		if match != nil {
			e.notFound = match
		}
	}
}

// NewIngestionEngine creates an ingestion engine
func NewIngestionEngine(resolver MetadataResolver, store CatalogWriter, opts ...EngineOption) *IngestionEngine {
	e := &IngestionEngine{
		resolver:   resolver,
		store:      store,
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
		notFound: func(err error) bool {
			return errors.Is(err, ErrMetadataNotFound)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run resolves entries batch by batch, upserts the successes of every batch
// in one call and reports cumulative progress after each batch. Resolution
// failures only skip their entry. A store failure aborts the run. Cancelling
// ctx stops the run before the next batch and returns ctx.Err() together with
// what was done so far.
func (e *IngestionEngine) Run(ctx context.Context, entries []models.ImportEntry, onProgress ProgressFunc) (*RunResult, error) {
	result := &RunResult{
		Progress: models.ImportProgress{Total: len(entries)},
		Outcomes: make([]models.EntryOutcome, 0, len(entries)),
	}
	if len(entries) == 0 {
		return result, nil
	}

	for start := 0; start < len(entries); start += e.batchSize {
		if start > 0 {
			if err := e.pause(ctx); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+e.batchSize, len(entries))
		if err := e.runBatch(ctx, entries[start:end], result); err != nil {
			return result, err
		}

		if onProgress != nil {
			onProgress(result.Progress)
		}
	}

	// A cancel during the last batch leaves no next batch to notice it
	if err := ctx.Err(); err != nil {
		return result, err
	}

	log.Printf("Import run finished: %d/%d entries added", result.Progress.Added, result.Progress.Total)
	return result, nil
}

func (e *IngestionEngine) runBatch(ctx context.Context, batch []models.ImportEntry, result *RunResult) error {
	started := time.Now()
	defer func() {
		metrics.ImportBatchDuration.Observe(time.Since(started).Seconds())
	}()

	resolved := make([]*models.Movie, len(batch))
	outcomes := make([]models.EntryOutcome, len(batch))

	var wg conc.WaitGroup
	for i := range batch {
		wg.Go(func() {
			resolved[i], outcomes[i] = e.resolve(ctx, batch[i])
		})
	}
	wg.Wait()

	movies := make([]models.Movie, 0, len(batch))
	for _, movie := range resolved {
		if movie != nil {
			movies = append(movies, *movie)
		}
	}

	if len(movies) > 0 {
		if err := e.store.UpsertMany(ctx, movies); err != nil {
			for i := range outcomes {
				if outcomes[i].Status == models.EntryAdded {
					outcomes[i].Status = models.EntryFailed
					outcomes[i].Error = err.Error()
				}
			}
			e.record(result, batch, outcomes, 0)
			return fmt.Errorf("failed to save batch: %w", err)
		}
	}

	e.record(result, batch, outcomes, len(movies))
	return nil
}

func (e *IngestionEngine) record(result *RunResult, batch []models.ImportEntry, outcomes []models.EntryOutcome, added int) {
	for _, outcome := range outcomes {
		metrics.ImportEntriesTotal.WithLabelValues(string(outcome.Status)).Inc()
	}
	result.Outcomes = append(result.Outcomes, outcomes...)
	result.Progress.Seen = min(result.Progress.Seen+len(batch), result.Progress.Total)
	result.Progress.Added += added
}

func (e *IngestionEngine) resolve(ctx context.Context, entry models.ImportEntry) (*models.Movie, models.EntryOutcome) {
	outcome := models.EntryOutcome{ExternalID: entry.ExternalID}

	movie, err := e.resolver.Resolve(ctx, entry.ExternalID)
	switch {
	case err != nil && e.notFound(err):
		outcome.Status = models.EntryNotFound
		return nil, outcome
	case err != nil:
		log.Printf("Failed to resolve %s: %v", entry.ExternalID, err)
		outcome.Status = models.EntryFailed
		outcome.Error = err.Error()
		return nil, outcome
	case movie == nil:
		outcome.Status = models.EntryNotFound
		return nil, outcome
	}

	merged := *movie
	merged.Links = entry.Links
	if merged.Links == nil {
		merged.Links = []models.LanguageGroup{}
	}

	outcome.Status = models.EntryAdded
	outcome.MovieID = merged.ID
	return &merged, outcome
}

func (e *IngestionEngine) pause(ctx context.Context) error {
	if e.batchPause <= 0 {
		return nil
	}
	timer := time.NewTimer(e.batchPause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
