package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"cineai/importer"
	"cineai/metrics"
	"cineai/models"

	"github.com/spf13/afero"
)

// Messages shown to the admin when a run ends badly
const (
	MsgNothingFound    = "nothing found"
	MsgSyncError       = "synchronization error"
	MsgImportCancelled = "import cancelled"
)

// countRefreshInterval is how many entries are processed between two catalog
// count refreshes while a run is in progress
const countRefreshInterval = 50

var (
	// ErrImportRunning is returned when an import is started while another runs
	ErrImportRunning = errors.New("an import is already running")
	// ErrNothingFound is returned when the input holds no importable entries
	ErrNothingFound = errors.New(MsgNothingFound)
	// ErrUnreadableInput is returned when the import source cannot be read
	ErrUnreadableInput = errors.New("failed to read import input")
	// ErrSessionClosed is returned after Close
	ErrSessionClosed = errors.New("import session closed")
	// ErrCatalogBusy is returned while an Exclusive operation holds the catalog
	ErrCatalogBusy = errors.New("catalog maintenance in progress")
)

// CatalogCounter reports how many movies the catalog holds
type CatalogCounter interface {
	Count(ctx context.Context) (int, error)
}

// ImportSession owns the admin import state. It runs at most one ingestion at
// a time in the background and lets callers observe its progress.
type ImportSession struct {
	engine  *IngestionEngine
	counter CatalogCounter
	fs      afero.Fs
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	status      models.ImportStatus
	outcomes    []models.EntryOutcome
	runCancel   context.CancelFunc
	exclusive   bool
	subscribers map[int]chan models.ImportStatus
	nextSubID   int
	closed      bool
}

// NewImportSession creates an idle import session. File imports are read
// from fs.
func NewImportSession(engine *IngestionEngine, counter CatalogCounter, fs afero.Fs) *ImportSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &ImportSession{
		engine:      engine,
		counter:     counter,
		fs:          fs,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		status:      models.ImportStatus{State: models.ImportIdle},
		subscribers: make(map[int]chan models.ImportStatus),
	}
}

// ProcessContent starts importing pasted text
func (s *ImportSession) ProcessContent(text string) error {
	return s.process(models.ImportModeText, "", text)
}

// ProcessFile starts importing the file at path
func (s *ImportSession) ProcessFile(path string) error {
	if err := s.checkIdle(); err != nil {
		return err
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return s.fail(models.ImportModeFile, path, fmt.Errorf("%w: %v", ErrUnreadableInput, err))
	}
	return s.process(models.ImportModeFile, path, string(data))
}

// ProcessReader starts importing an uploaded file
func (s *ImportSession) ProcessReader(name string, r io.Reader) error {
	if err := s.checkIdle(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return s.fail(models.ImportModeFile, name, fmt.Errorf("%w: %v", ErrUnreadableInput, err))
	}
	return s.process(models.ImportModeFile, name, string(data))
}

// Cancel stops the running import before its next batch. It reports whether
// a run was cancelled.
func (s *ImportSession) Cancel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status.State != models.ImportRunning || s.runCancel == nil {
		return false
	}
	log.Println("Cancelling import run...")
	s.runCancel()
	return true
}

// Wait blocks until no import is running
func (s *ImportSession) Wait() {
	s.wg.Wait()
}

// Close cancels any running import, waits for it and ends all subscriptions
func (s *ImportSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	log.Println("Import session closed")
}

// Status returns a snapshot of the session
func (s *ImportSession) Status() models.ImportStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Outcomes returns the per-entry outcomes of the last run
func (s *ImportSession) Outcomes() []models.EntryOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EntryOutcome(nil), s.outcomes...)
}

// Subscribe returns a channel receiving a status snapshot on every change,
// starting with the current one. Slow subscribers only miss intermediate
// snapshots. The returned func ends the subscription.
func (s *ImportSession) Subscribe() (<-chan models.ImportStatus, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.ImportStatus, 16)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.status

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				close(sub)
				delete(s.subscribers, id)
			}
		})
	}
}

// Exclusive runs fn while no import can start, for catalog writes that must
// not overlap a run. It fails without calling fn when a run is in progress.
func (s *ImportSession) Exclusive(fn func() error) error {
	s.mu.Lock()
	if err := s.idleLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.exclusive = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.exclusive = false
		s.mu.Unlock()
	}()
	return fn()
}

// RefreshCount reloads the catalog count into the session status
func (s *ImportSession) RefreshCount(ctx context.Context) (int, error) {
	count, err := s.counter.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count catalog: %w", err)
	}

	metrics.CatalogMovies.Set(float64(count))
	s.mu.Lock()
	s.status.CatalogCount = count
	s.broadcastLocked()
	s.mu.Unlock()
	return count, nil
}

func (s *ImportSession) checkIdle() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idleLocked()
}

// idleLocked reports why a run cannot start now. Callers hold s.mu.
func (s *ImportSession) idleLocked() error {
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.status.State == models.ImportRunning:
		return ErrImportRunning
	case s.exclusive:
		return ErrCatalogBusy
	}
	return nil
}

// fail records an error that ended an import before it started
func (s *ImportSession) fail(mode models.ImportMode, source string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.idleLocked(); err != nil {
		return err
	}

	label := "unreadable"
	if errors.Is(err, ErrNothingFound) {
		label = "empty"
	}
	metrics.ImportRunsTotal.WithLabelValues(label).Inc()
	log.Printf("Import from %s not started: %v", describeSource(mode, source), err)

	now := s.now()
	s.status = models.ImportStatus{
		State:        models.ImportIdle,
		Mode:         mode,
		Source:       source,
		Error:        err.Error(),
		CatalogCount: s.status.CatalogCount,
		FinishedAt:   &now,
	}
	s.outcomes = nil
	s.broadcastLocked()
	return err
}

func (s *ImportSession) process(mode models.ImportMode, source, text string) error {
	if err := s.checkIdle(); err != nil {
		return err
	}

	entries := importer.Parse(text)
	if len(entries) == 0 {
		return s.fail(mode, source, ErrNothingFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.idleLocked(); err != nil {
		return err
	}

	runCtx, runCancel := context.WithCancel(s.ctx)
	now := s.now()
	s.runCancel = runCancel
	s.outcomes = nil
	s.status = models.ImportStatus{
		State:        models.ImportRunning,
		Mode:         mode,
		Source:       source,
		Progress:     models.ImportProgress{Total: len(entries)},
		CatalogCount: s.status.CatalogCount,
		StartedAt:    &now,
	}
	s.broadcastLocked()

	log.Printf("Starting import of %d entries from %s", len(entries), describeSource(mode, source))
	metrics.ImportRunning.Set(1)

	s.wg.Add(1)
	go s.run(runCtx, runCancel, entries)
	return nil
}

func (s *ImportSession) run(ctx context.Context, cancel context.CancelFunc, entries []models.ImportEntry) {
	defer s.wg.Done()
	defer cancel()

	refreshedAt := 0
	result, err := s.engine.Run(ctx, entries, func(p models.ImportProgress) {
		s.mu.Lock()
		s.status.Progress = p
		s.status.Percent = p.Percent()
		s.broadcastLocked()
		s.mu.Unlock()

		if p.Seen-refreshedAt >= countRefreshInterval {
			refreshedAt = p.Seen
			if _, err := s.RefreshCount(ctx); err != nil {
				log.Printf("Failed to refresh catalog count: %v", err)
			}
		}
	})

	// The count reflects whatever was persisted, even after a failed run
	if _, err := s.RefreshCount(context.WithoutCancel(ctx)); err != nil {
		log.Printf("Failed to refresh catalog count: %v", err)
	}

	s.finish(result, err)
}

func (s *ImportSession) finish(result *RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := "completed"
	switch {
	case err == nil:
		s.status.Error = ""
	case errors.Is(err, context.Canceled):
		label = "cancelled"
		s.status.Error = MsgImportCancelled
	default:
		label = "failed"
		s.status.Error = MsgSyncError
		log.Printf("Import run failed: %v", err)
	}
	metrics.ImportRunsTotal.WithLabelValues(label).Inc()
	metrics.ImportRunning.Set(0)

	now := s.now()
	s.status.State = models.ImportIdle
	s.status.FinishedAt = &now
	if result != nil {
		s.status.Progress = result.Progress
		s.status.Percent = result.Progress.Percent()
		s.status.NotFound = result.Count(models.EntryNotFound)
		s.status.Failed = result.Count(models.EntryFailed)
		s.outcomes = result.Outcomes
	}
	s.runCancel = nil
	s.broadcastLocked()

	log.Printf("Import %s: %d seen, %d added, %d not found, %d failed",
		label, s.status.Progress.Seen, s.status.Progress.Added, s.status.NotFound, s.status.Failed)
}

// broadcastLocked sends the current status to every subscriber. A full
// channel drops its oldest snapshot. Callers hold s.mu.
func (s *ImportSession) broadcastLocked() {
	for _, ch := range s.subscribers {
		select {
		case ch <- s.status:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.status:
		default:
		}
	}
}

func describeSource(mode models.ImportMode, source string) string {
	if source == "" {
		return string(mode)
	}
	return fmt.Sprintf("%s %q", mode, source)
}
