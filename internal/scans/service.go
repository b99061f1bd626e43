// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scans owns the scan lifecycle: admission, queueing, execution
// through the engine, progress fan-out, and persistence.
package scans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sweepd/sweepd/internal/engine"
	"github.com/sweepd/sweepd/internal/models"
)

var (
	// ErrQueueFull is returned when the admission queue cannot accept
	// another scan.
	ErrQueueFull = errors.New("scan queue is full")
	// ErrNotCancellable is returned when cancelling a scan that already
	// reached a terminal state.
	ErrNotCancellable = errors.New("scan is not pending or running")
)

const queueCapacity = 64

// progressPersistRate caps how often progress snapshots hit the database.
// Every snapshot is still broadcast; only persistence is throttled.
var progressPersistRate = rate.Every(500 * time.Millisecond)

// EngineRunner runs the detection engine for one scan. Satisfied by
// *engine.Runner; tests substitute fakes.
type EngineRunner interface {
	Run(ctx context.Context, scan *models.Scan, onProgress func(engine.ProgressLine)) (*models.Findings, error)
}

// ExclusionSource supplies the default exclusion patterns merged into
// every scan. Satisfied by *config.AppConfig; nil disables merging.
type ExclusionSource interface {
	MergedExclusions(extra []string) []string
}

// Store is the persistence surface the service needs.
type Store interface {
	Save(ctx context.Context, scan *models.Scan) error
	Get(ctx context.Context, id string) (*models.Scan, error)
	List(ctx context.Context) ([]*models.Scan, error)
	ListActive(ctx context.Context) ([]*models.Scan, error)
	UpdateProgress(ctx context.Context, id string, p models.Progress) error
	Delete(ctx context.Context, id string) error
}

// Service coordinates scan execution. One background goroutine drains the
// FIFO queue, so at most one engine process runs at a time. The runner
// goroutine is the only writer of a running scan's progress; everything
// else reads clones taken under the mutex.
type Service struct {
	store       Store
	runner      EngineRunner
	broadcaster *Broadcaster
	exclusions  ExclusionSource

	mu      sync.Mutex
	live    map[string]*models.Scan
	cancels map[string]context.CancelFunc

	queue chan string

	workerCtx    context.Context
	workerCancel context.CancelFunc
	wg           sync.WaitGroup
}

func NewService(store Store, runner EngineRunner, broadcaster *Broadcaster, exclusions ExclusionSource) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:        store,
		runner:       runner,
		broadcaster:  broadcaster,
		exclusions:   exclusions,
		live:         make(map[string]*models.Scan),
		cancels:      make(map[string]context.CancelFunc),
		queue:        make(chan string, queueCapacity),
		workerCtx:    ctx,
		workerCancel: cancel,
	}
}

// Start recovers scans interrupted by a previous shutdown and launches the
// queue runner.
func (s *Service) Start(ctx context.Context) error {
	interrupted, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted scans: %w", err)
	}
	for _, scan := range interrupted {
		now := time.Now().UTC()
		scan.Status = models.ScanStatusFailed
		scan.ErrorMessage = "interrupted by shutdown"
		scan.CompletedAt = &now
		if err := s.store.Save(ctx, scan); err != nil {
			return fmt.Errorf("mark scan %s interrupted: %w", scan.ID, err)
		}
		log.Warn().Str("scanID", scan.ID).Msg("Marked interrupted scan as failed")
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop terminates any running engine process and waits for the runner
// goroutine to exit. In-flight scans are left in the store as running and
// are failed by the next Start's recovery pass.
func (s *Service) Stop() {
	s.workerCancel()
	s.wg.Wait()
	log.Debug().Msg("Scan service stopped")
}

// Submit validates the request, persists a pending record, and enqueues it.
func (s *Service) Submit(ctx context.Context, req *models.ScanRequest) (*models.Scan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exclusions := req.Exclusions
	if s.exclusions != nil {
		exclusions = s.exclusions.MergedExclusions(req.Exclusions)
	}

	scan := &models.Scan{
		ID:          uuid.NewString(),
		Category:    req.Category,
		Status:      models.ScanStatusPending,
		Directories: req.Directories,
		Exclusions:  exclusions,
		Options:     req.Options,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.Save(ctx, scan); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[scan.ID] = scan
	s.mu.Unlock()

	select {
	case s.queue <- scan.ID:
	default:
		// A rejected submission must not leave a record behind; the
		// client is told the scan was never accepted.
		s.mu.Lock()
		delete(s.live, scan.ID)
		s.mu.Unlock()
		if err := s.store.Delete(ctx, scan.ID); err != nil {
			log.Error().Err(err).Str("scanID", scan.ID).Msg("Failed to remove rejected scan record")
		}
		return nil, ErrQueueFull
	}

	log.Info().
		Str("scanID", scan.ID).
		Str("category", string(scan.Category)).
		Strs("directories", scan.Directories).
		Msg("Scan queued")

	return scan.Clone(), nil
}

// Get returns the current state of a scan, preferring the live copy over
// the persisted one.
func (s *Service) Get(ctx context.Context, id string) (*models.Scan, error) {
	s.mu.Lock()
	if scan, ok := s.live[id]; ok {
		clone := scan.Clone()
		s.mu.Unlock()
		return clone, nil
	}
	s.mu.Unlock()
	return s.store.Get(ctx, id)
}

// List returns all scans newest-first, with live state overlaid on the
// persisted records.
func (s *Service) List(ctx context.Context) ([]*models.Scan, error) {
	scans, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, scan := range scans {
		if liveCopy, ok := s.live[scan.ID]; ok {
			scans[i] = liveCopy.Clone()
		}
	}
	return scans, nil
}

// Cancel stops a pending or running scan. A pending scan goes straight to
// cancelled; a running one gets its engine process terminated and reaches
// cancelled once the runner observes the exit. Terminal scans return
// ErrNotCancellable.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Scan, error) {
	s.mu.Lock()
	scan, ok := s.live[id]
	if !ok {
		s.mu.Unlock()
		persisted, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return persisted, ErrNotCancellable
	}

	switch scan.Status {
	case models.ScanStatusPending:
		now := time.Now().UTC()
		scan.Status = models.ScanStatusCancelled
		scan.CompletedAt = &now
		delete(s.live, id)
		clone := scan.Clone()
		s.mu.Unlock()

		if err := s.store.Save(ctx, clone); err != nil {
			return nil, err
		}
		s.broadcaster.Done(clone)
		log.Info().Str("scanID", id).Msg("Cancelled queued scan")
		return clone, nil

	case models.ScanStatusRunning:
		cancel := s.cancels[id]
		clone := scan.Clone()
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		log.Info().Str("scanID", id).Msg("Cancelling running scan")
		return clone, nil

	default:
		clone := scan.Clone()
		s.mu.Unlock()
		return clone, ErrNotCancellable
	}
}

func (s *Service) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.workerCtx.Done():
			return
		case id := <-s.queue:
			s.runScan(id)
		}
	}
}

func (s *Service) runScan(id string) {
	s.mu.Lock()
	scan, ok := s.live[id]
	if !ok || scan.Status != models.ScanStatusPending {
		// Cancelled while queued.
		s.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	scan.Status = models.ScanStatusRunning
	scan.StartedAt = &now

	runCtx, cancel := context.WithCancel(s.workerCtx)
	s.cancels[id] = cancel
	snapshot := scan.Clone()
	s.mu.Unlock()

	defer cancel()

	if err := s.store.Save(context.Background(), snapshot); err != nil {
		log.Error().Err(err).Str("scanID", id).Msg("Failed to persist running scan")
	}

	log.Info().Str("scanID", id).Str("category", string(scan.Category)).Msg("Scan started")

	start := time.Now()
	limiter := rate.NewLimiter(progressPersistRate, 1)

	onProgress := func(u engine.ProgressLine) {
		s.mu.Lock()
		scan.Progress.Stage = u.Stage
		scan.Progress.CurrentItem = u.Stage
		if u.HasFiles {
			scan.Progress.ItemsProcessed = u.Files
		}
		scan.Progress.Elapsed = time.Since(start)
		scan.Progress.ElapsedMS = scan.Progress.Elapsed.Milliseconds()
		progress := scan.Progress
		s.mu.Unlock()

		s.broadcaster.Progress(id, progress)

		if limiter.Allow() {
			if err := s.store.UpdateProgress(context.Background(), id, progress); err != nil {
				log.Error().Err(err).Str("scanID", id).Msg("Failed to persist scan progress")
			}
		}
	}

	findings, runErr := s.runner.Run(runCtx, snapshot, onProgress)

	s.mu.Lock()
	delete(s.cancels, id)
	done := time.Now().UTC()
	scan.CompletedAt = &done
	scan.Progress.Elapsed = time.Since(start)
	scan.Progress.ElapsedMS = scan.Progress.Elapsed.Milliseconds()

	switch {
	case runErr == nil:
		scan.Status = models.ScanStatusCompleted
		scan.Findings = findings
		scan.FindingsCount = findings.Count()
		scan.TotalSize = findings.TotalSize()

	case errors.Is(runErr, context.Canceled) && s.workerCtx.Err() != nil:
		// Shutdown, not a user cancel. Leave the record running so the
		// next startup's recovery pass fails it with a clear message.
		delete(s.live, id)
		s.mu.Unlock()
		return

	case errors.Is(runErr, context.Canceled):
		scan.Status = models.ScanStatusCancelled

	default:
		scan.Status = models.ScanStatusFailed
		scan.ErrorMessage = runErr.Error()
	}

	delete(s.live, id)
	final := scan.Clone()
	s.mu.Unlock()

	if err := s.store.Save(context.Background(), final); err != nil {
		log.Error().Err(err).Str("scanID", id).Msg("Failed to persist finished scan")
	}

	s.broadcaster.Done(final)

	log.Info().
		Str("scanID", id).
		Str("status", string(final.Status)).
		Int("findings", final.FindingsCount).
		Dur("elapsed", final.Progress.Elapsed).
		Msg("Scan finished")
}
