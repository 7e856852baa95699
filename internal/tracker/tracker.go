// Package tracker follows extraction runs started for iModels and reports.
//
// A Tracker starts runs through an ExtractionAPI and answers state queries
// from its own maps. Queries refresh those maps by polling the API at most
// once per status check interval; nothing polls in the background.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/logger"
)

// DefaultStatusCheckInterval is the minimum time between two poll cycles.
const DefaultStatusCheckInterval = 5 * time.Second

// ExtractionAPI starts extraction runs and reports their state.
type ExtractionAPI interface {
	StartExtraction(ctx context.Context, iModelID string, mappingIDs []string) (runID string, err error)
	GetStatus(ctx context.Context, runID string) (domain.ExtractionState, error)
}

// ReportsAPI lists the (iModel, mapping) pairs of a report.
type ReportsAPI interface {
	GetMappings(ctx context.Context, reportID string) ([]domain.IModelMapping, error)
}

// Tracker is safe for concurrent use. It is meant to live as long as the
// view that owns it.
type Tracker struct {
	extraction ExtractionAPI
	reports    ReportsAPI
	notifier   Notifier
	errors     ErrorReporter
	logger     *logger.Logger
	interval   time.Duration
	now        func() time.Time

	mu        sync.Mutex
	jobs      map[string]string                 // iModelID -> runID, live runs only
	states    map[string]domain.ExtractionState // iModelID -> last known state
	members   map[string][]string               // reportID -> iModelIDs at start time
	notified  map[string]struct{}               // iModelIDs whose terminal state was announced
	lastFetch time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStatusCheckInterval sets the poll throttle.
func WithStatusCheckInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithNotifier sets the success/failure notifier.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithErrorReporter sets where API errors are surfaced.
func WithErrorReporter(r ErrorReporter) Option {
	return func(t *Tracker) { t.errors = r }
}

// WithLogger sets the logger used when a context carries none.
func WithLogger(l *logger.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock replaces time.Now for the poll throttle.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker over the given APIs.
func New(extraction ExtractionAPI, reports ReportsAPI, opts ...Option) *Tracker {
	t := &Tracker{
		extraction: extraction,
		reports:    reports,
		interval:   DefaultStatusCheckInterval,
		now:        time.Now,
		logger:     logger.GetDefault(),
		jobs:       make(map[string]string),
		states:     make(map[string]domain.ExtractionState),
		members:    make(map[string][]string),
		notified:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.notifier == nil {
		t.notifier = &LogNotifier{Logger: t.logger}
	}
	if t.errors == nil {
		t.errors = &LogErrorReporter{Logger: t.logger}
	}
	return t
}

// withLogger attaches the tracker's logger unless ctx already carries one,
// so reporters and notifiers log through the same logger.
func (t *Tracker) withLogger(ctx context.Context) context.Context {
	if logger.HasLogger(ctx) {
		return ctx
	}
	return t.logger.WithContext(ctx)
}

// StartIModelExtraction starts a run and marks the iModel Queued.
// Failures are reported, never returned; the previous state is kept.
func (t *Tracker) StartIModelExtraction(ctx context.Context, iModelID string, mappingIDs []string) {
	ctx = t.withLogger(ctx)
	runID, err := t.extraction.StartExtraction(ctx, iModelID, mappingIDs)
	if err != nil {
		t.errors.ReportError(logger.SetIModelID(ctx, iModelID), err)
		return
	}

	t.mu.Lock()
	t.states[iModelID] = domain.StateQueued
	t.jobs[iModelID] = runID
	delete(t.notified, iModelID)
	t.mu.Unlock()

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldIModelID: iModelID,
		logger.FieldRunID:    runID,
		logger.FieldCount:    len(mappingIDs),
	}).Info("Extraction started")
}

// StartIModelExtractions dispatches every request at once and waits for all
// of them. Completion order is unspecified.
func (t *Tracker) StartIModelExtractions(ctx context.Context, requests []domain.ExtractionRequest) {
	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go func(req domain.ExtractionRequest) {
			defer wg.Done()
			t.StartIModelExtraction(ctx, req.IModelID, req.MappingIDs)
		}(req)
	}
	wg.Wait()
}

// StartReportExtractions starts one run per iModel referenced by the reports.
// An iModel shared by several reports gets a single run over the union of
// its mappings. Each report's membership is recorded before the runs start.
func (t *Tracker) StartReportExtractions(ctx context.Context, reportIDs []string) {
	ctx = t.withLogger(ctx)
	results := make([][]domain.IModelMapping, len(reportIDs))
	ok := make([]bool, len(reportIDs))

	var wg sync.WaitGroup
	for i, reportID := range reportIDs {
		wg.Add(1)
		go func(i int, reportID string) {
			defer wg.Done()
			mappings, err := t.reports.GetMappings(ctx, reportID)
			if err != nil {
				t.errors.ReportError(logger.SetReportID(ctx, reportID), err)
				return
			}
			results[i] = mappings
			ok[i] = true
		}(i, reportID)
	}
	wg.Wait()

	var requests []domain.ExtractionRequest
	index := make(map[string]int)                // iModelID -> position in requests
	seen := make(map[string]map[string]struct{}) // iModelID -> mapping ids
	membership := make(map[string][]string)

	for i, reportID := range reportIDs {
		if !ok[i] {
			continue
		}

		var iModels []string
		inReport := make(map[string]struct{})
		for _, m := range results[i] {
			if _, dup := inReport[m.IModelID]; !dup {
				inReport[m.IModelID] = struct{}{}
				iModels = append(iModels, m.IModelID)
			}

			pos, exists := index[m.IModelID]
			if !exists {
				pos = len(requests)
				index[m.IModelID] = pos
				seen[m.IModelID] = make(map[string]struct{})
				requests = append(requests, domain.ExtractionRequest{IModelID: m.IModelID})
			}
			if _, dup := seen[m.IModelID][m.MappingID]; dup {
				continue
			}
			seen[m.IModelID][m.MappingID] = struct{}{}
			requests[pos].MappingIDs = append(requests[pos].MappingIDs, m.MappingID)
		}
		membership[reportID] = iModels
	}

	t.mu.Lock()
	for reportID, iModels := range membership {
		t.members[reportID] = iModels
	}
	t.mu.Unlock()

	logger.FromContext(ctx).WithFields(logger.Fields{
		"reports":         len(membership),
		logger.FieldCount: len(requests),
	}).Info("Starting report extractions")

	t.StartIModelExtractions(ctx, requests)
}

// GetIModelState returns the last known state of iModelID, or StateNone when
// no run was ever started for it. The first time a run is seen Succeeded or
// Failed, the notifier is called with iModelName (and feedURL on success).
func (t *Tracker) GetIModelState(ctx context.Context, iModelID, iModelName, feedURL string) domain.ExtractionState {
	ctx = t.withLogger(ctx)
	t.refreshIfDue(ctx)

	t.mu.Lock()
	state, ok := t.states[iModelID]
	if !ok {
		t.mu.Unlock()
		return domain.StateNone
	}
	announce := false
	if state.IsTerminal() {
		if _, done := t.notified[iModelID]; !done {
			t.notified[iModelID] = struct{}{}
			announce = true
		}
	}
	t.mu.Unlock()

	if announce {
		if state == domain.StateSucceeded {
			t.notifier.ExtractionSucceeded(ctx, iModelName, feedURL)
		} else {
			t.notifier.ExtractionFailed(ctx, iModelName)
		}
	}

	return state
}

// GetReportState aggregates the states of the report's iModels, worst first
// (Failed, Queued, Running, Succeeded). It returns StateNone when no
// extraction was started for the report, and StateFailed when none of its
// iModels has a recorded state.
func (t *Tracker) GetReportState(ctx context.Context, reportID string) domain.ExtractionState {
	ctx = t.withLogger(ctx)
	t.refreshIfDue(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	iModels, ok := t.members[reportID]
	if !ok {
		return domain.StateNone
	}

	states := make([]domain.ExtractionState, 0, len(iModels))
	for _, id := range iModels {
		if s, ok := t.states[id]; ok {
			states = append(states, s)
		}
	}
	return domain.AggregateStates(states)
}

// PendingRuns returns the number of runs still being polled.
func (t *Tracker) PendingRuns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// refreshIfDue runs a poll cycle when the interval has elapsed since the
// previous one. The timestamp is taken before polling so that concurrent
// queries within one interval share a single cycle.
func (t *Tracker) refreshIfDue(ctx context.Context) {
	t.mu.Lock()
	now := t.now()
	if !t.lastFetch.IsZero() && now.Sub(t.lastFetch) <= t.interval {
		t.mu.Unlock()
		return
	}
	t.lastFetch = now
	jobs := make(map[string]string, len(t.jobs))
	for iModelID, runID := range t.jobs {
		jobs[iModelID] = runID
	}
	t.mu.Unlock()

	t.fetchStates(ctx, jobs)
}

// fetchStates polls every live run. Terminal runs lose their job handle and
// keep their state. A failed status request counts as Failed.
func (t *Tracker) fetchStates(ctx context.Context, jobs map[string]string) {
	if len(jobs) == 0 {
		return
	}

	start := time.Now()
	var wg sync.WaitGroup
	for iModelID, runID := range jobs {
		wg.Add(1)
		go func(iModelID, runID string) {
			defer wg.Done()

			state, err := t.extraction.GetStatus(ctx, runID)
			if ctx.Err() != nil {
				// Owner went away; drop the result.
				return
			}
			if err != nil {
				t.errors.ReportError(logger.WithFields(ctx, logger.Fields{
					logger.FieldIModelID: iModelID,
					logger.FieldRunID:    runID,
				}), err)
				state = domain.StateFailed
			}
			t.applyState(iModelID, runID, state)
		}(iModelID, runID)
	}
	wg.Wait()

	logger.With(logger.Fields{
		logger.FieldCount: len(jobs),
	}).WithDuration(time.Since(start).Milliseconds()).Debug(ctx, "Polled extraction runs")
}

// applyState records a polled state unless the iModel was restarted while the
// request was in flight.
func (t *Tracker) applyState(iModelID, runID string, state domain.ExtractionState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.jobs[iModelID] != runID {
		return
	}
	if !state.IsRunState() {
		state = domain.StateFailed
	}
	t.states[iModelID] = state
	if state.IsTerminal() {
		delete(t.jobs, iModelID)
	}
}
