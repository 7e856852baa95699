package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/repository"
	"gorm.io/gorm"
)

var (
	// ErrInvalidRequest marks input the API answers with 422.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound marks unknown runs and reports.
	ErrNotFound = errors.New("not found")
)

// SimulatorConfig drives simulated run progress.
type SimulatorConfig struct {
	QueuedFor   time.Duration
	RunningFor  time.Duration
	FailIModels []string
}

// ExtractionService starts runs and reports their simulated progress.
type ExtractionService struct {
	runs       *repository.RunRepository
	logger     *logger.Logger
	queuedFor  time.Duration
	runningFor time.Duration
	fail       map[string]bool
	now        func() time.Time
}

// NewExtractionService creates a new extraction service.
// Parameters:
//   - runs: repository for run records.
//   - log: logger instance.
//   - cfg: simulated progress settings, nil for instant success.
//
// Returns:
//   - *ExtractionService: initialized extraction service.
func NewExtractionService(runs *repository.RunRepository, log *logger.Logger, cfg *SimulatorConfig) *ExtractionService {
	s := &ExtractionService{
		runs:   runs,
		logger: log,
		fail:   make(map[string]bool),
		now:    time.Now,
	}
	if cfg != nil {
		s.queuedFor = cfg.QueuedFor
		s.runningFor = cfg.RunningFor
		for _, id := range cfg.FailIModels {
			s.fail[id] = true
		}
	}
	return s
}

// SetClock replaces the time source used for simulated progress.
func (s *ExtractionService) SetClock(now func() time.Time) {
	s.now = now
}

// Start creates a queued run over mappingIDs of iModelID.
func (s *ExtractionService) Start(ctx context.Context, iModelID string, mappingIDs []string) (*domain.ExtractionRun, error) {
	if iModelID == "" {
		return nil, fmt.Errorf("%w: iModel id is required", ErrInvalidRequest)
	}
	if len(mappingIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one mapping is required", ErrInvalidRequest)
	}
	for _, id := range mappingIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: mapping id must not be empty", ErrInvalidRequest)
		}
	}

	run := &domain.ExtractionRun{
		ID:         uuid.New().String(),
		IModelID:   iModelID,
		MappingIDs: domain.StringList(mappingIDs),
		State:      domain.StateQueued,
		CreatedAt:  s.now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	ctx = withLogger(ctx, s.logger)
	logger.With(logger.Fields{logger.FieldCount: len(mappingIDs)}).Info(
		logger.WithFields(ctx, logger.Fields{logger.FieldIModelID: iModelID, logger.FieldRunID: run.ID}),
		"Extraction run queued")
	return run, nil
}

// Status returns the run, advancing it along the simulated timeline first.
// Runs only move forward; a terminal run is returned as stored.
func (s *ExtractionService) Status(ctx context.Context, runID string) (*domain.ExtractionRun, error) {
	run, err := s.get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.State.IsTerminal() {
		return run, nil
	}

	target, reason := s.simulate(run)
	if stage(target) <= stage(run.State) {
		return run, nil
	}

	if err := s.runs.UpdateState(ctx, run.ID, target, reason); err != nil {
		return nil, err
	}
	logger.CtxInfo(logger.WithFields(withLogger(ctx, s.logger), logger.Fields{logger.FieldRunID: run.ID}),
		"Extraction run moved: %s -> %s", run.State, target)
	return s.get(ctx, runID)
}

// SetState overrides the state of a run.
func (s *ExtractionService) SetState(ctx context.Context, runID string, state domain.ExtractionState, reason string) (*domain.ExtractionRun, error) {
	if state == domain.StateNone {
		return nil, fmt.Errorf("%w: state %s cannot be assigned to a run", ErrInvalidRequest, state)
	}
	if err := s.runs.UpdateState(ctx, runID, state, reason); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return nil, err
	}
	logger.CtxWarn(logger.WithFields(withLogger(ctx, s.logger), logger.Fields{logger.FieldRunID: runID}),
		"Extraction run state overridden: %s", state)
	return s.get(ctx, runID)
}

// Runs lists the runs started for iModelID, newest first. A limit of 0
// returns all of them.
func (s *ExtractionService) Runs(ctx context.Context, iModelID string, limit int) ([]domain.ExtractionRun, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	runs, err := s.runs.ListByIModel(ctx, iModelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (s *ExtractionService) get(ctx context.Context, runID string) (*domain.ExtractionRun, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return nil, err
	}
	return run, nil
}

func (s *ExtractionService) simulate(run *domain.ExtractionRun) (domain.ExtractionState, string) {
	elapsed := s.now().Sub(run.CreatedAt)
	switch {
	case elapsed < s.queuedFor:
		return domain.StateQueued, ""
	case elapsed < s.queuedFor+s.runningFor:
		return domain.StateRunning, ""
	case s.fail[run.IModelID]:
		return domain.StateFailed, fmt.Sprintf("extraction of iModel %s failed", run.IModelID)
	default:
		return domain.StateSucceeded, ""
	}
}

// withLogger attaches l to ctx unless the caller already scoped one.
func withLogger(ctx context.Context, l *logger.Logger) context.Context {
	if l == nil || logger.HasLogger(ctx) {
		return ctx
	}
	return l.WithContext(ctx)
}

// stage orders run states along a run's lifetime.
func stage(state domain.ExtractionState) int {
	switch state {
	case domain.StateQueued:
		return 1
	case domain.StateRunning:
		return 2
	case domain.StateSucceeded, domain.StateFailed:
		return 3
	default:
		return 0
	}
}
