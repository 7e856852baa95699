package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/reportextract/internal/domain"
	"gorm.io/gorm"
)

// RunRepository handles extraction run persistence.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *RunRepository) Create(ctx context.Context, run *domain.ExtractionRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Get retrieves a run by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
// Returns:
//   - *domain.ExtractionRun: run record if found.
//   - error: wraps gorm.ErrRecordNotFound when no run has this ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*domain.ExtractionRun, error) {
	var run domain.ExtractionRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// UpdateState moves a run to state and stamps the matching timestamps.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
//   - state: new run state.
//   - reason: failure reason, empty otherwise.
// Returns:
//   - error: wraps gorm.ErrRecordNotFound when no run has this ID.
func (r *RunRepository) UpdateState(ctx context.Context, id string, state domain.ExtractionState, reason string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"state":  state,
		"reason": reason,
	}
	switch {
	case state == domain.StateRunning:
		updates["started_at"] = now
	case state.IsTerminal():
		updates["finished_at"] = now
	}

	result := r.db.WithContext(ctx).Model(&domain.ExtractionRun{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update run %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update run %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// ListByIModel returns the runs of an iModel, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - iModelID: iModel ID.
//   - limit: maximum number of runs, 0 for all.
// Returns:
//   - []domain.ExtractionRun: runs ordered by creation time descending.
//   - error: non-nil if the query fails.
func (r *RunRepository) ListByIModel(ctx context.Context, iModelID string, limit int) ([]domain.ExtractionRun, error) {
	var runs []domain.ExtractionRun
	query := r.db.WithContext(ctx).Where("imodel_id = ?", iModelID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
