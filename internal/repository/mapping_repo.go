package repository

import (
	"context"

	"github.com/timmy/reportextract/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MappingRepository handles report mapping membership.
type MappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new MappingRepository.
func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Add links mappings to a report. Pairs already linked are skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - reportID: report ID.
//   - mappings: (iModel, mapping) pairs to link.
// Returns:
//   - int64: number of newly linked pairs.
//   - error: non-nil if the insert fails.
func (r *MappingRepository) Add(ctx context.Context, reportID string, mappings []domain.IModelMapping) (int64, error) {
	if len(mappings) == 0 {
		return 0, nil
	}

	rows := make([]domain.ReportMapping, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, domain.ReportMapping{
			ReportID:  reportID,
			IModelID:  m.IModelID,
			MappingID: m.MappingID,
		})
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return result.RowsAffected, result.Error
}

// ListByReport returns one page of a report's mappings in insertion order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - reportID: report ID.
//   - offset: rows to skip.
//   - limit: maximum rows to return.
// Returns:
//   - []domain.IModelMapping: the page.
//   - int64: total mappings of the report.
//   - error: non-nil if the query fails.
func (r *MappingRepository) ListByReport(ctx context.Context, reportID string, offset, limit int) ([]domain.IModelMapping, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&domain.ReportMapping{}).Where("report_id = ?", reportID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []domain.ReportMapping
	if err := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	mappings := make([]domain.IModelMapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, domain.IModelMapping{IModelID: row.IModelID, MappingID: row.MappingID})
	}
	return mappings, total, nil
}

// ReportExists reports whether any mapping is linked to reportID.
func (r *MappingRepository) ReportExists(ctx context.Context, reportID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ReportMapping{}).Where("report_id = ?", reportID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
