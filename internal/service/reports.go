package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/repository"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// MappingPage is one page of a report's mappings.
type MappingPage struct {
	Mappings []domain.IModelMapping
	// NextToken resumes listing after this page, empty on the last page.
	NextToken string
}

// ReportService manages the mapping membership of reports.
type ReportService struct {
	mappings *repository.MappingRepository
	logger   *logger.Logger
	pageSize int
}

// NewReportService creates a new report service.
func NewReportService(mappings *repository.MappingRepository, log *logger.Logger) *ReportService {
	return &ReportService{mappings: mappings, logger: log, pageSize: DefaultPageSize}
}

// SetPageSize sets the page size used when a request names none.
func (s *ReportService) SetPageSize(n int) {
	if n > 0 && n <= MaxPageSize {
		s.pageSize = n
	}
}

// AddMappings links mappings to reportID and returns how many were new.
func (s *ReportService) AddMappings(ctx context.Context, reportID string, mappings []domain.IModelMapping) (int64, error) {
	if reportID == "" {
		return 0, fmt.Errorf("%w: report id is required", ErrInvalidRequest)
	}
	if len(mappings) == 0 {
		return 0, fmt.Errorf("%w: at least one mapping is required", ErrInvalidRequest)
	}
	for _, m := range mappings {
		if m.IModelID == "" || m.MappingID == "" {
			return 0, fmt.Errorf("%w: imodelId and mappingId are required", ErrInvalidRequest)
		}
	}

	added, err := s.mappings.Add(ctx, reportID, mappings)
	if err != nil {
		return 0, fmt.Errorf("failed to add mappings: %w", err)
	}

	logger.With(logger.Fields{logger.FieldCount: added}).Info(
		logger.WithFields(withLogger(ctx, s.logger), logger.Fields{logger.FieldReportID: reportID}),
		"Report mappings added")
	return added, nil
}

// ListMappings returns the page of reportID's mappings that token points at.
// An empty token starts from the first mapping.
func (s *ReportService) ListMappings(ctx context.Context, reportID, token string, pageSize int) (*MappingPage, error) {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	offset, err := decodeToken(token)
	if err != nil {
		return nil, err
	}

	exists, err := s.mappings.ReportExists(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up report: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, reportID)
	}

	mappings, total, err := s.mappings.ListByReport(ctx, reportID, offset, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}

	page := &MappingPage{Mappings: mappings}
	if next := offset + len(mappings); len(mappings) > 0 && int64(next) < total {
		page.NextToken = encodeToken(next)
	}
	return page, nil
}

func encodeToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed continuation token", ErrInvalidRequest)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: malformed continuation token", ErrInvalidRequest)
	}
	return offset, nil
}
