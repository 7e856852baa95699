package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/reportextract/internal/config"
	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/repository"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newExtractionService(t *testing.T, fail ...string) (*ExtractionService, *clock) {
	t.Helper()
	svc := NewExtractionService(repository.NewRunRepository(newTestDB(t)), logger.NewDiscard(), &SimulatorConfig{
		QueuedFor:   3 * time.Second,
		RunningFor:  10 * time.Second,
		FailIModels: fail,
	})
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.SetClock(c.Now)
	return svc, c
}

func TestExtractionService_StartValidates(t *testing.T) {
	svc, _ := newExtractionService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		iModelID string
		mappings []string
	}{
		{"missing iModel", "", []string{"m-1"}},
		{"no mappings", "im-1", nil},
		{"empty mapping id", "im-1", []string{"m-1", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Start(ctx, tt.iModelID, tt.mappings)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestExtractionService_SimulatedProgress(t *testing.T) {
	svc, c := newExtractionService(t)
	ctx := context.Background()

	run, err := svc.Start(ctx, "im-1", []string{"m-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.StateQueued, run.State)

	steps := []struct {
		advance time.Duration
		want    domain.ExtractionState
	}{
		{time.Second, domain.StateQueued},
		{3 * time.Second, domain.StateRunning},
		{5 * time.Second, domain.StateRunning},
		{10 * time.Second, domain.StateSucceeded},
		{time.Hour, domain.StateSucceeded},
	}
	for _, step := range steps {
		c.now = c.now.Add(step.advance)
		got, err := svc.Status(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, got.State)
	}
}

func TestExtractionService_FailList(t *testing.T) {
	svc, c := newExtractionService(t, "im-bad")
	ctx := context.Background()

	run, err := svc.Start(ctx, "im-bad", []string{"m-1"})
	require.NoError(t, err)

	c.now = c.now.Add(time.Minute)
	got, err := svc.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.NotEmpty(t, got.Reason)
	assert.NotNil(t, got.FinishedAt)
}

func TestExtractionService_StatusUnknownRun(t *testing.T) {
	svc, _ := newExtractionService(t)

	_, err := svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractionService_SetStateSticks(t *testing.T) {
	svc, c := newExtractionService(t)
	ctx := context.Background()

	run, err := svc.Start(ctx, "im-1", []string{"m-1"})
	require.NoError(t, err)

	got, err := svc.SetState(ctx, run.ID, domain.StateFailed, "cancelled by operator")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)

	c.now = c.now.Add(time.Hour)
	got, err = svc.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.Equal(t, "cancelled by operator", got.Reason)
}

func TestExtractionService_SetStateRunningIsNotUndone(t *testing.T) {
	svc, _ := newExtractionService(t)
	ctx := context.Background()

	run, err := svc.Start(ctx, "im-1", []string{"m-1"})
	require.NoError(t, err)
	_, err = svc.SetState(ctx, run.ID, domain.StateRunning, "")
	require.NoError(t, err)

	got, err := svc.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, got.State)
}

func TestExtractionService_SetStateRejects(t *testing.T) {
	svc, _ := newExtractionService(t)
	ctx := context.Background()

	_, err := svc.SetState(ctx, "missing", domain.StateSucceeded, "")
	assert.ErrorIs(t, err, ErrNotFound)

	run, err := svc.Start(ctx, "im-1", []string{"m-1"})
	require.NoError(t, err)
	_, err = svc.SetState(ctx, run.ID, domain.StateNone, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestExtractionService_Runs(t *testing.T) {
	svc, c := newExtractionService(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, "im-1", []string{"m-1"})
	require.NoError(t, err)
	c.now = c.now.Add(time.Second)
	second, err := svc.Start(ctx, "im-1", []string{"m-2"})
	require.NoError(t, err)

	runs, err := svc.Runs(ctx, "im-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	runs, err = svc.Runs(ctx, "im-unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = svc.Runs(ctx, "im-1", -1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReportService_ListMappingsPages(t *testing.T) {
	svc := NewReportService(repository.NewMappingRepository(newTestDB(t)), logger.NewDiscard())
	ctx := context.Background()

	added, err := svc.AddMappings(ctx, "r1", []domain.IModelMapping{
		{IModelID: "im-1", MappingID: "m-1"},
		{IModelID: "im-1", MappingID: "m-2"},
		{IModelID: "im-2", MappingID: "m-3"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, added)

	var all []domain.IModelMapping
	token := ""
	pages := 0
	for {
		page, err := svc.ListMappings(ctx, "r1", token, 2)
		require.NoError(t, err)
		all = append(all, page.Mappings...)
		pages++
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	assert.Equal(t, 2, pages)
	assert.Len(t, all, 3)
	assert.Equal(t, "m-3", all[2].MappingID)
}

func TestReportService_ListMappingsErrors(t *testing.T) {
	svc := NewReportService(repository.NewMappingRepository(newTestDB(t)), logger.NewDiscard())
	ctx := context.Background()

	_, err := svc.ListMappings(ctx, "unknown", "", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AddMappings(ctx, "r1", []domain.IModelMapping{{IModelID: "im-1", MappingID: "m-1"}})
	require.NoError(t, err)

	_, err = svc.ListMappings(ctx, "r1", "%%%", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.AddMappings(ctx, "r1", []domain.IModelMapping{{IModelID: "im-1"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPageTokenRoundTrip(t *testing.T) {
	offset, err := decodeToken(encodeToken(42))
	require.NoError(t, err)
	assert.Equal(t, 42, offset)

	offset, err = decodeToken("")
	require.NoError(t, err)
	assert.Zero(t, offset)
}
