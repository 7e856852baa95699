package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/reportextract/internal/config"
	"github.com/timmy/reportextract/internal/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	run := &domain.ExtractionRun{
		ID:         "run-1",
		IModelID:   "im-1",
		MappingIDs: domain.StringList{"m-1", "m-2"},
		State:      domain.StateQueued,
	}
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "im-1", got.IModelID)
	assert.Equal(t, domain.StringList{"m-1", "m-2"}, got.MappingIDs)
	assert.Equal(t, domain.StateQueued, got.State)
	assert.Nil(t, got.StartedAt)
}

func TestRunRepository_GetMissing(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRunRepository_UpdateState(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.ExtractionRun{ID: "run-1", IModelID: "im-1", State: domain.StateQueued}))

	require.NoError(t, repo.UpdateState(ctx, "run-1", domain.StateRunning, ""))
	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, got.State)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, repo.UpdateState(ctx, "run-1", domain.StateFailed, "mapping is invalid"))
	got, err = repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.Equal(t, "mapping is invalid", got.Reason)
	assert.NotNil(t, got.FinishedAt)

	err = repo.UpdateState(ctx, "nope", domain.StateSucceeded, "")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRunRepository_ListByIModel(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, repo.Create(ctx, &domain.ExtractionRun{ID: id, IModelID: "im-1", State: domain.StateQueued}))
	}
	require.NoError(t, repo.Create(ctx, &domain.ExtractionRun{ID: "other", IModelID: "im-2", State: domain.StateQueued}))

	runs, err := repo.ListByIModel(ctx, "im-1", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	runs, err = repo.ListByIModel(ctx, "im-1", 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestMappingRepository_AddSkipsDuplicates(t *testing.T) {
	repo := NewMappingRepository(newTestDB(t))
	ctx := context.Background()

	added, err := repo.Add(ctx, "r1", []domain.IModelMapping{
		{IModelID: "im-1", MappingID: "m-1"},
		{IModelID: "im-1", MappingID: "m-2"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, added)

	added, err = repo.Add(ctx, "r1", []domain.IModelMapping{
		{IModelID: "im-1", MappingID: "m-2"},
		{IModelID: "im-2", MappingID: "m-1"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, added)

	_, total, err := repo.ListByReport(ctx, "r1", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestMappingRepository_ListByReportPages(t *testing.T) {
	repo := NewMappingRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Add(ctx, "r1", []domain.IModelMapping{
		{IModelID: "im-1", MappingID: "m-1"},
		{IModelID: "im-1", MappingID: "m-2"},
		{IModelID: "im-2", MappingID: "m-3"},
	})
	require.NoError(t, err)
	_, err = repo.Add(ctx, "r2", []domain.IModelMapping{{IModelID: "im-9", MappingID: "m-9"}})
	require.NoError(t, err)

	page, total, err := repo.ListByReport(ctx, "r1", 0, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []domain.IModelMapping{
		{IModelID: "im-1", MappingID: "m-1"},
		{IModelID: "im-1", MappingID: "m-2"},
	}, page)

	page, _, err = repo.ListByReport(ctx, "r1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.IModelMapping{{IModelID: "im-2", MappingID: "m-3"}}, page)

	exists, err := repo.ReportExists(ctx, "r2")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ReportExists(ctx, "r3")
	require.NoError(t, err)
	assert.False(t, exists)
}
