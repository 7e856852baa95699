package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/reportextract/internal/client"
	"github.com/timmy/reportextract/internal/config"
	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/repository"
	"github.com/timmy/reportextract/internal/service"
	"github.com/timmy/reportextract/internal/tracker"
)

const testToken = "dev-token"

type testServer struct {
	*httptest.Server
	extraction *service.ExtractionService
	reports    *service.ReportService
}

func newTestServer(t *testing.T, sim *service.SimulatorConfig) *testServer {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", AutoMigrate: true})
	require.NoError(t, err)

	log := logger.NewDiscard()
	extraction := service.NewExtractionService(repository.NewRunRepository(db), log, sim)
	reports := service.NewReportService(repository.NewMappingRepository(db), log)

	router := SetupRouter(extraction, reports, db, log, &config.ServerConfig{
		Mode: "test",
		CORS: config.CORSConfig{AllowAllOrigins: true},
	}, testToken)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testServer{Server: srv, extraction: extraction, reports: reports}
}

func (s *testServer) clientConfig(token string) *client.Config {
	return &client.Config{
		BaseURL: s.URL + BasePath,
		Timeout: 5 * time.Second,
		Token:   client.StaticToken(token),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) seed(t *testing.T, reportID string, mappings ...domain.IModelMapping) {
	t.Helper()
	resp := s.do(t, http.MethodPost, BasePath+"/reports/"+reportID+"/datasources/imodelMappings",
		map[string]interface{}{"mappings": mappings})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestStartAndStatusThroughClient(t *testing.T) {
	srv := newTestServer(t, &service.SimulatorConfig{QueuedFor: time.Hour})
	c := client.NewExtractionClient(srv.clientConfig(testToken))
	ctx := context.Background()

	runID, err := c.StartExtraction(ctx, "im-1", []string{"m-1", "m-2"})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	state, err := c.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, state)
}

func TestStartWithoutMappingsIsUnprocessable(t *testing.T) {
	srv := newTestServer(t, nil)
	c := client.NewExtractionClient(srv.clientConfig(testToken))

	_, err := c.StartExtraction(context.Background(), "im-1", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, client.StatusCode(err))
}

func TestStatusOfUnknownRunIsNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	c := client.NewExtractionClient(srv.clientConfig(testToken))

	_, err := c.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
}

func TestBearerTokenIsRequired(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"wrong", "not-the-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := client.NewExtractionClient(srv.clientConfig(tt.token))
			_, err := c.StartExtraction(ctx, "im-1", []string{"m-1"})
			require.Error(t, err)
			assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))
		})
	}
}

func TestPreflightSkipsAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+BasePath+"/datasources/extraction/status/x", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://widget.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSetStatusOverridesRun(t *testing.T) {
	srv := newTestServer(t, &service.SimulatorConfig{QueuedFor: time.Hour})
	c := client.NewExtractionClient(srv.clientConfig(testToken))
	ctx := context.Background()

	runID, err := c.StartExtraction(ctx, "im-1", []string{"m-1"})
	require.NoError(t, err)

	resp := srv.do(t, http.MethodPut, BasePath+"/datasources/extraction/status/"+runID,
		map[string]string{"state": "failed", "reason": "stopped"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state, err := c.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, state)

	resp = srv.do(t, http.MethodPut, BasePath+"/datasources/extraction/status/"+runID,
		map[string]string{"state": "paused"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListRunsOfIModel(t *testing.T) {
	srv := newTestServer(t, &service.SimulatorConfig{QueuedFor: time.Hour})
	c := client.NewExtractionClient(srv.clientConfig(testToken))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.StartExtraction(ctx, "im-1", []string{"m-1"})
		require.NoError(t, err)
	}
	_, err := c.StartExtraction(ctx, "im-2", []string{"m-2"})
	require.NoError(t, err)

	var body struct {
		Runs []domain.ExtractionRun `json:"runs"`
	}
	resp := srv.do(t, http.MethodGet, BasePath+"/datasources/imodels/im-1/extraction/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Runs, 3)
	for _, run := range body.Runs {
		assert.Equal(t, "im-1", run.IModelID)
		assert.Equal(t, domain.StateQueued, run.State)
	}

	resp = srv.do(t, http.MethodGet, BasePath+"/datasources/imodels/im-1/extraction/runs?$top=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Runs, 2)

	resp = srv.do(t, http.MethodGet, BasePath+"/datasources/imodels/im-1/extraction/runs?$top=zero", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestMappingsArePagedThroughNextLinks(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.reports.SetPageSize(2)

	srv.seed(t, "r1",
		domain.IModelMapping{IModelID: "im-1", MappingID: "m-1"},
		domain.IModelMapping{IModelID: "im-1", MappingID: "m-2"},
		domain.IModelMapping{IModelID: "im-2", MappingID: "m-3"},
		domain.IModelMapping{IModelID: "im-2", MappingID: "m-4"},
		domain.IModelMapping{IModelID: "im-3", MappingID: "m-5"},
	)

	c := client.NewReportsClient(srv.clientConfig(testToken))
	mappings, err := c.GetMappings(context.Background(), "r1")
	require.NoError(t, err)

	require.Len(t, mappings, 5)
	assert.Equal(t, domain.IModelMapping{IModelID: "im-3", MappingID: "m-5"}, mappings[4])
}

func TestMappingsOfUnknownReportAreNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	c := client.NewReportsClient(srv.clientConfig(testToken))

	_, err := c.GetMappings(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
}

type notifications struct {
	succeeded []string
	failed    []string
}

func TestTrackerAgainstDevServer(t *testing.T) {
	srv := newTestServer(t, &service.SimulatorConfig{FailIModels: []string{"im-2"}})
	srv.seed(t, "r1",
		domain.IModelMapping{IModelID: "im-1", MappingID: "m-1"},
		domain.IModelMapping{IModelID: "im-1", MappingID: "m-2"},
		domain.IModelMapping{IModelID: "im-2", MappingID: "m-3"},
	)
	srv.seed(t, "r2", domain.IModelMapping{IModelID: "im-1", MappingID: "m-1"})

	var got notifications
	tr := tracker.New(
		client.NewExtractionClient(srv.clientConfig(testToken)),
		client.NewReportsClient(srv.clientConfig(testToken)),
		tracker.WithLogger(logger.NewDiscard()),
		tracker.WithNotifier(tracker.NotifierFuncs{
			OnSuccess: func(name, feedURL string) { got.succeeded = append(got.succeeded, name) },
			OnFailure: func(name string) { got.failed = append(got.failed, name) },
		}),
	)
	ctx := context.Background()

	assert.Equal(t, domain.StateNone, tr.GetReportState(ctx, "r1"))

	tr.StartReportExtractions(ctx, []string{"r1", "r2"})
	assert.Equal(t, 2, tr.PendingRuns())

	// The first query polls; the simulator finishes runs instantly.
	assert.Equal(t, domain.StateFailed, tr.GetReportState(ctx, "r1"))
	assert.Equal(t, domain.StateSucceeded, tr.GetReportState(ctx, "r2"))
	assert.Zero(t, tr.PendingRuns())

	assert.Equal(t, domain.StateSucceeded, tr.GetIModelState(ctx, "im-1", "Bridge", "https://feed/im-1"))
	assert.Equal(t, domain.StateFailed, tr.GetIModelState(ctx, "im-2", "Tunnel", ""))
	assert.Equal(t, domain.StateSucceeded, tr.GetIModelState(ctx, "im-1", "Bridge", "https://feed/im-1"))

	assert.Equal(t, []string{"Bridge"}, got.succeeded)
	assert.Equal(t, []string{"Tunnel"}, got.failed)
}
