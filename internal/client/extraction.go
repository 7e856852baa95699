package client

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/reportextract/internal/domain"
)

// ExtractionClient starts extraction runs and reads their status.
type ExtractionClient struct {
	client *resty.Client
	token  TokenProvider
}

// NewExtractionClient creates an Extraction API client.
func NewExtractionClient(cfg *Config) *ExtractionClient {
	return &ExtractionClient{
		client: newRestyClient(cfg),
		token:  cfg.Token,
	}
}

type mappingRef struct {
	ID string `json:"id"`
}

type startRunRequest struct {
	Mappings []mappingRef `json:"mappings"`
}

type startRunResponse struct {
	Run struct {
		ID string `json:"id"`
	} `json:"run"`
}

type runStatusResponse struct {
	Status struct {
		State  string `json:"state"`
		Reason string `json:"reason,omitempty"`
	} `json:"status"`
}

// StartExtraction starts a run over mappingIDs of iModelID and returns its id.
func (c *ExtractionClient) StartExtraction(ctx context.Context, iModelID string, mappingIDs []string) (string, error) {
	body := startRunRequest{Mappings: make([]mappingRef, 0, len(mappingIDs))}
	for _, id := range mappingIDs {
		body.Mappings = append(body.Mappings, mappingRef{ID: id})
	}

	req, err := newRequest(ctx, c.client, c.token)
	if err != nil {
		return "", err
	}

	var result startRunResponse
	resp, err := req.
		SetPathParam("imodelId", iModelID).
		SetBody(body).
		SetResult(&result).
		Post("/datasources/imodels/{imodelId}/extraction/run")
	if err != nil {
		return "", fmt.Errorf("failed to call extraction API: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return "", fmt.Errorf("start extraction for iModel %s: %w", iModelID, err)
	}
	if result.Run.ID == "" {
		return "", fmt.Errorf("start extraction for iModel %s: response has no run id", iModelID)
	}

	return result.Run.ID, nil
}

// GetStatus returns the current state of run runID.
func (c *ExtractionClient) GetStatus(ctx context.Context, runID string) (domain.ExtractionState, error) {
	req, err := newRequest(ctx, c.client, c.token)
	if err != nil {
		return domain.StateNone, err
	}

	var result runStatusResponse
	resp, err := req.
		SetPathParam("runId", runID).
		SetResult(&result).
		Get("/datasources/extraction/status/{runId}")
	if err != nil {
		return domain.StateNone, fmt.Errorf("failed to call extraction API: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return domain.StateNone, fmt.Errorf("get status of run %s: %w", runID, err)
	}

	state, err := domain.ParseExtractionState(result.Status.State)
	if err != nil {
		return domain.StateNone, fmt.Errorf("get status of run %s: %w", runID, err)
	}
	if !state.IsRunState() {
		return domain.StateNone, fmt.Errorf("get status of run %s: %q is not a run state", runID, result.Status.State)
	}
	return state, nil
}
