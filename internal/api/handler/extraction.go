package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/service"
)

// ExtractionHandler serves the Extraction API.
type ExtractionHandler struct {
	extractionService *service.ExtractionService
}

// NewExtractionHandler creates a new extraction handler.
func NewExtractionHandler(extractionService *service.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extractionService: extractionService}
}

type mappingRef struct {
	ID string `json:"id"`
}

type startRunRequest struct {
	Mappings []mappingRef `json:"mappings"`
}

type runStatus struct {
	State  domain.ExtractionState `json:"state"`
	Reason string                 `json:"reason,omitempty"`
}

type setStatusRequest struct {
	State  string `json:"state" binding:"required"`
	Reason string `json:"reason"`
}

// StartRun handles POST /datasources/imodels/:imodelId/extraction/run.
func (h *ExtractionHandler) StartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "InvalidRequest", "Invalid request: "+err.Error())
		return
	}

	mappingIDs := make([]string, 0, len(req.Mappings))
	for _, m := range req.Mappings {
		mappingIDs = append(mappingIDs, m.ID)
	}

	run, err := h.extractionService.Start(c.Request.Context(), c.Param("imodelId"), mappingIDs)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"run": gin.H{
			"id":       run.ID,
			"imodelId": run.IModelID,
		},
	})
}

// GetStatus handles GET /datasources/extraction/status/:runId.
func (h *ExtractionHandler) GetStatus(c *gin.Context) {
	run, err := h.extractionService.Status(c.Request.Context(), c.Param("runId"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": runStatus{State: run.State, Reason: run.Reason},
	})
}

// SetStatus handles PUT /datasources/extraction/status/:runId, forcing a run
// into the given state.
func (h *ExtractionHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "InvalidRequest", "Invalid request: "+err.Error())
		return
	}

	state, err := domain.ParseExtractionState(req.State)
	if err != nil {
		abortWithError(c, http.StatusUnprocessableEntity, "InvalidRequest", err.Error())
		return
	}

	run, err := h.extractionService.SetState(c.Request.Context(), c.Param("runId"), state, req.Reason)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": runStatus{State: run.State, Reason: run.Reason},
	})
}

// ListRuns handles GET /datasources/imodels/:imodelId/extraction/runs.
func (h *ExtractionHandler) ListRuns(c *gin.Context) {
	limit := 0
	if top := c.Query(pageSizeParam); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusUnprocessableEntity, "InvalidRequest", "$top must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.extractionService.Runs(c.Request.Context(), c.Param("imodelId"), limit)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
