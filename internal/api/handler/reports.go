package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reportextract/internal/domain"
	"github.com/timmy/reportextract/internal/service"
)

const (
	continuationTokenParam = "$continuationToken"
	pageSizeParam          = "$top"
)

// ReportsHandler serves the Reports API mapping endpoints.
type ReportsHandler struct {
	reportService *service.ReportService
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(reportService *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reportService: reportService}
}

type addMappingsRequest struct {
	Mappings []domain.IModelMapping `json:"mappings"`
}

// ListMappings handles GET /reports/:reportId/datasources/imodelMappings.
// Pages link to their successor through _links.next.
func (h *ReportsHandler) ListMappings(c *gin.Context) {
	pageSize := 0
	if top := c.Query(pageSizeParam); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusUnprocessableEntity, "InvalidRequest", "$top must be a positive integer")
			return
		}
		pageSize = n
	}

	page, err := h.reportService.ListMappings(c.Request.Context(), c.Param("reportId"), c.Query(continuationTokenParam), pageSize)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	links := gin.H{"self": gin.H{"href": requestURL(c, c.Request.URL.Query())}}
	if page.NextToken != "" {
		query := url.Values{}
		query.Set(continuationTokenParam, page.NextToken)
		if pageSize > 0 {
			query.Set(pageSizeParam, strconv.Itoa(pageSize))
		}
		links["next"] = gin.H{"href": requestURL(c, query)}
	}

	c.JSON(http.StatusOK, gin.H{
		"mappings": page.Mappings,
		"_links":   links,
	})
}

// AddMappings handles POST /reports/:reportId/datasources/imodelMappings.
func (h *ReportsHandler) AddMappings(c *gin.Context) {
	var req addMappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "InvalidRequest", "Invalid request: "+err.Error())
		return
	}

	added, err := h.reportService.AddMappings(c.Request.Context(), c.Param("reportId"), req.Mappings)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"added": added})
}

// requestURL rebuilds the absolute URL of the current path with query.
func requestURL(c *gin.Context, query url.Values) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     c.Request.URL.Path,
		RawQuery: query.Encode(),
	}
	return u.String()
}
