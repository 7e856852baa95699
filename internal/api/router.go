package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/reportextract/internal/api/handler"
	"github.com/timmy/reportextract/internal/api/middleware"
	"github.com/timmy/reportextract/internal/config"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/service"
	"gorm.io/gorm"
)

// BasePath prefixes every Extraction and Reports API route.
const BasePath = "/insights/reporting"

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	extractionService *service.ExtractionService,
	reportService *service.ReportService,
	db *gorm.DB,
	log *logger.Logger,
	serverCfg *config.ServerConfig,
	authToken string,
) *gin.Engine {
	// Set Gin mode
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  serverCfg.CORS.AllowedOrigins,
		AllowAllOrigins: serverCfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(db)
	extractionHandler := handler.NewExtractionHandler(extractionService)
	reportsHandler := handler.NewReportsHandler(reportService)

	// Health check
	r.GET("/health", healthHandler.Health)

	v1 := r.Group(BasePath)
	v1.Use(middleware.BearerAuth(authToken))
	{
		// Extraction
		v1.POST("/datasources/imodels/:imodelId/extraction/run", extractionHandler.StartRun)
		v1.GET("/datasources/imodels/:imodelId/extraction/runs", extractionHandler.ListRuns)
		v1.GET("/datasources/extraction/status/:runId", extractionHandler.GetStatus)
		v1.PUT("/datasources/extraction/status/:runId", extractionHandler.SetStatus)

		// Reports
		v1.GET("/reports/:reportId/datasources/imodelMappings", reportsHandler.ListMappings)
		v1.POST("/reports/:reportId/datasources/imodelMappings", reportsHandler.AddMappings)
	}

	return r
}
