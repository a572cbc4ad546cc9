package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/exports"
	"docrecon-backend/internal/services/health"
	"docrecon-backend/internal/shared/config"
	"docrecon-backend/internal/shared/metrics"
	"docrecon-backend/internal/shared/server/middleware"
	"docrecon-backend/internal/shared/server/respond"
)

const (
	rateGroupSubmit  = "SUBMIT"
	rateGroupPolling = "POLLING"
)

// RouterDeps carries the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	DocumentHandler *documents.Handler
	BatchHandler    *batches.Handler
	ExportHandler   *exports.Handler
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: rateGroupFor,
			Limiter:  deps.RateLimiter,
			Rules: map[string]middleware.RateLimitRule{
				rateGroupSubmit:  {Rate: 2, Burst: 10},
				rateGroupPolling: {Rate: 20, Burst: 60},
			},
		}),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		payload, ok := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, payload)
	})
	api.GET("/metrics", metrics.Handler())

	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.BatchHandler != nil {
		deps.BatchHandler.RegisterRoutes(api)
	}
	if deps.ExportHandler != nil {
		deps.ExportHandler.RegisterRoutes(api)
	}

	return r
}

// rateGroupFor buckets submissions separately from status polling.
func rateGroupFor(c *gin.Context) string {
	switch c.Request.Method + " " + c.FullPath() {
	case "POST /api/v1/documents", "POST /api/v1/documents/batch", "POST /api/v1/batches/process":
		return rateGroupSubmit
	case "GET /api/v1/batches/:id", "GET /api/v1/documents/:id/status":
		return rateGroupPolling
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
