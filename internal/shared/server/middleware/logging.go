package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request, at error level for 5xx responses.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		documentID, _ := c.Get("documentId")
		batchID, _ := c.Get("batchId")
		statusTransition := ""
		if raw, ok := c.Get("statusTransition"); ok {
			if s, ok := raw.(string); ok {
				statusTransition = s
			}
		}

		log := telemetry.Info
		if status >= 500 {
			log = telemetry.Error
		}
		log("request.complete", map[string]any{
			"request_id":        reqID,
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"route":             c.FullPath(),
			"status":            status,
			"status_transition": statusTransition,
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"document_id":       documentID,
			"batch_id":          batchID,
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		})
	}
}
