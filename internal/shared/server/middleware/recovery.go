package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/shared/server/respond"
	"docrecon-backend/internal/shared/telemetry"
)

// Recovery turns handler panics into a 500 envelope. Panics after the
// response has started only get logged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			telemetry.Error("http.panic", map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      rec,
				"stack":      string(debug.Stack()),
				"route":      c.FullPath(),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"batch_id":   c.GetString("batchId"),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
