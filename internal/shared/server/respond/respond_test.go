package respond

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/shared/telemetry"
)

func TestErrorEnvelopeAndLogLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	telemetry.SetOutput(&logs)
	t.Cleanup(func() { telemetry.SetOutput(os.Stdout) })

	router := gin.New()
	router.GET("/batches/:id", func(c *gin.Context) {
		c.Set("batchId", c.Param("id"))
		Error(c, http.StatusNotFound, "not_found", "batch not found", gin.H{"id": c.Param("id")})
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/batches/b-1", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "not_found" || body.Error.Message != "batch not found" {
		t.Fatalf("unexpected body %+v", body)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &line); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if line["level"] != "warning" || line["batch_id"] != "b-1" || line["route"] != "/batches/:id" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestAcceptedSetsLocation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/batches", func(c *gin.Context) {
		Accepted(c, "/api/v1/batches/b-2", gin.H{"batchId": "b-2"})
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/batches", nil))
	if resp.Code != http.StatusAccepted || resp.Header().Get("Location") != "/api/v1/batches/b-2" {
		t.Fatalf("unexpected response %d location=%q", resp.Code, resp.Header().Get("Location"))
	}
}
