package middleware

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

func TestRecoveryReturnsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	telemetry.SetOutput(&logs)
	t.Cleanup(func() { telemetry.SetOutput(os.Stdout) })

	router := gin.New()
	router.Use(RequestID(), Recovery())
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "internal" {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}
	if !bytes.Contains(logs.Bytes(), []byte(`"msg":"http.panic"`)) {
		t.Fatalf("expected panic log line, got %s", logs.String())
	}
}
