package documents_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/shared/storage/object/local"
)

func newTestRouter(t *testing.T) (*gin.Engine, *documents.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := &documents.Service{
		Store:      local.New(t.TempDir()),
		Repo:       documents.NewMemoryRepo(),
		RequirePDF: true,
	}
	router := gin.New()
	documents.NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router, svc
}

func multipartUpload(t *testing.T, fileName string, content []byte, cnpj string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("File", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_ = writer.WriteField("Cnpj", cnpj)
	_ = writer.WriteField("Source", "portal")
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestDocumentsUploadAndGet(t *testing.T) {
	router, svc := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, multipartUpload(t, "balanco.pdf", buildPDF(3), "12345678000195"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created documents.DocumentResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.DocumentID == "" || created.Status != "created" || created.PageCount != 3 {
		t.Fatalf("unexpected create response: %+v", created)
	}

	doc, err := svc.Repo.Get(t.Context(), created.DocumentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	staged, err := svc.Content(t.Context(), doc)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if !bytes.Equal(staged, buildPDF(3)) {
		t.Fatalf("staged bytes differ from upload")
	}

	respGet := httptest.NewRecorder()
	router.ServeHTTP(respGet, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+created.DocumentID+"/status", nil))
	if respGet.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", respGet.Code)
	}
	var status documents.StatusResponse
	if err := json.NewDecoder(respGet.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "created" {
		t.Fatalf("expected created, got %q", status.Status)
	}
}

func TestDocumentsUploadRejectsNonPDF(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, multipartUpload(t, "notes.txt", []byte("hello"), "12345678000195"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestDocumentsUploadRejectsBadCNPJ(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, multipartUpload(t, "a.pdf", buildPDF(1), "123"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestDocumentsBatchAndList(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := []map[string]string{
		{"fileName": "a.pdf", "contentBase64": base64.StdEncoding.EncodeToString(buildPDF(1)), "cnpj": "12345678000195"},
		{"fileName": "b.pdf", "contentBase64": base64.StdEncoding.EncodeToString(buildPDF(2)), "cnpj": "98765432000110"},
	}
	raw, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/batch", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	respList := httptest.NewRecorder()
	router.ServeHTTP(respList, httptest.NewRequest(http.MethodGet, "/api/v1/documents?cnpj=98765432000110&status=created", nil))
	if respList.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", respList.Code)
	}
	var listed []documents.DocumentResponse
	if err := json.NewDecoder(respList.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].FileName != "b.pdf" {
		t.Fatalf("unexpected list: %+v", listed)
	}
}

func TestDocumentsListRejectsUnknownStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents?status=done", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestDocumentsGetMissing(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}
