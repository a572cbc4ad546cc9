// Package itera implements remote.Client over the Itera HTTP API.
package itera

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"docrecon-backend/internal/remote"
)

const (
	uploadPath      = "/Itera/UploadDocument"
	batchUploadPath = "/DocumentProcessing/Documents/Batch"
	statusPath      = "/DocumentProcessing/Status/"
	exportPath      = "/DocumentProcessing/Export/"

	maxResponseBytes = 8 << 20
	defaultTokenTTL  = 50 * time.Minute
	defaultTimeout   = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	TokenTTL time.Duration
	Timeout  time.Duration
	// HTTPClient is the transport used for both token and API calls.
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client implements remote.Client against the Itera endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client. Bearer tokens are fetched lazily and reused
// until TokenTTL elapses.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("REMOTE_BASE_URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid REMOTE_BASE_URL: %w", err)
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	baseClient := opts.HTTPClient
	if baseClient == nil {
		baseClient = &http.Client{Timeout: opts.Timeout}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
	source := oauth2.ReuseTokenSource(nil, &tokenSource{
		ctx:     ctx,
		client:  baseClient,
		baseURL: base,
		ttl:     opts.TokenTTL,
		now:     opts.Now,
	})
	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = opts.Timeout

	return &Client{baseURL: base, httpClient: httpClient}, nil
}

type uploadResponse struct {
	ID              string `json:"id"`
	DocumentID      string `json:"documentId"`
	IteraDocumentID string `json:"iteraDocumentId"`
	ErrorMessage    string `json:"errorMessage"`
}

func (r uploadResponse) remoteID() string {
	for _, id := range []string{r.IteraDocumentID, r.DocumentID, r.ID} {
		if strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

// Submit uploads one document as multipart form data.
func (c *Client) Submit(ctx context.Context, upload remote.Upload) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("File", upload.FileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(upload.Content); err != nil {
		return "", err
	}
	fields := []struct{ name, value string }{
		{"Cnpj", upload.CNPJ},
		{"Source", upload.Source},
		{"Description", upload.Description},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := writer.WriteField(f.name, f.value); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	raw, err := c.do(ctx, http.MethodPost, uploadPath, writer.FormDataContentType(), body)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", upload.FileName, err)
	}
	var resp uploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("upload %s: decode response: %w", upload.FileName, err)
	}
	if resp.ErrorMessage != "" {
		return "", &remote.RejectedError{Reason: resp.ErrorMessage}
	}
	id := resp.remoteID()
	if id == "" {
		return "", fmt.Errorf("upload %s: %w", upload.FileName, &remote.RejectedError{Reason: "response carried no document id"})
	}
	return id, nil
}

type batchItem struct {
	FileName      string `json:"fileName"`
	ContentBase64 string `json:"contentBase64"`
	ContentType   string `json:"contentType"`
	CNPJ          string `json:"cnpj"`
	Source        string `json:"source,omitempty"`
	Description   string `json:"description,omitempty"`
}

// SubmitBatch uploads documents in a single JSON request. Results are
// matched to uploads by position.
func (c *Client) SubmitBatch(ctx context.Context, uploads []remote.Upload) ([]remote.SubmitResult, error) {
	items := make([]batchItem, 0, len(uploads))
	for _, u := range uploads {
		items = append(items, batchItem{
			FileName:      u.FileName,
			ContentBase64: base64.StdEncoding.EncodeToString(u.Content),
			ContentType:   "application/pdf",
			CNPJ:          u.CNPJ,
			Source:        u.Source,
			Description:   u.Description,
		})
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, http.MethodPost, batchUploadPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("batch upload: %w", err)
	}
	var resp []uploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("batch upload: decode response: %w", err)
	}

	results := make([]remote.SubmitResult, len(uploads))
	for i, u := range uploads {
		results[i].DocumentID = u.DocumentID
		if i >= len(resp) {
			results[i].Err = &remote.RejectedError{Reason: "missing from batch response"}
			continue
		}
		switch {
		case resp[i].ErrorMessage != "":
			results[i].Err = &remote.RejectedError{Reason: resp[i].ErrorMessage}
		case resp[i].remoteID() == "":
			results[i].Err = &remote.RejectedError{Reason: "response carried no document id"}
		default:
			results[i].RemoteID = resp[i].remoteID()
		}
	}
	return results, nil
}

type statusObject struct {
	Status       string `json:"status"`
	IteraStatus  string `json:"iteraStatus"`
	ErrorMessage string `json:"errorMessage"`
	Message      string `json:"message"`
}

// PollStatus returns the remote status of remoteID.
func (c *Client) PollStatus(ctx context.Context, remoteID string) (remote.Status, error) {
	raw, err := c.do(ctx, http.MethodGet, statusPath+url.PathEscape(remoteID), "", nil)
	if err != nil {
		return remote.Status{}, fmt.Errorf("poll %s: %w", remoteID, err)
	}
	status, err := parseStatus(raw)
	if err != nil {
		return remote.Status{}, fmt.Errorf("poll %s: %w", remoteID, err)
	}
	return status, nil
}

func parseStatus(raw []byte) (remote.Status, error) {
	var token, message string
	var asString string
	var asObject statusObject
	switch {
	case json.Unmarshal(raw, &asString) == nil:
		token = asString
	case json.Unmarshal(raw, &asObject) == nil:
		token = asObject.Status
		if token == "" {
			token = asObject.IteraStatus
		}
		message = asObject.ErrorMessage
		if message == "" {
			message = asObject.Message
		}
	default:
		token = string(raw)
	}

	state, ok := parseState(token)
	if !ok {
		return remote.Status{}, fmt.Errorf("unknown remote status %q", strings.TrimSpace(token))
	}
	if state == remote.StateError && strings.TrimSpace(message) == "" {
		message = "remote processing failed"
	}
	return remote.Status{State: state, Message: strings.TrimSpace(message)}, nil
}

func parseState(token string) (remote.State, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "pendente", "pending", "aguardando", "queued":
		return remote.StatePending, true
	case "processando", "processing", "em processamento":
		return remote.StateProcessing, true
	case "concluido", "concluído", "completed", "done":
		return remote.StateCompleted, true
	case "erro", "error", "failed", "falha":
		return remote.StateError, true
	default:
		return "", false
	}
}

// FetchExport returns the extraction result of a completed document. When
// the endpoint answers with an array, the first element is used.
func (c *Client) FetchExport(ctx context.Context, remoteID string) (remote.Export, error) {
	raw, err := c.do(ctx, http.MethodGet, exportPath+url.PathEscape(remoteID), "", nil)
	if err != nil {
		return remote.Export{}, fmt.Errorf("export %s: %w", remoteID, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return remote.Export{}, fmt.Errorf("export %s: decode response: %w", remoteID, err)
		}
		if len(list) == 0 {
			return remote.Export{}, fmt.Errorf("export %s: empty result", remoteID)
		}
		return remote.Export{RemoteID: remoteID, Fields: list[0]}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return remote.Export{}, fmt.Errorf("export %s: decode response: %w", remoteID, err)
	}
	return remote.Export{RemoteID: remoteID, Fields: fields}, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var rejected *remote.RejectedError
		if errors.As(err, &rejected) {
			return nil, rejected
		}
		return nil, remote.Unreachable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, remote.Unreachable(fmt.Errorf("read response: %w", err))
	}
	if err := statusError(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// statusError maps non-2xx responses: 429 and 5xx are transient, other 4xx are rejections.
func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	reason := errorReason(body)
	if code == http.StatusTooManyRequests || code >= 500 {
		return remote.Unreachable(fmt.Errorf("http status %d: %s", code, reason))
	}
	return &remote.RejectedError{StatusCode: code, Reason: reason}
}

func errorReason(body []byte) string {
	var payload struct {
		Message      string `json:"message"`
		ErrorMessage string `json:"errorMessage"`
		Title        string `json:"title"`
		Error        any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.ErrorMessage, payload.Message, payload.Title} {
			if strings.TrimSpace(candidate) != "" {
				return strings.TrimSpace(candidate)
			}
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		text = "empty response"
	}
	return text
}

var _ remote.Client = (*Client)(nil)
