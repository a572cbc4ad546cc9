package itera

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"docrecon-backend/internal/remote"
)

const tokenPath = "/Itera/GetAccessToken"

// tokenSource fetches a bearer token from the access-token endpoint. The
// endpoint does not report an expiry, so each token is assumed valid for ttl.
type tokenSource struct {
	ctx     context.Context
	client  *http.Client
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.baseURL+tokenPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, remote.Unreachable(fmt.Errorf("fetch access token: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, remote.Unreachable(fmt.Errorf("read access token: %w", err))
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("fetch access token: %w", err)
	}

	token := parseToken(body)
	if token == "" {
		return nil, &remote.RejectedError{StatusCode: resp.StatusCode, Reason: "empty access token"}
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      s.now().Add(s.ttl),
	}, nil
}

// parseToken accepts a JSON string, a JSON object with a token field, or plain text.
func parseToken(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	var asString string
	if err := json.Unmarshal([]byte(trimmed), &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asObject map[string]any
	if err := json.Unmarshal([]byte(trimmed), &asObject); err == nil {
		for _, key := range []string{"accessToken", "access_token", "token"} {
			if v, ok := asObject[key].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	return trimmed
}
