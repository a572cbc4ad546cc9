package itera

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docrecon-backend/internal/remote"
)

type fakeServer struct {
	tokenCalls atomic.Int32
	handler    http.HandlerFunc
}

func newFakeServer(t *testing.T, handler http.HandlerFunc) (*fakeServer, *Client) {
	t.Helper()
	fs := &fakeServer{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			n := fs.tokenCalls.Add(1)
			_ = json.NewEncoder(w).Encode("token-" + string(rune('0'+n)))
			return
		}
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fs.handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{BaseURL: srv.URL, TokenTTL: time.Hour, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return fs, client
}

func TestSubmitSendsMultipartAndReusesToken(t *testing.T) {
	var (
		mu   sync.Mutex
		auth []string
	)
	fs, client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		if r.URL.Path != uploadPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("Cnpj"); got != "12345678000195" {
			t.Errorf("unexpected cnpj %q", got)
		}
		file, _, err := r.FormFile("File")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		content, _ := io.ReadAll(file)
		if string(content) != "pdf-bytes" {
			t.Errorf("unexpected content %q", content)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "remote-42"})
	})

	for i := 0; i < 2; i++ {
		id, err := client.Submit(t.Context(), remote.Upload{FileName: "a.pdf", Content: []byte("pdf-bytes"), CNPJ: "12345678000195"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if id != "remote-42" {
			t.Fatalf("unexpected id %q", id)
		}
	}
	if fs.tokenCalls.Load() != 1 {
		t.Fatalf("expected token to be fetched once, got %d", fs.tokenCalls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(auth) != 2 || auth[0] != "Bearer token-1" {
		t.Fatalf("unexpected authorization headers %v", auth)
	}
}

func TestSubmitClassifiesFailures(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	_, client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid cnpj"})
	})

	_, err := client.Submit(t.Context(), remote.Upload{FileName: "a.pdf", Content: []byte("x")})
	var rejected *remote.RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != "invalid cnpj" {
		t.Fatalf("expected rejection with reason, got %v", err)
	}
	if remote.IsTransient(err) {
		t.Fatalf("rejection must not be transient")
	}

	status.Store(http.StatusServiceUnavailable)
	_, err = client.Submit(t.Context(), remote.Upload{FileName: "a.pdf", Content: []byte("x")})
	if !errors.Is(err, remote.ErrUnreachable) || !remote.IsTransient(err) {
		t.Fatalf("expected transient unreachable error, got %v", err)
	}
}

func TestSubmitBatchPerMemberOutcomes(t *testing.T) {
	_, client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var items []batchItem
		if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(items) != 2 || items[0].ContentBase64 == "" {
			t.Errorf("unexpected items %+v", items)
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"iteraDocumentId": "r-a"},
			{"errorMessage": "corrupted file"},
		})
	})

	results, err := client.SubmitBatch(t.Context(), []remote.Upload{
		{DocumentID: "d-a", FileName: "a.pdf", Content: []byte("a")},
		{DocumentID: "d-b", FileName: "b.pdf", Content: []byte("b")},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if results[0].RemoteID != "r-a" || results[0].Err != nil || results[0].DocumentID != "d-a" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if remote.RejectionReason(results[1].Err) != "corrupted file" {
		t.Fatalf("unexpected second result %+v", results[1])
	}
}

func TestPollStatusParsesTokens(t *testing.T) {
	cases := []struct {
		body    string
		state   remote.State
		message string
	}{
		{`"Pendente"`, remote.StatePending, ""},
		{`"Processando"`, remote.StateProcessing, ""},
		{`Concluido`, remote.StateCompleted, ""},
		{`{"status":"Erro","errorMessage":"layout não suportado"}`, remote.StateError, "layout não suportado"},
		{`"Error"`, remote.StateError, "remote processing failed"},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			_, client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != statusPath+"r-1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.body))
			})
			got, err := client.PollStatus(t.Context(), "r-1")
			if err != nil {
				t.Fatalf("PollStatus: %v", err)
			}
			if got.State != tc.state || got.Message != tc.message {
				t.Fatalf("unexpected status %+v", got)
			}
		})
	}
}

func TestPollStatusUnknownToken(t *testing.T) {
	_, client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"Arquivado"`))
	})
	if _, err := client.PollStatus(t.Context(), "r-1"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}

func TestFetchExportUsesFirstArrayElement(t *testing.T) {
	_, client := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"codigo":"1.01","valor":"1.234,56"},{"codigo":"2.01"}]`))
	})
	export, err := client.FetchExport(t.Context(), "r-1")
	if err != nil {
		t.Fatalf("FetchExport: %v", err)
	}
	if string(export.Fields["codigo"]) != `"1.01"` || export.RemoteID != "r-1" {
		t.Fatalf("unexpected export %+v", export)
	}
}

func TestTokenFailureIsTransientOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.PollStatus(t.Context(), "r-1")
	if !remote.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
