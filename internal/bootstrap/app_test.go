package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/shared/config"
	"docrecon-backend/internal/shared/lock"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:             "dev",
		LocalStoreDir:   t.TempDir(),
		RemoteBaseURL:   "http://127.0.0.1:1",
		RemoteTokenTTL:  time.Minute,
		RemoteTimeout:   time.Second,
		UploadWorkers:   2,
		PollWorkers:     2,
		PollInterval:    time.Second,
		BatchTimeout:    time.Minute,
		MaxPollFailures: 3,
	}
}

func TestBuildDevUsesInMemoryDependencies(t *testing.T) {
	app, err := Build(devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if _, ok := app.DocumentsRepo.(*documents.MemoryRepo); !ok {
		t.Fatalf("expected memory document repo, got %T", app.DocumentsRepo)
	}
	if _, ok := app.BatchesRepo.(*batches.MemoryRepo); !ok {
		t.Fatalf("expected memory batch repo, got %T", app.BatchesRepo)
	}
	if _, ok := app.Locker.(*lock.Local); !ok {
		t.Fatalf("expected local locker, got %T", app.Locker)
	}
	if app.Queue != nil {
		t.Fatalf("expected no queue without RECONCILE_QUEUE_URL")
	}
	if app.Coordinator.Runner != app.Runner || app.Reconciler.Remote == nil {
		t.Fatalf("services are not wired together")
	}
	if app.Coordinator.Defaults.MaxPollFailures != 3 {
		t.Fatalf("expected defaults from config, got %+v", app.Coordinator.Defaults)
	}

	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected healthy router, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/batches/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected batch routes mounted, got %d", resp.Code)
	}
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error without DATABASE_URL in production")
	}
}

func TestBuildRejectsMissingRemote(t *testing.T) {
	cfg := devConfig(t)
	cfg.RemoteBaseURL = ""
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error without REMOTE_BASE_URL")
	}
}

func TestBuildRequiresBucketForS3(t *testing.T) {
	cfg := devConfig(t)
	cfg.ObjectStoreType = "s3"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error without S3_BUCKET")
	}
}
