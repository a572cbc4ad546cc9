package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("BATCH_TIMEOUT", "")
	t.Setenv("UPLOAD_WORKERS", "")
	t.Setenv("MAX_POLL_FAILURES", "")

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected dev env, got %s", cfg.Env)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected 5s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.BatchTimeout != 300*time.Second {
		t.Fatalf("expected 300s batch timeout, got %s", cfg.BatchTimeout)
	}
	if cfg.UploadWorkers != 4 || cfg.MaxPollFailures != 3 {
		t.Fatalf("unexpected worker defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "prod")
	t.Setenv("POLL_INTERVAL", "2")
	t.Setenv("BATCH_TIMEOUT", "90s")
	t.Setenv("UPLOAD_WORKERS", "not-a-number")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected production, got %s", cfg.Env)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.PollInterval)
	}
	if cfg.BatchTimeout != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.BatchTimeout)
	}
	if cfg.UploadWorkers != 4 {
		t.Fatalf("expected fallback to default workers, got %d", cfg.UploadWorkers)
	}
}

func TestLoadEnvFilesDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport REMOTE_BASE_URL=\"http://remote.test\"\nPORT=9999\n"
	missing := filepath.Join(dir, "missing.env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("REMOTE_BASE_URL", "")
	os.Unsetenv("REMOTE_BASE_URL")

	loadEnvFiles(missing, path)

	if got := os.Getenv("PORT"); got != "7070" {
		t.Fatalf("expected process env to win, got %s", got)
	}
	if got := os.Getenv("REMOTE_BASE_URL"); got != "http://remote.test" {
		t.Fatalf("expected value from file, got %s", got)
	}
}
