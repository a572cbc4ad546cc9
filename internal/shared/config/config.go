package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string
	DatabaseURL     string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	RemoteBaseURL  string
	RemoteTokenTTL time.Duration
	RemoteTimeout  time.Duration

	UploadWorkers   int
	PollWorkers     int
	PollInterval    time.Duration
	BatchTimeout    time.Duration
	MaxPollFailures int

	RedisAddress      string
	ReconcileQueueURL string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		RemoteBaseURL:  getEnv("REMOTE_BASE_URL", "http://localhost:5000"),
		RemoteTokenTTL: getDuration("REMOTE_TOKEN_TTL", 50*time.Minute),
		RemoteTimeout:  getDuration("REMOTE_TIMEOUT", 30*time.Second),

		UploadWorkers:   getInt("UPLOAD_WORKERS", 4),
		PollWorkers:     getInt("POLL_WORKERS", 8),
		PollInterval:    getDuration("POLL_INTERVAL", 5*time.Second),
		BatchTimeout:    getDuration("BATCH_TIMEOUT", 300*time.Second),
		MaxPollFailures: getInt("MAX_POLL_FAILURES", 3),

		RedisAddress:      getEnv("REDIS_ADDRESS", ""),
		ReconcileQueueURL: getEnv("RECONCILE_QUEUE_URL", ""),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q; using %d", key, raw, def)
		return def
	}
	return val
}

// getDuration accepts Go durations ("5s") or bare seconds ("5").
func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration %q; using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

// IsDevLike reports whether env permits in-memory fallbacks.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}
