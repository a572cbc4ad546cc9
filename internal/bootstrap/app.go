package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/exports"
	"docrecon-backend/internal/queue"
	"docrecon-backend/internal/remote"
	"docrecon-backend/internal/remote/itera"
	"docrecon-backend/internal/services/health"
	"docrecon-backend/internal/shared/config"
	"docrecon-backend/internal/shared/lock"
	"docrecon-backend/internal/shared/server"
	"docrecon-backend/internal/shared/storage/db"
	"docrecon-backend/internal/shared/storage/object"
	localstore "docrecon-backend/internal/shared/storage/object/local"
	s3store "docrecon-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies and the wired router.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	Queue            queue.Client
	Locker           lock.Locker
	Remote           remote.Client
	DocumentsRepo    documents.Repo
	BatchesRepo      batches.Repo
	DocumentsService *documents.Service
	Reconciler       *batches.Reconciler
	Runner           *batches.Runner
	Coordinator      *batches.Coordinator
	Aggregator       *exports.Aggregator
	Health           *health.Service
	DocumentsHandler *documents.Handler
	BatchesHandler   *batches.Handler
	ExportsHandler   *exports.Handler
}

// Build prepares dependencies for the API process.
func Build(cfg config.Config) (*App, error) {
	return build(cfg, db.DefaultServerOptions())
}

// BuildWorker prepares dependencies for the reconcile worker.
func BuildWorker(cfg config.Config) (*App, error) {
	return build(cfg, db.DefaultWorkerOptions())
}

func build(cfg config.Config, dbOpts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	locker, err := buildLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	remoteClient, err := buildRemote(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Locker: locker,
		Remote: remoteClient,
		Health: health.NewService(),
	}
	buildServices(app)
	registerHealthChecks(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Health:          app.Health,
		DocumentHandler: app.DocumentsHandler,
		BatchHandler:    app.BatchesHandler,
		ExportHandler:   app.ExportsHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(opts))
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.ReconcileQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.ReconcileQueueURL)
}

func buildLocker(ctx context.Context, cfg config.Config) (lock.Locker, error) {
	if strings.TrimSpace(cfg.RedisAddress) == "" {
		return lock.NewLocal(), nil
	}
	locker, err := lock.NewRedis(ctx, cfg.RedisAddress)
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: redis unavailable; using in-process locks: %v", err)
			return lock.NewLocal(), nil
		}
		return nil, err
	}
	return locker, nil
}

func buildRemote(cfg config.Config) (remote.Client, error) {
	client, err := itera.NewClient(itera.Options{
		BaseURL:  cfg.RemoteBaseURL,
		TokenTTL: cfg.RemoteTokenTTL,
		Timeout:  cfg.RemoteTimeout,
	})
	if err != nil {
		return nil, err
	}
	return remote.WithRetry(client, 0), nil
}

func buildServices(app *App) {
	var docRepo documents.Repo
	var batchRepo batches.Repo
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		batchRepo = &batches.PGRepo{DB: app.DB}
	} else {
		docRepo = documents.NewMemoryRepo()
		batchRepo = batches.NewMemoryRepo()
	}

	docSvc := &documents.Service{
		Store:      app.Store,
		Repo:       docRepo,
		RequirePDF: true,
	}
	reconciler := &batches.Reconciler{
		Docs:        docRepo,
		Batches:     batchRepo,
		Remote:      app.Remote,
		Locker:      app.Locker,
		Events:      batches.LogEvents{},
		PollWorkers: app.Config.PollWorkers,
	}
	runner := batches.NewRunner(reconciler)
	coordinator := &batches.Coordinator{
		Docs:          docSvc,
		Batches:       batchRepo,
		Remote:        app.Remote,
		Runner:        runner,
		UploadWorkers: app.Config.UploadWorkers,
		Defaults: batches.ReconcileOptions{
			PollInterval:    app.Config.PollInterval,
			Timeout:         app.Config.BatchTimeout,
			MaxPollFailures: app.Config.MaxPollFailures,
		},
	}
	aggregator := &exports.Aggregator{
		Docs:    docRepo,
		Batches: batchRepo,
		Remote:  app.Remote,
	}

	app.DocumentsRepo = docRepo
	app.BatchesRepo = batchRepo
	app.DocumentsService = docSvc
	app.Reconciler = reconciler
	app.Runner = runner
	app.Coordinator = coordinator
	app.Aggregator = aggregator
	app.DocumentsHandler = documents.NewHandler(docSvc)
	app.BatchesHandler = &batches.Handler{
		Coordinator: coordinator,
		Runner:      runner,
		Batches:     batchRepo,
		Docs:        docRepo,
		Queue:       app.Queue,
	}
	app.ExportsHandler = &exports.Handler{Aggregator: aggregator}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func registerHealthChecks(app *App) {
	if app.DB != nil {
		app.Health.Register("database", app.DB.PingContext)
	}
	if p, ok := app.Locker.(pinger); ok {
		app.Health.Register("redis", p.Ping)
	}
}

// Close releases pooled connections.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if r, ok := a.Locker.(*lock.Redis); ok {
		_ = r.Close()
	}
}
