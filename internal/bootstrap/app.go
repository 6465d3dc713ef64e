package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/llm"
	"stackdocs-backend/internal/llm/gemini"
	"stackdocs-backend/internal/llm/openai"
	"stackdocs-backend/internal/ocr"
	"stackdocs-backend/internal/pipeline"
	"stackdocs-backend/internal/queue"
	"stackdocs-backend/internal/services/health"
	"stackdocs-backend/internal/shared/auth"
	"stackdocs-backend/internal/shared/config"
	"stackdocs-backend/internal/shared/server"
	"stackdocs-backend/internal/shared/storage/db"
	"stackdocs-backend/internal/shared/storage/object"
	localstore "stackdocs-backend/internal/shared/storage/object/local"
	s3store "stackdocs-backend/internal/shared/storage/object/s3"
	"stackdocs-backend/internal/shared/telemetry"
	"stackdocs-backend/internal/usage"
	"stackdocs-backend/internal/workerproc"
	"stackdocs-backend/internal/workflows"
)

// App holds every constructed dependency. Build creates each client once;
// nothing is initialised lazily.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.ObjectStore
	Queue       queue.Client
	Documents   documents.DocumentsRepo
	Extractions extractions.Repo
	OCR         ocr.Repo
	Sessions    agent.SessionStore
	Usage       *usage.Service
	LLM         llm.Client
	Processor   *pipeline.Processor

	closers []func()
}

// Close releases queues, clients and the database in reverse build order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Build constructs the application from cfg.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()
	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		app.DB = sqlDB
		if !db.IsLambdaRuntime() {
			app.onClose(func() { _ = sqlDB.Close() })
		}
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	if err := buildServices(ctx, app); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db_disabled", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	profile := db.RuntimeProfile()
	opts := db.OptionsFromEnv(db.DefaultOptions(profile))
	if profile == db.ProfileLambda {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db_disabled", map[string]any{"reason": "connect failed", "error": err.Error()})
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
		return s3store.New(ctx, s3store.Options{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			KMSKeyID: cfg.SSEKMSKeyID,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLLM(ctx context.Context, cfg config.Config) (llm.Client, func(), error) {
	switch cfg.LLMProvider {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			if cfg.IsDevLike() {
				telemetry.Warn("bootstrap.llm_placeholder", map[string]any{"reason": "OPENAI_API_KEY empty"})
				return llm.PlaceholderClient{}, nil, nil
			}
			return nil, nil, fmt.Errorf("OPENAI_API_KEY is required for LLM_PROVIDER=openai")
		}
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
		if err != nil {
			return nil, nil, err
		}
		return llm.WithBreaker(client, "llm-openai"), nil, nil
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, nil, err
		}
		return llm.WithBreaker(client, "llm-gemini"), func() { _ = client.Close() }, nil
	case "", "placeholder":
		return llm.PlaceholderClient{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func buildOCRProvider(cfg config.Config) (ocr.Provider, error) {
	switch cfg.OCRProvider {
	case "mistral":
		if strings.TrimSpace(cfg.MistralAPIKey) == "" {
			if cfg.IsDevLike() {
				telemetry.Warn("bootstrap.ocr_local", map[string]any{"reason": "MISTRAL_API_KEY empty"})
				return ocr.LocalPDFProvider{}, nil
			}
			return nil, fmt.Errorf("MISTRAL_API_KEY is required for OCR_PROVIDER=mistral")
		}
		return ocr.NewMistralClient(cfg.MistralAPIKey, cfg.MistralBaseURL, cfg.OCRModel, cfg.OCRTimeout), nil
	case "", "local":
		return ocr.LocalPDFProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown OCR_PROVIDER %q", cfg.OCRProvider)
	}
}

// buildSessions picks the session store: explicit AGENT_SESSION_STORE wins,
// otherwise Postgres when a database is configured.
func buildSessions(ctx context.Context, app *App) (agent.SessionStore, error) {
	kind := app.Config.SessionStore
	if kind == "" {
		kind = "memory"
		if app.DB != nil {
			kind = "postgres"
		}
	}
	switch kind {
	case "redis":
		client, err := agent.NewRedisClient(ctx, app.Config.RedisAddr, app.Config.RedisPassword)
		if err != nil {
			return nil, err
		}
		app.onClose(func() { _ = client.Close() })
		return &agent.RedisSessionStore{Client: client}, nil
	case "postgres":
		if app.DB == nil {
			return nil, errors.New("AGENT_SESSION_STORE=postgres requires DATABASE_URL")
		}
		return &agent.PGSessionStore{DB: app.DB}, nil
	case "memory":
		return agent.NewMemorySessionStore(), nil
	default:
		return nil, fmt.Errorf("unknown AGENT_SESSION_STORE %q", kind)
	}
}

// buildQueue connects the pipeline queue. The memory backend runs the
// processor in-process; the others are drained by cmd/worker.
func buildQueue(ctx context.Context, app *App) (queue.Client, error) {
	cfg := app.Config
	switch cfg.QueueBackend {
	case "sqs":
		if strings.TrimSpace(cfg.SQSQueueURL) == "" {
			return nil, errors.New("QUEUE_BACKEND=sqs requires SQS_QUEUE_URL")
		}
		return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
	case "asynq":
		client := queue.NewAsynqClient(cfg.RedisAddr, cfg.RedisPassword)
		app.onClose(func() { _ = client.Close() })
		return client, nil
	default:
		processor := app.Processor
		mem := queue.NewMemoryQueue(cfg.WorkerConcurrency, 0, func(ctx context.Context, body string) error {
			return workerproc.HandleMessage(ctx, processor, body)
		})
		app.onClose(mem.Close)
		return mem, nil
	}
}

func buildServices(ctx context.Context, app *App) error {
	cfg := app.Config

	if app.DB != nil {
		app.Documents = &documents.PGRepo{DB: app.DB}
		app.Extractions = &extractions.PGRepo{DB: app.DB}
		app.OCR = &ocr.PGRepo{DB: app.DB}
	} else {
		app.Documents = documents.NewMemoryRepo()
		app.Extractions = extractions.NewMemoryRepo()
		app.OCR = ocr.NewMemoryRepo()
	}

	defaults := usage.Defaults{Tier: cfg.UsageDefaultTier, Limit: cfg.UsageDefaultLimit}
	if app.DB != nil {
		app.Usage = usage.NewPostgresService(app.DB, defaults)
	} else {
		app.Usage = usage.NewService(defaults)
	}

	sessions, err := buildSessions(ctx, app)
	if err != nil {
		return err
	}
	app.Sessions = sessions

	llmClient, closeLLM, err := buildLLM(ctx, cfg)
	if err != nil {
		return err
	}
	if closeLLM != nil {
		app.onClose(closeLLM)
	}
	app.LLM = llmClient

	provider, err := buildOCRProvider(cfg)
	if err != nil {
		return err
	}

	deps := workflows.Deps{
		Runner:      &agent.Runner{LLM: llmClient},
		Sessions:    sessions,
		Documents:   app.Documents,
		Extractions: app.Extractions,
		OCR:         app.OCR,
		SessionTTL:  cfg.SessionTTL,
	}
	extractor := workflows.NewExtractor(deps)
	metadata := workflows.NewMetadataGenerator(deps)

	app.Processor = &pipeline.Processor{
		Documents: app.Documents,
		Store:     app.Store,
		Provider:  provider,
		OCR:       app.OCR,
		Usage:     app.Usage,
		Metadata:  metadata,
	}
	queueClient, err := buildQueue(ctx, app)
	if err != nil {
		return err
	}
	app.Queue = queueClient
	app.Processor.Queue = queueClient

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.Env == "production")
	if err != nil {
		return err
	}

	docSvc := &documents.Service{
		Store:     app.Store,
		Repo:      app.Documents,
		Usage:     app.Usage,
		Scheduler: app.Processor,
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Verifier:    verifier,
		Health:      health.NewService(cfg.AppName, cfg.Version, cfg.Env, app.DB),
		Documents:   documents.NewHandler(docSvc),
		Extractions: extractions.NewHandler(&extractions.Service{Repo: app.Extractions}),
		Usage:       usage.NewHandler(app.Usage),
		Workflows:   workflows.NewHandler(extractor, metadata, llmClient.Model()),
	})
	return nil
}
