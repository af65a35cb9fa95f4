package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/docflow/internal/api/handlers"
	"github.com/markdave123-py/docflow/internal/config"
	"github.com/markdave123-py/docflow/internal/core"
	db "github.com/markdave123-py/docflow/internal/core/database"
	"github.com/markdave123-py/docflow/internal/core/ingestion_engine"
	"github.com/markdave123-py/docflow/internal/core/llm"
	objectclient "github.com/markdave123-py/docflow/internal/core/object-client"
	"github.com/markdave123-py/docflow/internal/services"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	DBClient  *db.DatabaseClient
	Blobs     core.ObjectClient
	Executor  *ingestion_engine.Executor
	Documents *services.DocumentService
	Server    *Server

	logger  *slog.Logger
	closers []func() error
}

// IngestConfigFrom maps the service configuration onto the pipeline settings.
func IngestConfigFrom(cfg *config.Config) *ingestion_engine.IngestConfig {
	return &ingestion_engine.IngestConfig{
		Workers:        cfg.WorkerCount,
		QueueSize:      cfg.QueueSize,
		EnqueueTimeout: cfg.EnqueueTimeout,
		TaskTimeout:    cfg.TaskTimeout,
		Retry: ingestion_engine.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		BatchSize:        cfg.EmbedBatchSize,
		EmbedConcurrency: cfg.EmbedConcurrency,
		AutoConfirm:      cfg.AutoConfirm,
	}
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{logger: logger.With("component", "app")}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	a.logger.Info("Database initialized and ready.")

	vectors := db.NewVectorStore(dbClient.DB())

	blobs, err := objectclient.New(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Blobs = blobs
	a.logger.Info("Object client initialized and ready.", "backend", cfg.BlobBackend)

	embedder, closeEmbedder, err := llm.NewEmbeddingProvider(appCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	a.closers = append(a.closers, closeEmbedder)

	generator, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}
	a.closers = append(a.closers, generator.Close)

	ingCfg := IngestConfigFrom(cfg)
	executor, err := ingestion_engine.NewExecutor(ingCfg, logger)
	if err != nil {
		return nil, err
	}
	executor.Register(ingestion_engine.NewOCRTask(dbClient, blobs, ingestion_engine.NewCompositeExtractor(cfg.UseReadability, logger), executor, cfg.AutoConfirm, logger))
	executor.Register(ingestion_engine.NewEmbeddingTask(dbClient, vectors, embedder, ingCfg, logger))
	a.Executor = executor

	a.Documents = services.NewDocumentService(dbClient, blobs, vectors, executor, logger)
	retrieval := services.NewRetrievalService(embedder, vectors, cfg.RetrievalTopK, logger)
	chat := services.NewChatService(retrieval, generator)

	router := NewRouter(RouterDeps{
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins,
		Documents:      handlers.NewDocumentHandler(a.Documents, logger),
		Chat:           handlers.NewChatHandler(chat, logger),
		Health:         dbClient.Ping,
		Logger:         logger,
	})
	a.Server = NewServer(cfg.Port, router, logger)

	ok = true
	return a, nil
}

// Run starts the executor, resumes interrupted documents in the background
// and serves HTTP until ctx is cancelled or the server fails. It then drains
// in order.
func (a *App) Run(ctx context.Context) error {
	a.Executor.Start(ctx)

	// A large backlog waits for queue slots, so it must not hold up serving.
	go func() {
		resumed, err := a.Documents.ResumeInFlight(ctx)
		if err != nil {
			a.logger.Error("could not resume interrupted documents", "resumed", resumed, "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Server.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			runErr = fmt.Errorf("http server: %w", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Server.Shutdown(shutdownCtx), a.Executor.Shutdown(shutdownCtx))
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
