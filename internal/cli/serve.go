package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memoria-ai/memoria/internal/api/handlers"
	"github.com/memoria-ai/memoria/internal/chunker"
	"github.com/memoria-ai/memoria/internal/condense"
	"github.com/memoria-ai/memoria/internal/config"
	"github.com/memoria-ai/memoria/internal/database"
	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/embedding"
	"github.com/memoria-ai/memoria/internal/fusion"
	"github.com/memoria-ai/memoria/internal/host"
	"github.com/memoria-ai/memoria/internal/ingest"
	"github.com/memoria-ai/memoria/internal/jobs"
	"github.com/memoria-ai/memoria/internal/query"
	"github.com/memoria-ai/memoria/internal/registry"
	"github.com/memoria-ai/memoria/internal/repository"
	"github.com/memoria-ai/memoria/internal/rerank"
	"github.com/memoria-ai/memoria/internal/scheduler"
	"github.com/memoria-ai/memoria/internal/server"
	"github.com/memoria-ai/memoria/internal/storage"
	"github.com/memoria-ai/memoria/internal/telemetry"
	"github.com/memoria-ai/memoria/internal/vector"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory engine API server",
		Long:  "Start the memoria API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: cfg.SentrySampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	settingsRepo := repository.NewSettingsRepository(pool)
	checkpointRepo := repository.NewCheckpointRepository(pool)
	condensationRepo := repository.NewCondensationRepository(pool)
	retrievalLogRepo := repository.NewRetrievalLogRepository(pool)

	var store vector.Store
	if cfg.HasExternalVectorStore() {
		store = vector.NewHTTPStore(vector.HTTPConfig{
			BaseURL: cfg.VectorEndpoint,
			APIKey:  cfg.VectorAPIKey,
		})
		log.Printf("using external vector backend at %s", cfg.VectorEndpoint)
	} else {
		store = repository.NewPgVectorStore(pool)
		log.Println("using pgvector store")
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("MEMORIA_OPENAI_API_KEY is required")
	}
	embedder, err := embedding.NewClient(embedding.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}

	var reranker rerank.Reranker
	if cfg.HasRerank() {
		reranker = rerank.NewClient(rerank.Config{
			Endpoint: cfg.RerankEndpoint,
			APIKey:   cfg.RerankAPIKey,
			Model:    cfg.RerankModel,
		})
		log.Printf("rerank enabled via %s", cfg.RerankEndpoint)
	}

	reg, err := registry.NewService(ctx, settingsRepo, store)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base registry: %w", err)
	}

	var archive ingest.Archiver
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		archive = s3Client
	}

	ingestor := ingest.New(ingest.Config{
		Registry:    reg,
		Store:       store,
		Embedder:    embedder,
		Checkpoints: checkpointRepo,
		Archive:     archive,
		ChunkOpts: chunker.Options{
			ChunkSize: cfg.ChunkSize,
			Overlap:   cfg.ChunkOverlap,
		},
		BatchSize: cfg.BatchSize,
	})
	jobManager := ingest.NewManager(ingestor)

	queries := query.New(reg, store, embedder)
	scorer := fusion.New(reranker, fusion.Config{
		Alpha:            cfg.FusionAlpha,
		TopN:             cfg.FusionTopN,
		LorebookWeight:   cfg.LorebookWeight,
		ManualWeight:     cfg.ManualWeight,
		ChatRecencySlope: cfg.ChatRecencySlope,
	})

	groups := make([]scheduler.GroupConfig, 0, len(cfg.PrioritySources))
	for _, s := range cfg.PrioritySources {
		source := domain.Source(s)
		if !domain.IsValidSource(source) {
			return fmt.Errorf("invalid priority source %q", s)
		}
		groups = append(groups, scheduler.GroupConfig{Source: source, Limit: cfg.PriorityLimit})
	}
	sched := scheduler.New(reg, queries, scorer, groups)

	sessions := condense.NewSessionLock()

	var provider host.MessageProvider
	if cfg.HasHost() {
		provider = host.NewHTTPClient(host.HTTPConfig{
			BaseURL: cfg.HostEndpoint,
			Token:   cfg.HostToken,
		})
		log.Printf("host bridge at %s", cfg.HostEndpoint)
	} else {
		provider = &noHostProvider{}
	}
	runner := condense.New(provider, ingestor, condensationRepo, sessions, condense.Config{
		Enabled:               cfg.AutoCondense,
		BucketSize:            cfg.CondenseBucketSize,
		PreserveFloors:        cfg.PreserveFloors,
		IndependentChatMemory: cfg.IndependentChatMemory,
	})

	pollInterval, err := time.ParseDuration(cfg.ResumePollInterval)
	if err != nil {
		return fmt.Errorf("invalid MEMORIA_RESUME_POLL_INTERVAL: %w", err)
	}
	resumeWorker := jobs.NewWorker(jobs.NewResumeWorker(checkpointRepo, ingestor), pollInterval)
	go resumeWorker.Start(ctx)
	log.Println("resume worker started")

	routerCfg := server.RouterConfig{
		ServiceToken:    cfg.ServiceToken,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		BasesHandler:    handlers.NewBasesHandler(reg),
		IngestHandler:   handlers.NewIngestHandler(ingestor, jobManager, checkpointRepo, sessions),
		QueryHandler:    handlers.NewQueryHandler(sched, sessions, retrievalLogRepo),
		CondenseHandler: handlers.NewCondenseHandler(runner, condensationRepo, sessions),
		LogsHandler:     handlers.NewLogsHandler(retrievalLogRepo),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	resumeWorker.Stop()

	// Flush any debounced registry save before exiting.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	if err := reg.Flush(flushCtx); err != nil {
		log.Printf("registry flush failed: %v", err)
	}
	cancelFlush()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// noHostProvider surfaces a clear error when condensation endpoints are used
// without a configured host bridge.
type noHostProvider struct{}

func (p *noHostProvider) Messages(ctx context.Context, chatID string) ([]host.Message, error) {
	return nil, fmt.Errorf("host bridge not configured: MEMORIA_HOST_ENDPOINT required")
}

func (p *noHostProvider) CharacterID(ctx context.Context, chatID string) (string, error) {
	return "", fmt.Errorf("host bridge not configured: MEMORIA_HOST_ENDPOINT required")
}
