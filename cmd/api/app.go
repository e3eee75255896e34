package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/testvault/portal/internal/api/handlers"
	"github.com/testvault/portal/internal/api/middleware"
	"github.com/testvault/portal/internal/classifier"
	"github.com/testvault/portal/internal/config"
	"github.com/testvault/portal/internal/embeddings"
	"github.com/testvault/portal/internal/googleai"
	"github.com/testvault/portal/internal/indexer"
	"github.com/testvault/portal/internal/jobs"
	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/observability"
	"github.com/testvault/portal/internal/openai"
	"github.com/testvault/portal/internal/registry"
	"github.com/testvault/portal/internal/repository"
	"github.com/testvault/portal/internal/search"
	"github.com/testvault/portal/internal/service"
	"github.com/testvault/portal/internal/usage"
	"github.com/testvault/portal/internal/workers"
)

// maxRequestBodyBytes caps request bodies; search queries are short.
const maxRequestBodyBytes = 1 << 20

// App holds the wired components and owns their shutdown order.
type App struct {
	server        *http.Server
	riverClient   *river.Client[pgx.Tx]
	meterProvider observability.MeterProviderShutdown
	indexer       *indexer.Indexer
}

// newEmbeddingClient selects the embedding provider from config. Returns
// (nil, nil) when embeddings are disabled.
func newEmbeddingClient(ctx context.Context, cfg *config.Config) (embeddings.Client, error) {
	switch cfg.EmbeddingProvider {
	case "":
		return nil, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("embedding provider %q requires OPENAI_API_KEY", cfg.EmbeddingProvider)
		}

		return embeddings.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
	case "google":
		if cfg.GoogleAIAPIKey == "" {
			return nil, fmt.Errorf("embedding provider %q requires GOOGLE_AI_API_KEY", cfg.EmbeddingProvider)
		}

		return googleai.NewClient(ctx, cfg.GoogleAIAPIKey, cfg.EmbeddingDimensions,
			googleai.WithModel(cfg.EmbeddingModel))
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// NewApp wires repositories, services, the job queue and the HTTP server.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		meterProvider  observability.MeterProviderShutdown
		metricsHandler http.Handler
		searchMetrics  observability.SearchMetrics
		cacheMetrics   observability.CacheMetrics
	)

	if cfg.MetricsEnabled {
		provider, handler, meter, err := observability.NewMeterProvider("")
		if err != nil {
			return nil, fmt.Errorf("set up metrics: %w", err)
		}

		meterProvider = provider
		metricsHandler = handler

		if searchMetrics, err = observability.NewSearchMetrics(meter); err != nil {
			return nil, fmt.Errorf("create search metrics: %w", err)
		}

		if cacheMetrics, err = observability.NewCacheMetrics(meter); err != nil {
			return nil, fmt.Errorf("create cache metrics: %w", err)
		}
	} else {
		slog.Info("metrics disabled (METRICS_ENABLED=false)")
	}

	entitiesRepo := repository.NewEntitiesRepository(db)
	lookupRepo := repository.NewLookupRepository(db)
	navigationRepo := repository.NewNavigationTargetsRepository(db)
	cacheRepo := repository.NewSearchCacheRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	usageRepo := repository.NewUsageLogRepository(db)

	reg := registry.New(registry.Params{
		NavigationSource: navigationRepo,
		LookupSource:     lookupRepo,
		TTL:              cfg.RegistryTTL,
		MaxEntries:       cfg.RegistryCacheEntries,
		Metrics:          cacheMetrics,
	})

	settings := service.NewSettingsService(settingsRepo)

	completionClient := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithModel(cfg.ClassifierModel),
		openai.WithMaxTokens(cfg.ClassifyMaxTokens),
	)

	queryClassifier := classifier.New(classifier.Params{
		Client:          completionClient,
		Context:         reg,
		Cache:           cacheRepo,
		Metrics:         searchMetrics,
		CacheTTL:        settings.CacheTTL(ctx),
		MemCacheLen:     cfg.ClassifierCacheLen,
		Timeout:         cfg.ClassifyTimeout,
		PerMinute:       cfg.ClassifyPerMinute,
		GlobalPerSecond: cfg.LLMCallsPerSecond,
	})

	embeddingClient, err := newEmbeddingClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		semanticIndex search.SemanticIndex
		ix            *indexer.Indexer
	)

	if embeddingClient != nil {
		semanticIndex = search.NewVectorIndex(search.VectorIndexParams{
			Embedder:     embeddingClient,
			Searcher:     entitiesRepo,
			DefaultFloor: config.DefaultSimilarityFloor,
			Floor:        settings,
			Probes:       cfg.IvfflatProbes,
			Timeout:      cfg.VectorSearchTimeout,
		})

		ix = indexer.New(indexer.Params{
			Entities:     entitiesRepo,
			Embedder:     embeddingClient,
			PageSize:     cfg.IndexPageSize,
			SubBatchSize: cfg.IndexSubBatchSize,
		})

		slog.Info("semantic search enabled",
			"provider", cfg.EmbeddingProvider, "model", embeddingClient.Model())
	} else {
		slog.Info("semantic search disabled (EMBEDDING_PROVIDER empty)")
	}

	filterEngine := search.NewFilterEngine(entitiesRepo, reg, config.DefaultMaxFilterResults).
		WithLimitSource(settings)

	searchService := search.NewService(search.ServiceParams{
		Classifier: queryClassifier,
		Filters:    filterEngine,
		Vectors:    semanticIndex,
		Navigation: reg,
		Usage:      usage.NewLogger(usageRepo),
		Settings:   settings,
		Metrics:    searchMetrics,
	})

	var (
		riverClient *river.Client[pgx.Tx]
		jobInserter jobs.JobInserter
	)

	if cfg.RiverEnabled && embeddingClient != nil {
		riverClient, err = initRiver(ctx, db, cfg, entitiesRepo, embeddingClient)
		if err != nil {
			return nil, fmt.Errorf("initialize job queue: %w", err)
		}

		jobInserter = jobs.NewRiverJobInserter(riverClient)
		slog.Info("embedding job queue enabled",
			"workers", cfg.RiverWorkers, "max_retries", cfg.RiverMaxRetries)
	}

	server := newHTTPServer(cfg, httpDeps{
		search:    searchService,
		index:     ix,
		inserter:  jobInserter,
		analytics: usageRepo,
		settings:  settings,
		metrics:   metricsHandler,
	})

	return &App{
		server:        server,
		riverClient:   riverClient,
		meterProvider: meterProvider,
		indexer:       ix,
	}, nil
}

// httpDeps is what the HTTP layer needs from the rest of the app.
type httpDeps struct {
	search    handlers.SearchService
	index     *indexer.Indexer
	inserter  jobs.JobInserter
	analytics handlers.AnalyticsSource
	settings  handlers.SettingsService
	metrics   http.Handler
}

func newHTTPServer(cfg *config.Config, deps httpDeps) *http.Server {
	searchHandler := handlers.NewSearchHandler(deps.search)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.analytics)
	settingsHandler := handlers.NewSettingsHandler(deps.settings)
	healthHandler := handlers.NewHealthHandler()

	publicMux := http.NewServeMux()
	publicMux.HandleFunc("GET /health", healthHandler.Check)

	if deps.metrics != nil {
		publicMux.Handle("GET /metrics", deps.metrics)
	}

	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /v1/search", searchHandler.Search)
	protectedMux.HandleFunc("GET /v1/analytics/search", analyticsHandler.Search)
	protectedMux.HandleFunc("GET /v1/settings", settingsHandler.Get)
	protectedMux.HandleFunc("PUT /v1/settings", settingsHandler.Update)

	if deps.index != nil {
		indexHandler := handlers.NewIndexHandler(deps.index, deps.inserter)
		protectedMux.HandleFunc("POST /v1/index/rebuild", indexHandler.Trigger)
		protectedMux.HandleFunc("GET /v1/index/status", indexHandler.Status)
		protectedMux.HandleFunc("POST /v1/index/entities/{kind}/{id}", indexHandler.Reembed)
	}

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mainMux := http.NewServeMux()
	mainMux.Handle("/v1/", protectedHandler)
	mainMux.Handle("/", publicMux)

	var handler http.Handler = mainMux
	handler = middleware.Logging(handler)
	handler = middleware.MaxBody(maxRequestBodyBytes)(handler)
	handler = middleware.Requester(handler)
	handler = middleware.RequestID(handler)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// initRiver creates, configures and starts the embedding job queue.
func initRiver(
	ctx context.Context,
	db *pgxpool.Pool,
	cfg *config.Config,
	entitiesRepo *repository.EntitiesRepository,
	embeddingClient embeddings.Client,
) (*river.Client[pgx.Tx], error) {
	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewEntityEmbeddingWorker(entitiesRepo, embeddingClient))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			jobs.EmbeddingsQueueName: {MaxWorkers: cfg.RiverWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{},
		MaxAttempts:  cfg.RiverMaxRetries,
	})
	if err != nil {
		return nil, err
	}

	if err := riverClient.Start(ctx); err != nil {
		return nil, err
	}

	return riverClient, nil
}

// Run serves HTTP until the listener fails or Shutdown is called.
func (a *App) Run() error {
	slog.Info("starting server", "addr", a.server.Addr)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown stops the HTTP server, then the job queue, then waits for an
// active indexing run, then flushes metrics.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if a.riverClient != nil {
		if err := a.riverClient.Stop(ctx); err != nil {
			slog.Error("job queue forced to shutdown", "error", err)
		}
	}

	if a.indexer != nil && a.indexer.Status().Status == models.IndexingRunning {
		slog.Info("waiting for active indexing run")
		a.indexer.Wait()
	}

	if a.meterProvider != nil {
		if err := a.meterProvider.Shutdown(ctx); err != nil {
			slog.Error("meter provider shutdown", "error", err)
		}
	}
}
