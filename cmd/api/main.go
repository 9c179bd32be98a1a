package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"document-processor/internal/app"
	"document-processor/internal/cache"
	"document-processor/internal/config"
	httphandler "document-processor/internal/http"
	"document-processor/internal/ingest"
	"document-processor/internal/logging"
	"document-processor/internal/middleware"
	"document-processor/internal/repo"
	"document-processor/internal/services/documents"
	"document-processor/internal/services/pipeline"
	"document-processor/internal/services/prompt"
)

func main() {
	// Parse command line flags
	var (
		port        = flag.String("port", "", "Port to run the server on (overrides PORT)")
		migrateOnly = flag.Bool("migrate", false, "Apply database migrations and exit")
		ingestDir   = flag.String("ingest", "", "Process every PDF in a directory, store the records and exit")
		summarizeIn = flag.Bool("summarize", false, "With -ingest, summarize instead of only extracting")
		workers     = flag.Int("workers", ingest.DefaultWorkers, "Concurrent documents for -ingest")
	)
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if *port != "" {
		cfg.Server.Port = *port
	}

	// Create context cancelled on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	// Initialize repository
	deps := map[string]httphandler.Pinger{}
	var repository repo.Repository = repo.NewMemoryRepository()
	if cfg.Database.URL != "" {
		if err := repo.Migrate(ctx, cfg.Database.URL); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
		if *migrateOnly {
			return
		}
		pg, err := repo.NewPostgresRepository(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pg.Close()
		repository = pg
		deps["postgres"] = pg
	} else {
		if *migrateOnly {
			log.Fatal().Msg("DATABASE_URL is required with -migrate")
		}
		log.Warn().Msg("DATABASE_URL not set, document records are kept in memory")
	}

	// Initialize Redis cache
	var (
		summaries pipeline.SummaryCache
		limiter   middleware.Limiter = middleware.NewSimpleRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitPerMinute)
	)
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisCache.Close()
		summaries = cache.NewSummaryStore(redisCache, cfg.Redis.SummaryCacheTTL)
		limiter = middleware.NewSharedRateLimiter(redisCache, cfg.Server.RateLimitPerMinute, cache.RateLimitWindow, cache.RateLimitKey)
		deps["redis"] = redisCache
	} else {
		log.Warn().Msg("REDIS_ADDR not set, summary cache disabled and rate limits are per instance")
	}

	// Initialize services
	p, err := app.NewPipeline(cfg, summaries)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	documentService := documents.NewService(p.Controller, repository, p.Resolver)

	// If ingest flag is set, process the directory and exit
	if *ingestDir != "" {
		summary, err := ingest.NewLoader(documentService, *workers, *summarizeIn).LoadFromDirectory(ctx, *ingestDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to ingest directory")
		}
		log.Info().Int("processed", summary.Processed).Int("failed", summary.Failed).Msg("Ingestion finished")
		return
	}

	// Keep the configured prompt warm
	if cfg.Prompt.RefreshInterval > 0 && cfg.Prompt.RemoteEnabled() {
		refresher := prompt.NewRefresher(p.Resolver, prompt.Target{Name: cfg.Prompt.Name, Version: cfg.Prompt.Version})
		refresher.Start(ctx, cfg.Prompt.RefreshInterval)
		defer refresher.Stop()
	}

	// Initialize HTTP router
	router := httphandler.NewRouter(httphandler.RouterConfig{
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Limiter:        limiter,
	})
	router.RegisterHealthRoutes(deps)
	router.RegisterDocumentRoutes(httphandler.NewDocumentHandler(documentService, cfg.Server.MaxUploadBytes()))

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("prompt", cfg.Prompt.Name).
			Str("model", cfg.OpenAI.Model).
			Bool("langfuse", cfg.Prompt.RemoteEnabled()).
			Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown server gracefully
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
