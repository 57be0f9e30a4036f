package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"docvault/docs"
	"docvault/internal/access"
	"docvault/internal/chain"
	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	handlers "docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/logger"
	"docvault/internal/otel"
	"docvault/internal/repository"
	"docvault/internal/repository/memory"
	"docvault/internal/repository/postgres"
	"docvault/internal/retrieval"
	"docvault/internal/service"
	"docvault/internal/storage"
	"docvault/internal/tasks"
)

const (
	shutdownTimeout = 15 * time.Second
	// multipart framing on top of the raw file
	bodyLimitSlack = 1 << 20
)

// @title docvault API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.Location())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	shutdownTracing, err := otel.Init(ctx, otel.SettingsFromEnv(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	db, repo, err := openMetadata(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.MetadataDriver).Msg("failed to initialize metadata store")
	}

	blobs, err := storage.NewMinIO(cfg.MinIO, cfg.Retrieval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	runner := tasks.NewRunner(logger.Component(log, "tasks"), tasks.Options{
		Concurrency: int64(cfg.Documents.TaskConcurrency),
	})
	taskFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_background_task_failures_total",
		Help: "Background tasks that returned an error.",
	}, []string{"task"})
	reg.MustRegister(taskFailures)
	go func() {
		for f := range runner.Failures() {
			taskFailures.WithLabelValues(f.Name).Inc()
		}
	}()

	retrievalMetrics, err := retrieval.NewMetrics(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register retrieval metrics")
	}
	resolver := retrieval.NewResolver(blobs, storage.NewLinkFetcher(&http.Client{}), runner, retrieval.Options{
		AttemptTimeout: cfg.Retrieval.AttemptTimeout,
		Metrics:        retrievalMetrics,
		Logger:         logger.Component(log, "retrieval"),
	})

	evaluator, err := access.NewEvaluator(cfg.Documents.PinHashCost)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PIN hash cost")
	}

	docSvc := service.NewDocumentService(service.Deps{
		Store: blobs,
		Repo:  repo,
		Chain: chain.NewManager(repo, chain.Options{
			MaxAttempts: cfg.Documents.ChainMaxAttempts,
			Logger:      logger.Component(log, "chain"),
		}),
		Retriever:     resolver,
		Access:        evaluator,
		Tasks:         runner,
		Logger:        logger.Component(log, "service"),
		MaxUploadSize: cfg.Documents.MaxUploadBytes(),
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register http metrics")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.Documents.MaxUploadBytes()) + bodyLimitSlack,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	handlers.RegisterRoutes(app, pinger, blobs, docSvc, middleware.Auth([]byte(cfg.JWTSecret)), log)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ":"+cfg.Port).Str("metadata_driver", cfg.MetadataDriver).Msg("server starting")
		serveErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// pending download counters and share-link revocations
	runner.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	if db != nil {
		_ = db.Close()
	}
	log.Info().Msg("server stopped")
}

// openMetadata builds the document repository for the configured driver.
// The returned *sql.DB is nil for the memory driver.
func openMetadata(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*sql.DB, repository.DocumentRepository, error) {
	switch cfg.MetadataDriver {
	case "memory":
		log.Warn().Msg("using in-memory metadata store, documents are lost on restart")
		return nil, memory.NewDocumentMemory(), nil
	case "postgres", "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, postgres.NewDocumentPostgres(db), nil
	}
	return nil, nil, errors.New("unknown METADATA_DRIVER " + cfg.MetadataDriver)
}
