package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/finance-records-api/internal/api"
	"github.com/dvloznov/finance-records-api/internal/api/handlers"
	"github.com/dvloznov/finance-records-api/internal/app"
	"github.com/dvloznov/finance-records-api/internal/config"
	"github.com/dvloznov/finance-records-api/internal/jobs/inmemory"
	"github.com/dvloznov/finance-records-api/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config overlay (or set CONFIG_FILE env)")
		envFile    = flag.String("env", ".env", "dotenv file, skipped when missing")
		port       = flag.Int("port", 0, "HTTP server port, overrides config")
		warm       = flag.Bool("warm", true, "refresh every dataset at startup")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log, err = logger.Configure(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		log = logger.New()
		log.Fatal().Err(err).Msg("Invalid log settings")
	}

	ctx := context.Background()

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer svc.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.Worker.Workers, jobStore, log)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, app.RefreshHandler(svc.Loader, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	if *warm {
		if _, err := app.EnqueueAll(ctx, jobQueue, svc.Loader.Names()); err != nil {
			log.Warn().Err(err).Msg("Failed to schedule cache warm-up")
		}
	}

	// Initialize handlers
	handler := api.NewRouter(api.Handlers{
		Datasets: handlers.NewDatasetsHandler(svc.Loader, svc.Dates, svc.Cache, log),
		Tools:    handlers.NewToolsHandler(svc.Loader, svc.Engine, svc.Periods, log),
		Jobs:     handlers.NewJobsHandler(jobStore, log),
		Cache:    handlers.NewCacheHandler(jobQueue, log),
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", strconv.Itoa(cfg.Server.Port)).Msg("Starting API server")
		for name, file := range svc.Loader.Files() {
			log.Info().Str("dataset", string(name)).Str("file", file).Msg("Serving workbook")
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
