// Package main wires together the ingestion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcpPubsub "cloud.google.com/go/pubsub"
	gcpStorage "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/api"
	"github.com/openconvocatoria/seace-ingest/internal/browser"
	"github.com/openconvocatoria/seace-ingest/internal/clock/system"
	"github.com/openconvocatoria/seace-ingest/internal/config"
	"github.com/openconvocatoria/seace-ingest/internal/export"
	"github.com/openconvocatoria/seace-ingest/internal/id/uuid"
	"github.com/openconvocatoria/seace-ingest/internal/logging"
	"github.com/openconvocatoria/seace-ingest/internal/metrics"
	"github.com/openconvocatoria/seace-ingest/internal/orchestrator"
	"github.com/openconvocatoria/seace-ingest/internal/probe"
	memorypublisher "github.com/openconvocatoria/seace-ingest/internal/publisher/memory"
	pubsubpublisher "github.com/openconvocatoria/seace-ingest/internal/publisher/pubsub"
	queuememory "github.com/openconvocatoria/seace-ingest/internal/queue/memory"
	"github.com/openconvocatoria/seace-ingest/internal/seace"
	"github.com/openconvocatoria/seace-ingest/internal/storage/gcs"
	memorystorage "github.com/openconvocatoria/seace-ingest/internal/storage/memory"
	"github.com/openconvocatoria/seace-ingest/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore := memorystorage.NewJobStore()
	recordStore, runLogStore, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	mirror, err := buildMirror(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("export mirror init failed", zap.Error(err))
	}
	sink, err := export.NewFileSink(cfg.Export.Dir, mirror, logger.Named("export"))
	if err != nil {
		logger.Fatal("export sink init failed", zap.Error(err))
	}

	session, err := browser.NewSession(browser.Config{
		PortalURL:         cfg.Portal.URL,
		UserAgent:         cfg.Portal.UserAgent,
		Headless:          cfg.Browser.Headless,
		NavigationTimeout: cfg.Browser.NavTimeout(),
		StepTimeout:       cfg.Browser.StepTimeout(),
		SettleDelay:       cfg.Browser.SettleDelay(),
	}, logger.Named("browser"))
	if err != nil {
		logger.Fatal("browser session init failed", zap.Error(err))
	}
	defer session.Close()

	prober := probe.New(probe.Config{
		UserAgent: cfg.Portal.UserAgent,
		Timeout:   15 * time.Second,
	}, logger.Named("probe"))

	clock := system.New()
	idGen := uuid.New()
	queue := queuememory.NewQueue(cfg.Ingest.QueueDepth)

	workerCfg := orchestrator.Config{
		PortalURL:      cfg.Portal.URL,
		ResultsTimeout: cfg.Browser.ResultsTimeout(),
		MaxPages:       cfg.Ingest.MaxPages,
		CompletedTopic: cfg.PubSub.CompletedTopic,
		FailedTopic:    cfg.PubSub.FailedTopic,
	}

	var workers []*orchestrator.Worker
	for i := 0; i < cfg.Ingest.Workers; i++ {
		workers = append(workers, orchestrator.New(
			queue,
			jobStore,
			recordStore,
			runLogStore,
			session,
			prober,
			sink,
			publisher,
			clock,
			idGen,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := orchestrator.NewDispatcher(queue, workers)

	apiServer := api.NewServer(jobStore, dispatch, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Ingest.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

// buildStores selects Postgres when a DSN is configured, otherwise the
// in-memory stores.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (seace.RecordStore, seace.RunLogStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("no database DSN configured, using in-memory stores")
		return memorystorage.NewRecordStore(), memorystorage.NewRunLogStore(), func() {}, nil
	}
	processStore, err := postgres.NewProcessStore(ctx, postgres.ProcessStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.ProcessTable,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("process store: %w", err)
	}
	runLogStore, err := postgres.NewRunLogStore(ctx, postgres.ProcessStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.RunLogTable,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		processStore.Close()
		return nil, nil, nil, fmt.Errorf("run log store: %w", err)
	}
	closer := func() {
		processStore.Close()
		runLogStore.Close()
	}
	return processStore, runLogStore, closer, nil
}

// buildPublisher selects Pub/Sub when a project is configured, otherwise
// the in-memory publisher.
func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (seace.Publisher, error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("no pubsub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := gcpPubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return pubsubpublisher.New(client)
}

// buildMirror returns a GCS mirror when a bucket is configured, nil
// otherwise. Local export files are always written either way.
func buildMirror(ctx context.Context, cfg config.Config, logger *zap.Logger) (seace.BlobStore, error) {
	if cfg.Export.GCSBucket == "" {
		logger.Info("no export bucket configured, artifacts stay local")
		return nil, nil
	}
	client, err := gcpStorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return gcs.New(client, gcs.Config{Bucket: cfg.Export.GCSBucket, Prefix: cfg.Export.GCSPrefix})
}
