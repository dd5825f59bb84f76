package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Shoffly/dealer-visits/internal/api"
	"github.com/Shoffly/dealer-visits/internal/config"
	"github.com/Shoffly/dealer-visits/internal/database"
	"github.com/Shoffly/dealer-visits/internal/domain"
	"github.com/Shoffly/dealer-visits/internal/events"
	"github.com/Shoffly/dealer-visits/internal/export"
	"github.com/Shoffly/dealer-visits/internal/google"
	"github.com/Shoffly/dealer-visits/internal/logging"
	"github.com/Shoffly/dealer-visits/internal/metrics"
	"github.com/Shoffly/dealer-visits/internal/models"
	"github.com/Shoffly/dealer-visits/internal/notify"
	"github.com/Shoffly/dealer-visits/internal/repository"
	"github.com/Shoffly/dealer-visits/internal/service"
	"github.com/Shoffly/dealer-visits/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := buildSnapshotCache(redisClient, &logger)

	sheetsService := initGoogleSheets(ctx, cfg, &logger)

	var sheetsWorker *worker.SheetsWorker
	if sheetsService != nil {
		workerLog := stdlog.New(logger, "", 0)
		sheetsWorker = worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, workerLog)
		go sheetsWorker.Start(ctx)
	}

	notifier, err := notify.NewTelegramNotifierFromConfig(cfg.Telegram, &logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Telegram notifier init failed, continuing without notifications")
	}

	eventBus := events.NewEventBus()
	subscribeVisitEvents(eventBus, &logger)

	visitService := service.NewVisitService(
		db, db, eventBus, syncWorkerOrNil(sheetsWorker), cache, notifierOrNil(notifier),
		cfg.Visits.MaxAdvanceDays,
		time.Duration(cfg.Visits.ActiveCacheTTL)*time.Second,
		&logger,
	)
	fleetService := service.NewFleetService(
		db, cache,
		time.Duration(cfg.Visits.FleetCacheTTL)*time.Second,
		time.Duration(cfg.Visits.DirectoryCacheTTL)*time.Second,
		&logger,
	)
	var exporter api.VisitExporter
	if cfg.Exports.Path != "" {
		exporter = export.NewExporter(cfg.Exports.Path, &logger)
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, visitService, fleetService, exporter, &logger)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("Service started")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("Service stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Failed to create database directory")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Failed to create exports directory")
			return err
		}
	}
	return nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("Failed to initialize database")
		return nil, err
	}

	dealers, err := loadDealers(cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(dealers) > 0 {
		if err := db.SeedDealers(context.Background(), dealers); err != nil {
			logger.Error().Err(err).Msg("Failed to seed dealers")
		}
	}

	return db, nil
}

func loadDealers(cfg *config.Config, logger *zerolog.Logger) ([]models.Dealer, error) {
	path := cfg.Database.DealersFile
	if path == "" {
		path = "configs/dealers.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("dealers_file", path).Msg("Dealers file missing, directory starts empty")
			return nil, nil
		}
		logger.Error().Err(err).Str("dealers_file", path).Msg("Failed to read dealers file")
		return nil, err
	}

	var dealersConfig struct {
		Dealers []models.Dealer `yaml:"dealers"`
	}
	if err := yaml.Unmarshal(data, &dealersConfig); err != nil {
		logger.Error().Err(err).Str("dealers_file", path).Msg("Failed to parse dealers file")
		return nil, err
	}

	return dealersConfig.Dealers, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, snapshot cache falls back to memory")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("Redis connected")
	}
	return redisClient
}

func buildSnapshotCache(redisClient *redis.Client, logger *zerolog.Logger) domain.SnapshotCache {
	if redisClient == nil {
		return repository.NewMemorySnapshotCache()
	}
	primary := repository.NewRedisSnapshotCache(redisClient)
	return repository.NewFailoverSnapshotCache(primary, repository.NewMemorySnapshotCache(), logger)
}

// Typed nil pointers must not leak into the optional interface slots.
func syncWorkerOrNil(w *worker.SheetsWorker) domain.SyncWorker {
	if w == nil {
		return nil
	}
	return w
}

func notifierOrNil(n *notify.TelegramNotifier) domain.Notifier {
	if n == nil {
		return nil
	}
	return n
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.VisitsSpreadsheetID == "" {
		logger.Warn().Msg("Google Sheets not configured, spreadsheet mirror disabled")
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.VisitsSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Google Sheets init failed, continuing without mirror")
		return nil
	}

	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("Google Sheets connection test failed, continuing without mirror")
		return nil
	}

	logger.Info().Msg("Google Sheets service initialized")
	return sheetsService
}

func subscribeVisitEvents(bus *events.EventBus, logger *zerolog.Logger) {
	auditHandler := func(ev *events.Event) error {
		var payload events.VisitEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		logger.Info().
			Str("event", ev.Type).
			Str("visit_id", payload.VisitID).
			Str("dealer", payload.DealerName).
			Str("status", payload.Status).
			Str("changed_by", payload.ChangedBy).
			Msg("visit event")
		return nil
	}

	bus.Subscribe(events.EventVisitOpened, auditHandler)
	bus.Subscribe(events.EventVisitConfirmed, auditHandler)
	bus.Subscribe(events.EventVisitCancelled, auditHandler)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}
