// Package main is the entry point for the Sleep Regression game server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/infra/storage"
	"github.com/MRamiBalles/SleepRegression/server/internal/network"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/config"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/metrics"
)

// ledger bundles the repositories of whichever storage driver is configured.
type ledger struct {
	db       *sql.DB
	events   storage.EventRepository
	sessions storage.SessionRepository
}

func openLedger(ctx context.Context, cfg config.StorageConfig) (*ledger, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := storage.InitSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &ledger{
			db:       db,
			events:   storage.NewSQLiteEventRepository(db),
			sessions: storage.NewSQLiteSessionRepository(db),
		}, nil
	case "postgres":
		db, err := storage.InitPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &ledger{
			db:       db,
			events:   storage.NewPostgresEventRepository(db),
			sessions: storage.NewPostgresSessionRepository(db),
		}, nil
	}
	return nil, nil
}

func main() {
	configPath := flag.String("config", os.Getenv("SLEEP_CONFIG"), "Path to a YAML config file")
	dev := flag.Bool("dev", false, "Start from the low resource development settings (no ledger, debug logs)")
	flag.Parse()

	base := config.DefaultConfig()
	if *dev {
		base = config.LowResourceConfig()
	}
	cfg, err := config.LoadOver(base, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[SLEEP-SERVER] invalid configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Initializing 'Sleep Regression' authoritative server...")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gameMetrics, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	appLogger.Info("Opening event ledger...", "driver", cfg.Storage.Driver)
	led, err := openLedger(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	var (
		persister events.EventPersister
		sessions  network.SessionLister
		recaps    network.RecapReader
	)
	if led != nil {
		defer led.db.Close()
		persister = storage.NewPersister(led.events, led.sessions, gameMetrics)
		sessions = led.sessions
		recaps = storage.NewReconstructor(led.events)
	} else {
		appLogger.Warn("Ledger disabled, events stay in memory")
	}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(persister)
	eventLog.OnPersistError(func(e events.GameEvent, err error) {
		appLogger.Warn("Failed to persist event", "type", e.Type, "id", e.ID, "err", err)
	})
	defer eventLog.Close()

	appLogger.Info("Bootstrapping Engine Subsystems...")
	engineOpts := []engine.Option{engine.WithMetrics(gameMetrics)}
	if cfg.Game.Seed != nil {
		engineOpts = append(engineOpts, engine.WithSeed(*cfg.Game.Seed))
	}
	gameEngine := engine.NewEngine(eventLog, appLogger.With("component", "engine"), engineOpts...)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(gameEngine, cfg.Hub, appLogger.With("component", "hub"), gameMetrics)
	gameEngine.OnUpdate(hub.PublishState)
	go hub.Run(ctx)
	if cfg.Hub.BroadcastRawEvents {
		hub.StartEventPoller(ctx, eventLog)
	}

	gameEngine.Start(ctx)
	if cfg.Game.Autostart {
		gameEngine.SetRunning(true)
	}

	mux := http.NewServeMux()
	network.NewAPI(gameEngine, hub, sessions, recaps, gameMetrics, appLogger.With("component", "api")).RegisterRoutes(mux)
	network.NewReplayHandler(eventLog, appLogger.With("component", "replay")).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP API & WS Server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	appLogger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
