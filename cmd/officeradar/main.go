package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"officeradar/internal/api"
	"officeradar/pkg/config"
	"officeradar/pkg/core"
	"officeradar/pkg/db"
	"officeradar/pkg/ingest"
	"officeradar/pkg/logging"
	"officeradar/pkg/match"
	"officeradar/pkg/overpass"
	"officeradar/pkg/refresh"
	"officeradar/pkg/request"
	"officeradar/pkg/store"
	"officeradar/pkg/version"
	"officeradar/pkg/wikidata"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/officeradar.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/officeradar.yaml")
		return
	}

	if err := run(context.Background(), "configs/officeradar.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("OfficeRadar started", "version", version.Version)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	// A failed seed import logs; the server still starts.
	if err := ingest.Bootstrap(ctx, st, &cfg.Bootstrap); err != nil {
		slog.Error("Bootstrap import failed", "error", err)
	}

	engine, matcher := buildEngine(st, cfg)

	sched := core.NewScheduler(30 * time.Second)
	sched.AddJob(core.NewRefreshJob(engine, time.Duration(cfg.Refresh.Interval)))
	go sched.Start(ctx)

	srv := api.NewHTTPServer(cfg.Server.Address, api.NewServer(st, engine, matcher, cfg).Router())
	return runServerLifecycle(ctx, srv)
}

// buildEngine wires the outbound clients into the refresh pipeline. The
// matcher is shared with the API, which labels offices with companies on
// reads.
func buildEngine(st store.Store, cfg *config.Config) (*refresh.Engine, *match.Provider) {
	rc := request.New(time.Duration(cfg.Request.Timeout), time.Duration(cfg.Request.RetryBaseDelay))
	ov := overpass.New(cfg.Overpass.URLs, rc)
	wd := wikidata.NewClient(rc, cfg.Wikidata.APIURL, time.Duration(cfg.Wikidata.Throttle))
	matcher := match.NewProvider(st.ListCompanies)
	return refresh.NewEngine(st, ov, wd, matcher, cfg), matcher
}

func runServerLifecycle(ctx context.Context, srv *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
