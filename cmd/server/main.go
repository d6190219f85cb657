package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/aussie-atis/internal/api"
	"github.com/yegors/aussie-atis/internal/config"
	"github.com/yegors/aussie-atis/internal/geometry"
	"github.com/yegors/aussie-atis/internal/service"
	"github.com/yegors/aussie-atis/internal/source"
	"github.com/yegors/aussie-atis/internal/storage/sqlite"
	"github.com/yegors/aussie-atis/internal/websocket"
	"github.com/yegors/aussie-atis/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	envPath := flag.String("env", ".env", "Path to a .env file with ATIS_* overrides (ignored when missing)")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		os.Exit(1)
	}

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfg.ApplyEnv(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying environment overrides: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ATIS decoder server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.Strings("airports", cfg.AirportCodes()),
	)

	// Create snapshot storage (optional)
	var store service.Store
	if cfg.Storage.Enabled {
		snapshotStorage, err := sqlite.NewSnapshotStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Error("Failed to create SQLite storage", logger.Error(err))
			os.Exit(1)
		}
		defer snapshotStorage.Close()
		store = snapshotStorage
		log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))
	} else {
		log.Info("Snapshot storage disabled in configuration")
	}

	fetcher := source.NewFetcher(source.Config{
		BaseURL:        cfg.Source.BaseURL,
		RequestTimeout: cfg.RequestTimeout(),
		MaxRetries:     cfg.Source.MaxRetries,
		RetryWait:      cfg.RetryWait(),
		UserAgent:      cfg.Source.UserAgent,
	}, log)

	atisService := service.NewService(airportsFromConfig(cfg), fetcher, store, service.Options{
		Interval:  cfg.RefreshInterval(),
		Stagger:   time.Duration(cfg.Refresh.StaggerSeconds) * time.Second,
		Retention: time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour,
	}, log)

	// Create and start WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	// Create API router before starting the service so updates reach WebSocket clients
	router := api.NewRouter(atisService, wsServer, cfg.Server.CORSAllowedOrigins, log)

	if err := atisService.Start(ctx); err != nil {
		log.Error("Failed to start ATIS service", logger.Error(err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", logger.String("addr", server.Addr), logger.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal or a failed listener
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	log.Info("Stopping ATIS service...")
	atisService.Stop()
	log.Info("ATIS service stopped.")

	// Cancel the main context
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.String("addr", server.Addr), logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete", logger.String("addr", server.Addr))
	}

	log.Info("Server fully stopped")
}

func airportsFromConfig(cfg *config.Config) []service.Airport {
	airports := make([]service.Airport, 0, len(cfg.Airports))
	for _, a := range cfg.Airports {
		airports = append(airports, service.Airport{
			Code: a.Code,
			Name: a.Name,
			Position: geometry.Position{
				Latitude:      a.Latitude,
				Longitude:     a.Longitude,
				ElevationFeet: a.ElevationFeet,
			},
		})
	}
	return airports
}
