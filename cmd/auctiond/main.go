package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jensholdgaard/auctionroom/internal/auth"
	"github.com/jensholdgaard/auctionroom/internal/clock"
	"github.com/jensholdgaard/auctionroom/internal/config"
	"github.com/jensholdgaard/auctionroom/internal/health"
	"github.com/jensholdgaard/auctionroom/internal/hub"
	"github.com/jensholdgaard/auctionroom/internal/leader"
	"github.com/jensholdgaard/auctionroom/internal/server"
	"github.com/jensholdgaard/auctionroom/internal/store"
	"github.com/jensholdgaard/auctionroom/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/auctionroom/internal/store/filestore"
	_ "github.com/jensholdgaard/auctionroom/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open the snapshot store using the configured driver (file or postgres).
	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer backend.Closer.Close()

	logger.InfoContext(ctx, "store opened", slog.String("driver", cfg.Database.Driver))

	h := hub.New(backend, auth.Plaintext{}, clk, logger, tp.TracerProvider, hub.Options{
		Limits:        cfg.Limits,
		SnipeWindow:   cfg.Auction.SnipeWindow,
		SweepInterval: cfg.Auction.SweepInterval,
	})
	if err := h.Restore(ctx); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "store",
			Check: backend.Ping,
		},
	)

	// Health endpoints run on all replicas, leader or not.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.HealthPort))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// serve is the core work that only the leader should run: the lifecycle
	// sweeper and the TCP acceptor.
	serve := func(ctx context.Context) {
		ln, listenErr := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
		if listenErr != nil {
			logger.ErrorContext(ctx, "listening failed", slog.Any("error", listenErr))
			cancel()
			return
		}

		go h.Run(ctx)

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running",
			slog.Int("port", cfg.Server.Port),
			slog.String("version", version),
		)

		srv := server.New(h, logger, tp.TracerProvider)
		if serveErr := srv.Serve(ctx, ln); serveErr != nil {
			logger.ErrorContext(ctx, "accept loop failed", slog.Any("error", serveErr))
		}

		healthHandler.SetReady(false)
		h.CloseAll()

		// Flush a final snapshot so a restart resumes from current state.
		flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer flushCancel()
		if flushErr := h.Snapshot(flushCtx); flushErr != nil {
			logger.Error("final snapshot flush failed", slog.Any("error", flushErr))
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, serve, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		serve(ctx)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
