package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/msomdec/tasktide/internal/cache"
	"github.com/msomdec/tasktide/internal/config"
	"github.com/msomdec/tasktide/internal/event"
	"github.com/msomdec/tasktide/internal/handler"
	"github.com/msomdec/tasktide/internal/remote"
	"github.com/msomdec/tasktide/internal/service"
	"github.com/msomdec/tasktide/internal/store"
)

// Login and registration attempts allowed per client address: a burst of 10,
// refilling one every 2 seconds.
const (
	authLimiterRate     = 0.5
	authLimiterCapacity = 10
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tasktide HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	db, err := cache.New(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate cache: %w", err)
	}
	slog.Info("cache migrations applied", "path", cfg.Cache.Path)

	backend := remote.New(cfg.Backend.URL, cfg.Backend.ServiceKey)
	bus := event.NewBus()
	defer bus.Close()

	authService := service.NewAuthService(backend, cfg.Auth.JWTSecret, cfg.Auth.BcryptCost)
	limiter := service.NewRateLimiter(authLimiterRate, authLimiterCapacity)
	taskStore := store.NewCachedTaskStore(backend, cache.NewStore(db), bus,
		store.WithFreshness(time.Duration(cfg.Cache.Freshness)))
	sessionService := service.NewSessionService(backend, bus)
	reportService := service.NewReportService(taskStore, sessionService)
	tracker := service.NewTracker(bus)
	defer tracker.Shutdown()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, authService, limiter, taskStore, sessionService,
		reportService, tracker, bus, cfg.Server.CookieSecure)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.SecurityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "backend", cfg.Backend.URL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
