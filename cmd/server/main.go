package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/streamify/backend/internal/handlers"
	"github.com/anonto42/streamify/backend/internal/router"
	"github.com/anonto42/streamify/backend/pkg/config"
	"github.com/anonto42/streamify/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.WithError(err).Fatal("Server failed")
	}
}

// run starts the server and blocks until ctx is done or the server fails. Connections opened
// along the way are closed before it returns.
func run(ctx context.Context) error {
	// Load configuration
	cfg := config.Load()
	config.SetupLogger(cfg)

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}
	defer db.CloseDB() // Ensure database connections are closed when run exits

	deps, err := router.BuildDependencies(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.HTTPErrorHandler
	e.JSONSerializer = router.JSONSerializer{}
	e.Validator = validators.NewValidator()

	// Setup global middleware
	config.SetupMiddleware(e, cfg)

	// Setup routes and dependencies
	router.SetupRoutes(e, deps)

	serverErr := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{"port": cfg.Port, "store": cfg.StoreDriver}).Info("Server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
