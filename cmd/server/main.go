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

	"github.com/Brownie44l1/road-detect/internal/config"
	"github.com/Brownie44l1/road-detect/internal/detect"
	"github.com/Brownie44l1/road-detect/internal/handlers"
	"github.com/Brownie44l1/road-detect/internal/logging"
	"github.com/Brownie44l1/road-detect/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

// run owns every deferred cleanup so they all complete before the process
// exits.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("Invalid configuration: %v", err)
		return 1
	}

	log := logging.New(cfg.LogLevel, cfg.LogFile)

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Infof("Model path: %s", cfg.ModelPath)
	log.Infof("Metadata path: %s", cfg.MetadataPath)
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		log.Warnf("Model weights not present yet, /detect will fail until they are: %v", err)
	}

	loader := model.NewLoader(cfg.ModelPath, cfg.MetadataPath, model.Options{
		SharedLibraryPath: cfg.ORTLibraryPath,
		IntraOpThreads:    cfg.IntraOpThreads,
	}, log)
	defer loader.Close()

	if cfg.WatchModel {
		watcher, err := model.NewWatcher(loader, model.DefaultStabilityDelay, log)
		if err != nil {
			log.WithError(err).Warn("Failed to watch model directory")
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	router := handlers.NewRouter(detect.NewService(loader, cfg.MaxImagePixels), handlers.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		log.Infof("Allowed origins: %v", cfg.AllowedOrigins)
		log.Info("Endpoints:")
		log.Info("  GET  /health - Health check")
		log.Info("  POST /detect - Detect potholes and cracks in a base64 frame")
		log.Info("  GET  /ws     - Frame stream (websocket)")

		serveErr <- srv.ListenAndServe()
	}()

	if err := wait(ctx, srv, serveErr, log); err != nil {
		log.WithError(err).Error("Server failed")
		return 1
	}
	return 0
}

// wait blocks until the listener fails or ctx is cancelled, then shuts the
// server down. A clean shutdown returns nil.
func wait(ctx context.Context, srv *http.Server, serveErr <-chan error, log logrus.FieldLogger) error {
	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
