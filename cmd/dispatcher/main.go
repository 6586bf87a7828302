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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/app"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/config"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/router"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: config.local.yaml, then config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("cctp-evm-bridge dispatcher version=%s\n", version)
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("❌ Failed to load config: %v", err)
	}
	configureLogger(logger, cfg.Log)
	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(logger.Formatter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("❌ %v", err)
	}
	logger.Info("👋 Dispatcher stopped")
}

func configureLogger(logger *logrus.Logger, cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("⚠️ Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	container, err := app.NewServiceContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer container.Close()

	engine := router.SetupRouter(cfg, container.Handlers(), container.AuthMiddleware(), logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("🚀 Dispatcher listening on %s (mode=%s)", srv.Addr, cfg.Dispatcher.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if os.Getenv("DISPATCHER_DUMP_CUSTODY") == "true" {
		ledger := container.Dispatcher.Ledger()
		token := container.Dispatcher.Options().BurnToken
		logger.WithFields(logrus.Fields{
			"held_fees": ledger.HeldFees(token),
			"in_flight": ledger.InFlight(token),
			"frozen":    ledger.Frozen(token),
		}).Info("📊 Custody at shutdown")
	}
	return nil
}
