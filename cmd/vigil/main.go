package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vigil/internal/bot"
	"vigil/internal/config"
	"vigil/internal/modules/audit"
	"vigil/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage open failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	auditLogger := audit.NewLogger(store, logger)

	guard, err := bot.New(cfg, logger, store, auditLogger)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}
	if err := guard.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("vigil running")

	if cfg.Health.Enabled {
		go serveHealth(cfg.Health.Addr, logger)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	guard.Close(shutdownCtx)
}

func serveHealth(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("health server stopped", zap.Error(err))
	}
}
