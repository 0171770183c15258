package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"content-indexer/internal/bootstrap"
	"content-indexer/internal/config"
	"content-indexer/internal/pkg/logger"
	httptransport "content-indexer/internal/transport/http"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{StartWorker: true})
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("close resources failed", zap.Error(err))
		}
	}()

	if err := app.Indexer.EnsureSchema(ctx); err != nil {
		log.Fatal("schema setup failed", zap.Error(err))
	}

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	waitForShutdown(server, log)
}

func waitForShutdown(server *http.Server, log *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", zap.Error(err))
	}
}
