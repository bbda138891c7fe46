package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/inptlabs/edurag/internal/adapters/http"
	"github.com/inptlabs/edurag/internal/bootstrap"
	"github.com/inptlabs/edurag/internal/config"
	"github.com/inptlabs/edurag/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("edurag-api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	app.WarmIndex(ctx)
	go func() {
		if err := app.RunSubscriber(ctx); err != nil {
			logger.Error("corpus_subscriber_stopped", "error", err)
		}
	}()

	probes := make(map[string]httpadapter.ReadinessProbe, len(app.Probes))
	for name, probe := range app.Probes {
		probes[name] = probe
	}

	router := httpadapter.NewRouter(
		app.RespondUC,
		app.RespondUC,
		app.ReindexUC,
		app.Conversations,
		probes,
		app.Metrics,
		cfg,
		logger,
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.OllamaTimeoutSeconds+30) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
