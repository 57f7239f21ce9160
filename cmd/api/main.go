package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/coinvault/internal/api"
	"github.com/warp/coinvault/internal/config"
	"github.com/warp/coinvault/internal/idempotency"
	"github.com/warp/coinvault/internal/ledger"
	"github.com/warp/coinvault/internal/logging"
	"github.com/warp/coinvault/internal/orchestrator"
	"github.com/warp/coinvault/internal/reader"
	"github.com/warp/coinvault/internal/retry"
	"github.com/warp/coinvault/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		ServiceName: "coinvault-api",
		Level:       logging.ParseLevel(cfg.App.LogLevel),
		Console:     cfg.App.Env == "development",
	})

	ctx := context.Background()

	db, err := store.Open(ctx, cfg)
	if err != nil {
		log.Error(ctx, "unable to open database", err)
		os.Exit(1)
	}
	defer db.Close()

	registry := idempotency.New(cfg.Idempotency.TTL)
	writer := ledger.New(registry)
	orch := orchestrator.New(db, writer, registry, log)
	rd := reader.New(db, cfg.History.DefaultLimit, cfg.History.MaxLimit)
	driver := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseBackoff, cfg.Retry.Jitter, log)

	handler := api.NewHandler(orch, rd, driver)
	server := api.NewServer(":"+cfg.App.Port, handler)

	go func() {
		log.Info(ctx, "server starting on :"+cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server failed", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info(ctx, "shutting down")
	if err := server.Shutdown(ctx); err != nil {
		log.Error(ctx, "graceful shutdown failed", err)
	}
}
