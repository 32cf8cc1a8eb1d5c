package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"menulens/api/internal/app"
	"menulens/api/internal/config"
	"menulens/api/internal/handle"
	"menulens/api/internal/httpserver"
	"menulens/api/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	mux := http.NewServeMux()
	handle.New(a.Pipeline, logger, a.Health).Routes(mux)

	if err := httpserver.Run(ctx, httpserver.New(":"+cfg.Port, mux)); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
