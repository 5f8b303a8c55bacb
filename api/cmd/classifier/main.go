package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wasteiq/api/internal/app"
	"wasteiq/api/internal/config"
	handle "wasteiq/api/internal/handle"
	"wasteiq/api/internal/httpserver"
)

func main() {
	cfg := config.Load()
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8000"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, "wasteiq-classifier")
	if err != nil {
		slog.Error("build failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(sctx)
	}()

	var (
		h  *handle.Handle
		db httpserver.Pinger
	)
	if a.DB != nil {
		h = handle.New(a.Service, a.Logs, a.Points, cfg.PromptDir)
		db = a.DB
	} else {
		h = handle.New(a.Service, nil, nil, cfg.PromptDir)
	}

	addr := ":" + cfg.Port
	if err := httpserver.Serve(ctx, addr, httpserver.NewMux(h, db)); err != nil {
		slog.Error("server stopped", "err", err)
	}
}
