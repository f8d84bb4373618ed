package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fin-query-agent/internal/app"
	"fin-query-agent/internal/httpapi"
	"fin-query-agent/internal/logger"
)

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to the YAML config file")
	flag.Parse()

	if err := app.InitializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer app.Shutdown(context.Background())

	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		log.Fatal(err)
	}
	audit := app.InitializeAudit(ctx, cfg)
	processor, err := app.InitializePipeline(ctx, cfg, audit)
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(processor, time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Query server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Graceful shutdown failed", err)
	}
	app.SummarizeAudit(shutdownCtx, audit)
}
