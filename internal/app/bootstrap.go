// Package app wires configuration, logging and the query pipeline for the
// command-line and HTTP shells.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fin-query-agent/internal/auditlog"
	"fin-query-agent/internal/enrich"
	"fin-query-agent/internal/extract"
	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/pipeline"
	"fin-query-agent/internal/pipeline/pipelineobs"
	"fin-query-agent/internal/store"
	"fin-query-agent/internal/trace"
	"fin-query-agent/internal/types"
)

const DefaultConfigPath = "config.yaml"

// InitializeSystem loads .env and starts the logger and tracer.
func InitializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// Shutdown flushes the tracer.
func Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shut down tracer: %v\n", err)
	}
}

// LoadConfig reads path. A missing file at the default path falls back to
// built-in defaults; a missing explicit path is an error.
func LoadConfig(ctx context.Context, path string) (*store.Config, error) {
	if path == DefaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logger.Info(ctx, "No config file found, using defaults", "path", path)
			path = ""
		}
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// CredentialsFromEnv reads both API keys from the environment.
func CredentialsFromEnv() types.Credentials {
	serp := os.Getenv("SERPAPI_KEY")
	if serp == "" {
		serp = os.Getenv("SERPAPI_API_KEY")
	}
	return types.Credentials{
		GroqAPIKey: strings.TrimSpace(os.Getenv("GROQ_API_KEY")),
		SerpAPIKey: strings.TrimSpace(serp),
	}
}

// InitializeAudit returns the audit log, or nil when disabled, and compresses
// files past retention.
func InitializeAudit(ctx context.Context, cfg *store.Config) *auditlog.Log {
	if !cfg.Audit.Enabled {
		return nil
	}
	audit := auditlog.New(cfg.Audit.Dir)
	if n, err := audit.CompressOlder(cfg.Audit.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old audit logs", "error", err)
	} else if n > 0 {
		logger.Info(ctx, "Compressed old audit logs", "files", n)
	}
	return audit
}

// InitializePipeline builds the query processor with observability.
func InitializePipeline(ctx context.Context, cfg *store.Config, audit *auditlog.Log) (interfaces.QueryProcessor, error) {
	dir, err := extract.LoadDirectory(cfg.Extraction.CompaniesFile)
	if err != nil {
		return nil, fmt.Errorf("load company directory: %w", err)
	}
	logger.Info(ctx, "Company directory loaded", "companies", dir.Len(), "source", nonEmpty(cfg.Extraction.CompaniesFile, "embedded"))

	var enricher *enrich.Enricher
	if cfg.Enrich.Enabled {
		enricher = enrich.New(enrich.Config{
			MaxPages:        cfg.Enrich.MaxPages,
			Timeout:         time.Duration(cfg.Enrich.TimeoutSeconds) * time.Second,
			MinSnippetChars: cfg.Enrich.MinSnippetChars,
		})
		logger.Info(ctx, "Page enrichment enabled", "max_pages", cfg.Enrich.MaxPages)
	}

	deps := pipeline.Deps{
		Config:    cfg,
		Directory: dir,
		Audit:     audit,
	}
	// A typed nil would make the retriever call a nil *Enricher.
	if enricher != nil {
		deps.Enricher = enricher
	}
	return pipelineobs.Wrap(pipeline.New(deps)), nil
}

// SummarizeAudit writes today's audit summary if auditing is on.
func SummarizeAudit(ctx context.Context, audit *auditlog.Log) {
	if audit == nil {
		return
	}
	p, err := audit.SummarizeDay(time.Now().UTC())
	if err != nil {
		logger.Warn(ctx, "Failed to summarize audit log", "error", err)
		return
	}
	if p != "" {
		logger.Info(ctx, "Audit summary written", "path", p)
	}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
