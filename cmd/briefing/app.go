package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/config"
	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/renderinc/briefing/internal/hn"
	"github.com/renderinc/briefing/internal/ingest"
	"github.com/renderinc/briefing/internal/logging"
	"github.com/renderinc/briefing/internal/metrics"
	"github.com/renderinc/briefing/internal/scheduler"
	"github.com/renderinc/briefing/internal/scraper"
	"github.com/renderinc/briefing/internal/tools"
)

// app holds the wired components for one command invocation
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	metrics  *metrics.Metrics
	archive  *archive.Archive
	worker   *ingest.Worker
	registry *tools.Registry

	logCloser io.Closer
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

// newApp loads configuration and opens the archive
func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	// 1. Logging
	logger, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	// 2. Embeddings (optional service - degrade with a warning)
	embedder, err := embeddings.NewEmbedder(cfg.Embedder.Provider, cfg.Embedder.BaseURL, cfg.Embedder.Model, cfg.Embedder.Dimensions)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if err := embedder.Health(ctx); err != nil {
		logger.Warn("Embedding provider unavailable, writes and searches will fail until it is reachable",
			"provider", cfg.Embedder.Provider, "error", err)
	}

	// 3. Archive
	m := metrics.New()
	a := archive.New(cfg.ArchiveConfig(),
		archive.WithLogger(logger),
		archive.WithMetrics(m),
		archive.WithEmbedder(embedder),
	)
	if err := a.Init(ctx); err != nil {
		closer.Close()
		return nil, fmt.Errorf("init archive: %w", err)
	}

	// 4. Ingestion
	hnClient := hn.NewClient(
		hn.WithBaseURL(cfg.HN.BaseURL),
		hn.WithTimeout(config.Duration(cfg.HN.Timeout)),
		hn.WithRequestInterval(config.Duration(cfg.HN.RequestInterval)),
	)
	pageScraper := scraper.New(
		scraper.WithTimeout(config.Duration(cfg.Scraper.Timeout)),
		scraper.WithMaxChars(cfg.Scraper.MaxChars),
		scraper.WithUserAgent(cfg.Scraper.UserAgent),
	)
	worker := ingest.NewWorker(a, hnClient, pageScraper,
		ingest.WithLogger(logger),
		ingest.WithMetrics(m),
		ingest.WithConcurrency(cfg.Scraper.Concurrency),
	)

	// 5. Tools
	registry := tools.NewRegistry(tools.WithRegistryLogger(logger), tools.WithRegistryMetrics(m))
	tools.RegisterArchiveTools(registry, a, worker)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		archive:   a,
		worker:    worker,
		registry:  registry,
		logCloser: closer,
	}, nil
}

// Close releases the archive and log file
func (a *app) Close() {
	if err := a.archive.Close(); err != nil {
		a.logger.Error("Failed to close archive", "error", err)
	}
	a.logCloser.Close()
}

// scheduleJobs registers the retention sweep and, when configured, HN ingestion
func (a *app) scheduleJobs(ctx context.Context, s *scheduler.Scheduler, withIngest bool) error {
	if spec := a.cfg.Retention.Schedule; spec != "" {
		err := s.Schedule("retention", spec, func() {
			res := a.archive.RunRetentionSweep(ctx)
			a.logger.Info("Scheduled retention sweep",
				"items_evicted", res.ItemsAgeEvicted+res.ItemsSizeEvicted,
				"digests_evicted", res.DigestsAgeEvicted+res.DigestsSizeEvicted)
		})
		if err != nil {
			return err
		}
	}

	if spec := a.cfg.HN.Schedule; withIngest && spec != "" {
		err := s.Schedule("hn_ingest", spec, func() {
			if _, err := a.worker.IngestTopStories(ctx, a.cfg.HN.TopStories, a.cfg.HN.Topics); err != nil {
				a.logger.Error("Scheduled ingest failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
