// Package main is the entry point for the ingest worker. It polls the feed
// aggregation API on an interval, decomposes newsletters, judges new items,
// and persists scores.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/briefcast/briefcast/internal/cache"
	"github.com/briefcast/briefcast/internal/config"
	"github.com/briefcast/briefcast/internal/feed"
	"github.com/briefcast/briefcast/internal/ingest"
	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/llm"
	"github.com/briefcast/briefcast/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	once := flag.Bool("once", false, "run a single poll and exit")
	metricsAddr := flag.String("metrics-addr", "", "address for the /metrics endpoint, e.g. :9100 (disabled when empty)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Briefcast Ingest Worker")
		fmt.Println()
		fmt.Println("Usage: ingest [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	cancelPing()

	source, err := feed.NewClient(feed.Config{
		BaseURL:      cfg.FeedAPIBaseURL,
		APIKey:       cfg.FeedAPIKey,
		MaxRetries:   3,
		JitterFactor: 0.2,
	}, logger)
	if err != nil {
		logger.Error("failed to create feed client", "error", err)
		os.Exit(1)
	}

	repo := item.NewPostgresRepository(db, logger)

	// Judging is optional; without an endpoint items still ingest and rank
	// on lexical score alone.
	judge := llm.NewJudge(llm.Config{
		Endpoint: cfg.LLMEndpoint,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
	}, logger)
	if !judge.Configured() {
		logger.Warn("llm judge not configured, items will not be judged")
	}

	// Cached scores go stale the moment fresh judgments land, so the worker
	// invalidates them through the same Redis the API reads from.
	var invalidator ingest.ScoreInvalidator
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		invalidator = cache.NewScoreCache(redisClient, cache.DefaultTTL, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ingestMetrics := ingest.NewMetrics()
	if err := ingestMetrics.Register(registry); err != nil {
		logger.Error("failed to register ingest metrics", "error", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("serving metrics", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	runner := ingest.NewRunner(ingest.Config{
		Interval: cfg.IngestInterval,
		Lookback: cfg.IngestLookback,
	}, source, repo, judge, invalidator, ingestMetrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		runner.RunOnce(ctx)
		logger.Info("single poll complete")
		return
	}

	logger.Info("starting ingest worker",
		"interval", cfg.IngestInterval.String(),
		"lookback", cfg.IngestLookback.String())
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ingest worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("ingest worker stopped")
}
