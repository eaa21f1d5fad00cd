package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatti/quote-cache/internal/alert"
	"github.com/gatti/quote-cache/internal/platform/aws"
	"github.com/gatti/quote-cache/internal/platform/cache"
	"github.com/gatti/quote-cache/internal/platform/config"
	"github.com/gatti/quote-cache/internal/platform/observability"
	"github.com/gatti/quote-cache/internal/pricing"
	"github.com/gatti/quote-cache/internal/quote"
	"github.com/gatti/quote-cache/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("quoted: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Observability first; everything else logs through it.
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	otelMetrics, err := observability.NewMetrics("quote-cache", cfg.Observability.Metrics.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "quote-cache", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	logger.Info("starting quote cache service")

	// Quote store: memory LRU in front of Redis.
	redisCache, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to create Redis cache: %w", err)
	}

	memCache := cache.NewMemoryCache(cfg.Cache.L1MaxSize)
	layered := cache.NewLayeredCache(memCache, redisCache, cfg.Cache.L1MaxTTL)
	defer layered.Close()

	// Optional SNS alerting.
	var notifier alert.Notifier = alert.NewNoopNotifier()
	if cfg.Alerts.Enabled {
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
			Region:   cfg.Alerts.Region,
			Endpoint: cfg.Alerts.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}

		snsNotifier, err := alert.NewSNSNotifier(alert.SNSNotifierConfig{
			Client:   aws.NewSNSClient(aws.SNSClientConfig{AWSConfig: awsCfg, Logger: logger}),
			TopicARN: cfg.Alerts.SNSTopicARN,
			Service:  "quote-cache",
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create SNS notifier: %w", err)
		}
		notifier = snsNotifier
	}

	// Upstream quote source.
	var fetcher pricing.Fetcher
	switch cfg.Upstream.Provider {
	case "static":
		logger.Warn("using static upstream provider; quotes are synthetic")
		fetcher = pricing.NewStaticFetcher()
	default:
		uniswap, err := pricing.NewUniswapFetcher(cfg.Upstream.Chains, logger)
		if err != nil {
			return fmt.Errorf("failed to create upstream fetcher: %w", err)
		}
		defer uniswap.Close()
		fetcher = uniswap
	}

	// Core engine.
	policy := quote.Policy{
		Tiers: map[quote.Tier]quote.TierConfig{
			quote.TierT1: {TTL: cfg.Tiers.T1.TTL, RefreshPeriod: cfg.Tiers.T1.RefreshPeriod},
			quote.TierT2: {TTL: cfg.Tiers.T2.TTL, RefreshPeriod: cfg.Tiers.T2.RefreshPeriod},
			quote.TierT3: {TTL: cfg.Tiers.T3.TTL, RefreshPeriod: cfg.Tiers.T3.RefreshPeriod},
			quote.TierT4: {TTL: cfg.Tiers.T4.TTL, RefreshPeriod: cfg.Tiers.T4.RefreshPeriod},
		},
		MaxStaleAge: cfg.Tiers.MaxStaleAge,
	}

	coreMetrics := quote.NewMetrics(otelMetrics)
	store := quote.NewStore(layered, policy, logger, coreMetrics)
	registry := quote.NewRegistry()
	queue := quote.NewRefreshQueue(cfg.Refresh.QueueCapacity, coreMetrics)
	upstream := quote.NewUpstream(fetcher, quote.UpstreamConfig{
		CallTimeout:      cfg.Upstream.CallTimeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	}, logger, otelMetrics, notifier)

	engine := quote.NewEngine(quote.EngineConfig{
		Store:       store,
		Registry:    registry,
		Policy:      policy,
		Queue:       queue,
		Upstream:    upstream,
		Metrics:     coreMetrics,
		Otel:        otelMetrics,
		Logger:      logger,
		MaxAttempts: cfg.Refresh.MaxAttempts,
	})

	// Background machinery: workers drain the queue, the sweeper feeds it.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	workers := quote.NewWorkerPool(queue, upstream, store, registry, quote.WorkerPoolConfig{
		Workers:     cfg.Refresh.Workers,
		MaxAttempts: cfg.Refresh.MaxAttempts,
		RetryBase:   cfg.Refresh.RetryBase,
		RetryMax:    cfg.Refresh.RetryMax,
	}, logger, coreMetrics, otelMetrics)
	workers.Start(workerCtx)

	sweeper := quote.NewSweeper(registry, queue, policy, cfg.Refresh.SweepAmount, cfg.Refresh.MaxAttempts, logger)
	sweeper.Start(workerCtx)

	// Warm-up runs in the background; startup never blocks on it.
	if len(cfg.Warmup) > 0 {
		pairs := make([]quote.WarmupPair, 0, len(cfg.Warmup))
		for _, p := range cfg.Warmup {
			tier, err := quote.ParseTier(p.Tier)
			if err != nil {
				logger.Warn("skipping warmup pair with bad tier", "pair", p, "error", err.Error())
				continue
			}
			pairs = append(pairs, quote.WarmupPair{
				Chain:    p.Chain,
				TokenIn:  p.TokenIn,
				TokenOut: p.TokenOut,
				Tier:     tier,
				Amount:   p.Amount,
			})
		}

		warmer := cache.NewWarmer(logger, 30*time.Second)
		warmer.Register(engine.WarmupProvider(pairs, cfg.Refresh.SweepAmount))
		go func() {
			start := time.Now()
			results := warmer.Warmup(workerCtx)
			failures := 0
			for _, r := range results {
				if r.Err != nil {
					failures++
				}
			}
			notifier.WarmupCompleted(len(pairs), failures, time.Since(start))
		}()
	}

	// API server.
	apiServer := server.New(server.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, engine, logger, func(ctx context.Context) error {
		return redisCache.Ping(ctx)
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Prometheus scrape surface on its own port.
	var metricsServer *http.Server
	if cfg.Observability.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", otelMetrics.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"healthy"}`))
		})
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Observability.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("metrics server listening", "port", cfg.Observability.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.LogError(ctx, "metrics server failed", err)
			}
		}()
	}

	// Wait for a termination signal or a server failure.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("API server failed: %w", err)
	}

	// Graceful shutdown: stop taking requests, drain in-flight work within
	// the grace window, then stop the background machinery.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.LogWarn(shutdownCtx, "API server shutdown incomplete", "error", err.Error())
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	stopWorkers()
	sweeper.Wait()
	workers.Wait()

	logger.Info("quote cache service stopped")
	return nil
}
