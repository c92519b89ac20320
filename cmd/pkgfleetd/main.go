package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/pkgfleet/pkgfleet/internal/cache"
	"github.com/pkgfleet/pkgfleet/internal/connectivity"
	"github.com/pkgfleet/pkgfleet/internal/orchestrator"
	"github.com/pkgfleet/pkgfleet/internal/telemetry"
	"github.com/pkgfleet/pkgfleet/pkg/config"
	"github.com/pkgfleet/pkgfleet/pkg/health"
	"github.com/pkgfleet/pkgfleet/pkg/logging"
	"github.com/pkgfleet/pkgfleet/pkg/metrics"
	"github.com/pkgfleet/pkgfleet/pkg/tracing"
)

var version = "dev"

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "pkgfleetd",
		Version:     version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)

	logger.Info("Starting pkgfleet daemon", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.NewService(&tracing.Config{
		ServiceName:    "pkgfleetd",
		ServiceVersion: version,
		Environment:    getEnv("ENVIRONMENT", "development"),
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing, continuing without it", "error", err.Error())
		tracer = nil
	}

	// Result store: Redis when configured, in-process memory otherwise
	var store cache.Store
	var redisStore *cache.RedisStore
	if cfg.Redis.Enabled {
		redisStore, err = cache.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Redis unavailable, falling back to memory store", "error", err.Error())
		} else {
			store = redisStore
			logger.Info("Using Redis result store", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
		}
	}
	if store == nil {
		memStore := cache.NewMemoryStore()
		go memStore.RunSweeper(ctx, cfg.Cache.SweepInterval)
		store = memStore
		logger.Info("Using in-memory result store")
	}
	defer store.Close()

	resultCache := cache.New(store, &cache.Config{TTL: cfg.Cache.TTL})

	monitor := connectivity.NewMonitor(connectivity.Config{
		ProbeAddr:     cfg.Connectivity.ProbeAddr,
		ProbeInterval: cfg.Connectivity.ProbeInterval,
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout,
		InitialOnline: true,
	})
	go monitor.Run(ctx)

	promMetrics := metrics.NewMetrics(metrics.DefaultConfig())
	promMetrics.SetOnline(monitor.IsOnline())
	go func() {
		updates, cancel := monitor.Subscribe()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case online := <-updates:
				promMetrics.SetOnline(online)
			}
		}
	}()

	reporter := telemetry.NewReporter(cfg.Resilience.ReportWindow)
	reporter.AddHandler(telemetry.NewLoggingHandler(logger))
	reporter.AddHandler(telemetry.NewMetricsHandler(promMetrics))

	// Backend adapters register themselves against this orchestrator; the
	// daemon itself only provides the resilience core and its operational
	// surface.
	orch := orchestrator.New(orchestrator.Options{
		Cache:     resultCache,
		Monitor:   monitor,
		Telemetry: reporter,
		Metrics:   promMetrics,
		Tracing:   tracer,
		Config:    cfg.Resilience,
		Logger:    logger,
	})

	healthService := health.NewService(logger)
	healthService.SetMetadata("service", "pkgfleetd")
	healthService.SetMetadata("version", version)
	registerHealthChecks(healthService, orch, monitor, redisStore)

	router := newRouter(cfg, healthService, promMetrics)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Operational server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err.Error())
	}
	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Tracing shutdown failed", "error", err.Error())
		}
	}

	logger.Info("Shutdown complete")
}

func newRouter(cfg *config.Config, healthService *health.Service, promMetrics *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthService.Handler())
	router.GET("/health/live", healthService.LivenessHandler())
	router.GET("/health/ready", healthService.ReadinessHandler())
	router.GET("/metrics", promMetrics.Handler())

	return router
}

func registerHealthChecks(s *health.Service, orch *orchestrator.Orchestrator, monitor *connectivity.Monitor, redisStore *cache.RedisStore) {
	s.RegisterChecker("backends", health.CheckerFunc(func(ctx context.Context) *health.Check {
		check := &health.Check{
			Name:      "backends",
			Status:    health.StatusHealthy,
			Timestamp: time.Now(),
			Metadata:  map[string]string{"registered": fmt.Sprintf("%d", orch.Registry().Len())},
		}
		if orch.Registry().Len() == 0 {
			check.Status = health.StatusDegraded
			check.Message = "no backends registered"
		}
		return check
	}))

	s.RegisterChecker("connectivity", health.CheckerFunc(func(ctx context.Context) *health.Check {
		check := &health.Check{
			Name:      "connectivity",
			Status:    health.StatusHealthy,
			Timestamp: time.Now(),
		}
		if !monitor.IsOnline() {
			check.Status = health.StatusDegraded
			check.Message = "network unreachable, serving cached results where possible"
		}
		return check
	}))

	s.RegisterChecker("degradation", health.CheckerFunc(func(ctx context.Context) *health.Check {
		level := orch.DegradationLevel()
		check := &health.Check{
			Name:      "degradation",
			Status:    health.StatusHealthy,
			Timestamp: time.Now(),
			Metadata:  map[string]string{"level": level.String()},
		}
		switch level {
		case orchestrator.LevelPartial:
			check.Status = health.StatusDegraded
			check.Message = "some backends are impaired"
		case orchestrator.LevelSevere:
			check.Status = health.StatusDegraded
			check.Message = "at least half the backends are impaired"
		case orchestrator.LevelCritical:
			check.Status = health.StatusUnhealthy
			check.Message = "live operations unavailable"
		}
		return check
	}))

	if redisStore != nil {
		s.RegisterChecker("redis", health.CheckerFunc(func(ctx context.Context) *health.Check {
			check := &health.Check{
				Name:      "redis",
				Status:    health.StatusHealthy,
				Timestamp: time.Now(),
			}
			started := time.Now()
			if err := redisStore.Ping(ctx); err != nil {
				check.Status = health.StatusUnhealthy
				check.Error = err.Error()
			}
			check.Duration = time.Since(started)
			return check
		}))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
