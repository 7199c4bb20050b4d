package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/riyak972/capstone-chat/internal/config"
	"github.com/riyak972/capstone-chat/internal/policy"
	"github.com/riyak972/capstone-chat/internal/provider"
	"github.com/riyak972/capstone-chat/internal/repository"
	"github.com/riyak972/capstone-chat/internal/service"
	handler "github.com/riyak972/capstone-chat/internal/transport/http"
	"github.com/riyak972/capstone-chat/internal/transport/ws"
	"github.com/riyak972/capstone-chat/internal/usage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatapi: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting chat api",
		"port", cfg.HTTPPort,
		"default_provider", cfg.ProviderDefault,
		"websocket", cfg.FeatureWS)
	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn("JWT_SECRET is the development default, set it before deploying")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	// Initialize providers
	providerOpts := cfg.ProviderOptions()
	providerOpts.Logger = logger
	registry := provider.NewRegistryFromOptions(providerOpts)

	// Initialize metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := usage.New(usage.WithRegisterer(promRegistry))

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Initialize service
	svc := service.New(store, registry, metrics, cfg, policyEngine, service.WithLogger(logger))
	go svc.RunExpirySweeper(ctx, cfg.SessionSweepInterval)

	opts := handler.Options{Gatherer: promRegistry, Logger: logger}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting fails open until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		opts.Redis = client
	}

	if cfg.FeatureWS {
		hub := ws.NewHub(logger)
		go hub.Run(ctx)
		opts.WS = ws.NewServer(ws.Config{
			JWTSecret:         cfg.JWTSecret,
			AllowedOrigin:     cfg.ClientOrigin,
			HeartbeatInterval: cfg.SSEHeartbeatInterval,
			Retry:             cfg.SSERetry,
		}, hub, svc, logger)
	}

	server := handler.NewServer(svc, cfg, opts)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("chat api started", "port", cfg.HTTPPort)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("shutting down chat api")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", "error", err)
	}

	logger.Info("chat api stopped")
	return nil
}
