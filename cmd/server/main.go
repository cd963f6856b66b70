package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperview-gateway/internal/api"
	"hyperview-gateway/internal/cache"
	"hyperview-gateway/internal/config"
	"hyperview-gateway/internal/dexscreener"
	"hyperview-gateway/internal/gateway"
	"hyperview-gateway/internal/hyperliquid"
	"hyperview-gateway/internal/markets"
	"hyperview-gateway/internal/ratelimit"
	"hyperview-gateway/internal/relay"
	"hyperview-gateway/internal/synth"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	startTime = time.Now()
)

func main() {
	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	logger.Info("Starting Hyperview Gateway...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config: ", err)
	}

	// Set log level
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis for the market summary cache. The REST layer is
	// fail-open, so a missing Redis only disables caching.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		logger.Info("Connecting to Redis...")
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without market cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("Redis connected successfully")
		}
	}

	// Initialize upstream clients
	hlClient := hyperliquid.NewClient(cfg.Hyperliquid, logger)
	dexClient := dexscreener.NewClient(cfg.DexScreener, logger)

	// Initialize cache and services
	marketCache := cache.NewMarketCache(redisClient, logger)
	tokens := markets.LoadTokensWithFallback(cfg.Markets.TokensFile)
	marketsSvc := markets.NewService(dexClient, hlClient, marketCache, cfg, tokens, logger)
	generator := synth.NewGenerator(cfg.Synth.Volatility)

	// Initialize rate limiter with background bucket eviction
	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, logger)
	go limiter.StartJanitor(ctx, cfg.RateLimit.SweepInterval)

	// Initialize WebSocket gateway
	dialer := &relay.WebsocketDialer{HandshakeTimeout: hlClient.RequestTimeout()}
	gw := gateway.New(hlClient.WSURL(), dialer, logger)

	// Initialize REST server
	restSrv := api.NewServer(cfg, hlClient, dexClient, marketsSvc, generator, limiter, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:    addr,
		Handler: restSrv.Routes(gw),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	logger.Infof("Hyperview Gateway v%s started successfully (%d watched tokens)", version, len(tokens))

	// Wait for shutdown signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case err := <-errChan:
		logger.WithError(err).Error("HTTP server error")
	}

	logger.Info("Shutting down gracefully...")

	// Close client sessions first; this cascades to every upstream relay.
	gw.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown with timeout")
	}

	logger.Infof("Shutdown complete (uptime %s)", time.Since(startTime).Round(time.Second))
}
