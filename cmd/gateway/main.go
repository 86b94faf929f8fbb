package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/halcyonchat/gateway/internal/config"
	"github.com/halcyonchat/gateway/internal/gateway"
	"github.com/halcyonchat/gateway/internal/logger"
	"github.com/halcyonchat/gateway/internal/tracing"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "Configuration file path")
	flag.Parse()

	// .env is optional, used for local development
	_ = godotenv.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	if err := logger.Init(logLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		// allow a file-less setup driven entirely by the environment
		if os.Getenv("GATEWAY_TOKEN") == "" {
			logger.L.Fatal("Failed to load configuration", zap.Error(err))
		}
		cfg = &config.Config{}
		config.SetDefaults(cfg)
	}
	if token := os.Getenv("GATEWAY_TOKEN"); token != "" {
		cfg.Token = token
	}
	if err := config.Validate(cfg); err != nil {
		logger.L.Fatal("Invalid configuration", zap.Error(err))
	}

	if cfg.Tracing.Endpoint != "" {
		if err := tracing.Init("chat-gateway", version, cfg.Tracing.Endpoint); err != nil {
			logger.L.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			logger.L.Info("Tracing initialized", zap.String("endpoint", cfg.Tracing.Endpoint))
		}
	}

	m := gateway.NewManager(cfg, logger.L)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		logger.L.Fatal("Failed to start gateway", zap.Error(err))
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = serveMetrics(cfg.Metrics.ListenAddr, m)
	}

	// drain events so the core never stalls; a consuming application
	// replaces this loop with its own handling
	go func() {
		for ev := range m.Events() {
			if de, ok := ev.(gateway.DispatchEvent); ok {
				logger.L.Debug("dispatch event",
					zap.Int("shard", de.Shard),
					zap.String("type", de.Type),
					zap.Int64("seq", de.Seq),
				)
			}
		}
	}()

	logger.L.Info("Gateway started",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("git_commit", gitCommit),
		zap.Int("shards", len(m.Clients())),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.L.Info("Received stop signal, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := m.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("Error during gateway shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.L.Warn("Error during metrics server shutdown", zap.Error(err))
		}
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("Error during tracing shutdown", zap.Error(err))
	}

	logger.L.Info("Gateway closed")
}

func serveMetrics(addr string, m *gateway.Manager) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if m.Healthy() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unhealthy"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.L.Info("Metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
