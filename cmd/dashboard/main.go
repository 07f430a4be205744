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
	"time"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/dashboard"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := dashboard.DefaultConfig()

	var (
		logLevel   string
		logColor   bool
		acmeDomain string
		acmeCache  string
	)

	flag.StringVar(&cfg.Addr, "http", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DeviceURL, "device", cfg.DeviceURL, "ESP32 appliance base URL")
	flag.StringVar(&cfg.StreamHost, "stream-host", cfg.StreamHost, "MJPEG stream base URL (default: -device)")
	flag.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "Web assets directory")
	flag.StringVar(&cfg.BuildAssetsDir, "assets-build", cfg.BuildAssetsDir, "Build assets directory")
	flag.StringVar(&cfg.UsersFile, "users", cfg.UsersFile, "users.json with dashboard logins")
	flag.StringVar(&cfg.SessionDB, "session-db", cfg.SessionDB, "SQLite file holding the login session")
	flag.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "URL encoded in the QR code (default: request host)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Separate metrics listen address (empty: /metrics only)")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Detection info poll interval")
	flag.DurationVar(&cfg.ControlTimeout, "control-timeout", cfg.ControlTimeout, "Per-attempt camera control timeout")
	flag.IntVar(&cfg.ControlAttempts, "control-attempts", cfg.ControlAttempts, "Camera control attempts")
	flag.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "Connection test timeout")
	flag.DurationVar(&cfg.ProxyTimeout, "proxy-timeout", cfg.ProxyTimeout, "Snapshot and status proxy timeout")
	flag.StringVar(&acmeDomain, "acme-domain", "", "Serve HTTPS on :443 with Let's Encrypt certificates for this domain")
	flag.StringVar(&acmeCache, "acme-cache", "certs", "Certificate cache directory for -acme-domain")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	server, err := dashboard.NewServer(ctx, cfg, m)
	if err != nil {
		log.Fatalf("Failed to create dashboard: %v", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Main", "Metrics listening on %s", cfg.MetricsAddr)
			if err := m.StartServer(cfg.MetricsAddr); err != nil {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	logger.Info("Main", "ESP32 dashboard listening on %s", cfg.Addr)
	logger.Info("Main", "Appliance: %s", cfg.DeviceURL)
	logger.Info("Main", "Assets: %s (build: %s)", cfg.AssetsDir, cfg.BuildAssetsDir)
	logger.Info("Main", "Log level: %s", level)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if acmeDomain != "" {
			errCh <- serveTLS(httpServer, acmeDomain, acmeCache)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Main", "Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}
	if err := server.Close(); err != nil {
		logger.Warn("Main", "Close: %v", err)
	}
	logger.Info("Main", "Server stopped")
}
