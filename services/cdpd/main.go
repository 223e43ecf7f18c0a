package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	protocol "cdpcore/config"
	"cdpcore/core/events"
	"cdpcore/core/system"
	"cdpcore/observability/logging"
	telemetry "cdpcore/observability/otel"
	"cdpcore/services/cdpd/config"
	"cdpcore/services/cdpd/indexer"
	"cdpcore/services/cdpd/server"
	"cdpcore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/cdpd/config.yaml", "path to cdpd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("CDP_ENV"))
	sink, closeLog := logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   true,
	}.Writer()
	defer closeLog.Close()
	logger := logging.SetupWithLevel(sink, "cdpd", env, cfg.Log.Level)
	logger.Info("cdpd config loaded",
		"listen", cfg.ListenAddress,
		"protocol", cfg.ProtocolPath,
		logging.MaskField("archive_dsn", cfg.Archive.DSN),
		logging.MaskField("hmac_secret_env", cfg.Auth.HMACSecretEnv))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "cdpd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	params, err := protocol.Load(cfg.ProtocolPath)
	if err != nil {
		log.Fatalf("load protocol config: %v", err)
	}
	// A freshly written default has no roles yet.
	if err := params.Validate(); err != nil {
		log.Fatalf("protocol config %s: %v", cfg.ProtocolPath, err)
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	var archive *indexer.Archive
	opts := []system.Option{system.WithLogger(logger)}
	if cfg.Archive.DSN != "" {
		archive, err = indexer.Open(cfg.Archive.DSN, logger)
		if err != nil {
			log.Fatalf("open event archive: %v", err)
		}
		defer archive.Close()
		opts = append(opts, system.WithEmitter(events.Fanout{archive}))
	}

	sys, err := system.New(params, db, opts...)
	if err != nil {
		log.Fatalf("start system: %v", err)
	}
	logger.Info("system ready", "collaterals", sys.Collaterals(), "storage", cfg.Storage.Engine)

	srv, err := server.New(server.Config{
		System:  sys,
		Archive: archive,
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	if !cfg.TLS.Enabled() {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			log.Fatalf("plaintext cdpd mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(srv.Handler(), "cdpd"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("cdpd listening", "addr", cfg.ListenAddress, "tls", cfg.TLS.Enabled())
		if cfg.TLS.Enabled() {
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "err", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Engine {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	case "leveldb":
		return storage.NewLevelDB(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}
