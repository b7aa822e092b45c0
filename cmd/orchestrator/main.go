// Package main is the entry point for the orchestrator service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillflow/orchestrator/internal/api"
	"github.com/skillflow/orchestrator/internal/artifact"
	"github.com/skillflow/orchestrator/internal/auth"
	"github.com/skillflow/orchestrator/internal/composer"
	"github.com/skillflow/orchestrator/internal/config"
	"github.com/skillflow/orchestrator/internal/engine"
	"github.com/skillflow/orchestrator/internal/invoke"
	"github.com/skillflow/orchestrator/internal/matcher"
	"github.com/skillflow/orchestrator/internal/registry"
	"github.com/skillflow/orchestrator/internal/runstore"
	"github.com/skillflow/orchestrator/internal/scanner"
	"github.com/skillflow/orchestrator/internal/template"
	"github.com/skillflow/orchestrator/internal/tracing"
	"github.com/skillflow/orchestrator/internal/validator"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting orchestrator",
		slog.String("port", cfg.Port),
		slog.String("store", cfg.StoreAdapter),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx := context.Background()

	// Tracing
	tp, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "skillflow-orchestrator",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     1.0,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Stores. A Redis failure falls back to memory so the service still
	// comes up for local development.
	store, templates, reg := buildStores(ctx, cfg, logger)
	defer store.Close()
	defer templates.Close()
	defer reg.Close()

	// Skill library
	var scan *scanner.Scanner
	if cfg.SkillsRoot != "" {
		scan = scanner.New(cfg.SkillsRoot, reg, logger)
		if cfg.ScanOnStart {
			count, err := scan.Scan(ctx)
			if err != nil {
				logger.Warn("initial skill scan failed", "error", err, "root", cfg.SkillsRoot)
			} else {
				logger.Info("skill scan complete", slog.Int("indexed", count))
			}
		}
	}

	// Matching and composition
	m := matcher.New(reg, nil, logger)
	comp := composer.New(m, templates, logger)

	// Execution
	invoker := invoke.NewSubprocessInvoker(reg, invoke.SubprocessConfig{
		Timeout: cfg.SkillTimeout,
	}, logger)

	var sink engine.StateSink = runstore.NewSink(store, logger)
	var artifacts *artifact.Store
	if cfg.ArtifactThreshold > 0 {
		backend, err := buildArtifactBackend(ctx, cfg)
		if err != nil {
			logger.Warn("artifact backend unavailable, storing outputs inline", "error", err)
		} else {
			artifacts = artifact.NewStore(backend, cfg.ArtifactThreshold)
			sink = artifact.NewSink(sink, artifacts, logger)
			logger.Info("artifact offloading enabled", slog.Int("threshold", cfg.ArtifactThreshold))
		}
	}

	recorder := template.NewStatsRecorder(templates, logger)
	eng := engine.New(invoker, recorder, sink, logger)
	launcher := api.NewLauncher(eng, store, logger)

	// Validation
	v, err := validator.New()
	if err != nil {
		logger.Error("failed to create validator", "error", err)
		os.Exit(1)
	}

	// HTTP surface
	handlers := api.NewHandlers(api.Deps{
		Store:     store,
		Templates: templates,
		Registry:  reg,
		Scanner:   scan,
		Matcher:   m,
		Composer:  comp,
		Validator: v,
		Launcher:  launcher,
		Artifacts: artifacts,
		Config:    cfg,
		Logger:    logger,
	})
	server := api.NewServer(handlers)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	var handler http.Handler = mux
	if cfg.OIDCEnabled {
		provider, err := auth.NewProvider(ctx, &auth.Config{
			Issuer:   cfg.OIDCIssuer,
			ClientID: cfg.OIDCClientID,
		})
		if err != nil {
			logger.Error("failed to initialize OIDC provider", "error", err)
			os.Exit(1)
		}
		handler = auth.NewMiddleware(provider, &auth.MiddlewareConfig{Enabled: true}).Handler(mux)
		logger.Info("OIDC authentication enabled", slog.String("issuer", cfg.OIDCIssuer))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	launcher.Wait()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// buildStores wires the run store, template store and skill registry against
// the configured adapter.
func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (runstore.RunStore, template.Store, registry.SkillRegistry) {
	storeCfg := runstore.Config{
		EventMaxLen: cfg.EventMaxLen,
		TTLSeconds:  int(cfg.RunTTL.Seconds()),
	}

	if cfg.StoreAdapter == "redis" {
		store, err := runstore.NewRedisStore(ctx, cfg.RedisURL, storeCfg)
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory stores", "error", err)
		} else {
			templates, terr := template.NewRedisStore(ctx, cfg.RedisURL)
			reg, rerr := registry.NewRedisRegistry(ctx, cfg.RedisURL)
			if terr == nil && rerr == nil {
				logger.Info("using Redis stores", slog.String("url", cfg.RedisURL))
				return store, templates, reg
			}
			logger.Error("failed to open Redis stores, falling back to memory", "template_error", terr, "registry_error", rerr)
			store.Close()
		}
	}

	logger.Info("using in-memory stores")
	return runstore.NewMemoryStore(storeCfg), template.NewMemoryStore(), registry.NewMemoryRegistry()
}

// buildArtifactBackend opens the object storage backend used for oversized
// node outputs.
func buildArtifactBackend(ctx context.Context, cfg *config.Config) (artifact.Backend, error) {
	if cfg.S3Endpoint == "" && cfg.S3AccessKeyID == "" {
		return artifact.NewMemoryBackend(), nil
	}
	return artifact.NewS3Backend(ctx, &artifact.S3Config{
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UseSSL:          cfg.S3UseSSL,
		PathPrefix:      cfg.S3PathPrefix,
	})
}
