package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/ahrav/go-bomcheck/infrastructure/bomcsv"
	"github.com/ahrav/go-bomcheck/infrastructure/cache"
	"github.com/ahrav/go-bomcheck/infrastructure/catalog"
	"github.com/ahrav/go-bomcheck/infrastructure/middleware"
	"github.com/ahrav/go-bomcheck/internal/application"
	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// session holds everything a command needs, plus the cleanup for it.
type session struct {
	logger       *slog.Logger
	config       *application.Config
	orchestrator *application.Orchestrator
	closers      []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// report is the JSON document written by the validate command.
type report struct {
	Run           application.RunResult       `json:"run"`
	Consolidation *domain.ConsolidationReport `json:"consolidation,omitempty"`
	Verdict       string                      `json:"verdict,omitempty"`
}

func runValidate(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := os.Open(c.String("bom"))
	if err != nil {
		return fmt.Errorf("failed to open BOM: %w", err)
	}
	queries, err := bomcsv.Read(f, s.config.PriorityComponents)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to read BOM: %w", err)
	}
	if len(queries) == 0 {
		return errors.New("BOM has no components")
	}

	result, runErr := s.orchestrator.ValidateBOM(ctx, queries)
	if runErr != nil {
		s.logger.Error("run.errors", "error", runErr)
	}

	out := report{Run: result}
	if c.Bool("consolidate") && ctx.Err() == nil {
		target := c.String("target")
		if target == "" {
			target = s.config.Consolidation.TargetSupplier
		}
		analyzer := application.NewConsolidationAnalyzer(s.orchestrator.InRun(result), target,
			application.WithConsolidationLogger(s.logger))
		cr, err := analyzer.Analyze(ctx, result.Validations)
		if err != nil {
			return fmt.Errorf("consolidation failed: %w", err)
		}
		out.Consolidation = &cr
		out.Verdict = cr.Recommendation()
	}

	if err := writeReport(c.String("output"), out); err != nil {
		return err
	}
	return runErr
}

func runLookup(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	q := domain.PartQuery{
		ManufacturerPartNumber: strings.TrimSpace(c.String("mpn")),
		Manufacturer:           strings.TrimSpace(c.String("manufacturer")),
		RequestedQuantity:      c.Int("qty"),
	}

	var v domain.ComponentValidation
	if supplier := c.String("supplier"); supplier != "" {
		v, err = s.orchestrator.ValidateWithSupplier(ctx, q, supplier)
	} else {
		v, err = s.orchestrator.ValidateComponent(ctx, q)
	}
	if err != nil {
		return err
	}
	return encode(os.Stdout, v)
}

// newSession loads configuration and wires the provider stack.
func newSession(ctx context.Context, c *cli.Context) (*session, error) {
	logger := newLogger(c.String("log-level"))

	cfg, err := application.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	s := &session{logger: logger, config: cfg}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewPrometheusMetrics(reg)
	if addr := c.String("metrics-addr"); addr != "" {
		s.closers = append(s.closers, serveMetrics(logger, addr, reg))
	}

	store, closeStore, err := newCacheStore(ctx, cfg.Cache)
	if err != nil {
		s.Close()
		return nil, err
	}
	if closeStore != nil {
		s.closers = append(s.closers, closeStore)
	}

	registry, err := catalog.NewRegistry(catalog.RegistryConfig{
		Providers:      cfg.Providers,
		Cache:          store,
		CacheTTL:       cfg.Cache.TTL,
		Metrics:        metrics,
		BreakerMetrics: metrics.BreakerObserver,
		LimiterOptions: []catalog.LimiterOption{
			catalog.WithWaitObserver(func(provider string, wait time.Duration) {
				metrics.RecordHistogram(ports.MetricRateLimitWait, wait.Seconds(),
					map[string]string{"provider": provider})
			}),
		},
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to build providers: %w", err)
	}

	orchestrator, err := application.NewOrchestrator(registry.Providers(), cfg.OrchestratorConfig(),
		application.WithLogger(logger),
		application.WithMetrics(metrics),
		application.WithBackoff(cfg.Backoff()),
		application.WithRateCeiling(registry.MinMaxPerSecond()),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.orchestrator = orchestrator

	logger.Info("session.ready",
		"providers", len(cfg.Providers),
		"cache", cfg.Cache.Backend,
		"merge_all_providers", cfg.MergeAllProviders,
	)
	return s, nil
}

// newLogger writes JSON to stderr so stdout stays free for the report.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// newCacheStore builds the configured response cache. The returned closer
// may be nil.
func newCacheStore(ctx context.Context, cfg application.CacheConfig) (ports.CacheStore, func(), error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(), nil, nil
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return cache.NewRedisStore(client, redisKeyPrefix(cfg)), func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil
	}
}

// redisKeyPrefix namespaces shared Redis keys. The store is the only layer
// that applies key_prefix; the registry's cache middleware adds none.
func redisKeyPrefix(cfg application.CacheConfig) string {
	if cfg.KeyPrefix == "" {
		return ""
	}
	return strings.TrimSuffix(cfg.KeyPrefix, ":") + ":"
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(logger *slog.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.serve_failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("metrics.listening", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func writeReport(path string, r report) error {
	if path == "" {
		return encode(os.Stdout, r)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := encode(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
