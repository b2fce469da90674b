// Firmd is the firm management daemon: client, case, task, HR and billing
// records with cached analytics and business reports over HTTP.
//
// Configuration is loaded from environment variables, optionally layered
// over a YAML file. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	firmd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 STORE_PATH=/var/lib/firmd/firmd.db firmd
//
//	# Layer a config file under the environment
//	firmd -config ~/.config/firmd/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/config"
	"github.com/fyrsmithlabs/firmd/internal/events"
	httpserver "github.com/fyrsmithlabs/firmd/internal/http"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/fyrsmithlabs/firmd/internal/perf"
	"github.com/fyrsmithlabs/firmd/internal/records"
	"github.com/fyrsmithlabs/firmd/internal/report"
	"github.com/fyrsmithlabs/firmd/internal/store"
	"github.com/fyrsmithlabs/firmd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const instrumentationName = "github.com/fyrsmithlabs/firmd"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  firmd           Start the firmd daemon\n")
			fmt.Fprintf(os.Stderr, "  firmd version   Show version information\n")
			os.Exit(1)
		}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("firmd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadWithFile(path)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run starts firmd and blocks until ctx is cancelled.
//
// It initializes, in order:
//  1. Logger and telemetry
//  2. The sqlite record store
//  3. The analytics cache and its janitor
//  4. NATS events, when configured
//  5. Record, analytics and report services
//  6. The HTTP server, shut down gracefully on cancellation
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()
	if err := tel.Degraded(); err != nil {
		logger.Warn(ctx, "telemetry running degraded", zap.Error(err))
	}

	logger.Info(ctx, "Starting firmd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Path),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	st, err := store.Open(ctx, cfg.Store.Path, store.WithMetrics(store.NewMetrics()))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	cache := analytics.NewCache(cfg.Analytics.CacheTTL,
		analytics.WithMaxEntries(cfg.Analytics.MaxEntries),
		analytics.WithCleanupInterval(cfg.Analytics.CleanupInterval),
		analytics.WithCacheMetrics(analytics.NewMetrics()),
	)
	cache.Start(ctx)
	defer cache.Stop()

	tracer := tel.Tracer(instrumentationName)
	an := analytics.NewService(st, cache,
		analytics.WithForecastPeriods(cfg.Analytics.ForecastPeriods),
		analytics.WithLogger(logger.Named("analytics")),
		analytics.WithTracer(tracer),
	)

	checks := map[string]httpserver.HealthCheck{"store": st.Ping}
	if tel.Enabled() {
		checks["telemetry"] = func(context.Context) error { return tel.Degraded() }
	}

	recordOpts := []records.Option{
		records.WithInvalidator(an),
		records.WithLogger(logger.Named("records")),
		records.WithTracer(tracer),
	}
	hub := events.NewHub()
	defer hub.Close()
	nc, err := initEvents(ctx, cfg, logger, an, hub)
	if err != nil {
		return err
	}
	if nc == nil {
		recordOpts = append(recordOpts, records.WithPublisher(hub))
	} else {
		defer nc.Close()
		pub := events.NewNATSPublisher(nc, cfg.Events.SubjectPrefix, instanceID)
		recordOpts = append(recordOpts, records.WithPublisher(events.Fanout{hub, pub}))
		checks["events"] = func(context.Context) error {
			if !nc.IsConnected() {
				return events.ErrNotConnected
			}
			return nil
		}
	}

	srv, err := httpserver.NewServer(httpserver.Deps{
		Records:   records.NewService(st, recordOpts...),
		Analytics: an,
		Reports: report.NewGenerator(an, report.ThresholdsFromConfig(cfg.Report),
			report.WithLogger(logger.Named("report")),
			report.WithTracer(tracer),
		),
		Perf:   perf.NewAggregator(perf.DefaultWindow),
		Hub:    hub,
		Checks: checks,
		Meter:  tel.Meter(instrumentationName),
		Tracer: tracer,
	}, logger, &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info(ctx, "Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("stream_endpoint", "/api/v1/stream"),
		zap.Bool("events", nc != nil))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// instanceID tags events published by this process so its own events are
// not applied twice.
var instanceID = "firmd-" + uuid.NewString()

// initLogger initializes the structured logger.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lc, err := logging.ConfigFor(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}
	lc.Fields["service"] = cfg.Observability.ServiceName
	return logging.NewLogger(lc, nil)
}

// initEvents connects to NATS. Whenever another instance changes an
// org's records, its cached analytics are dropped and the event is
// relayed to local stream subscribers. An empty URL disables events and
// returns a nil connection.
func initEvents(ctx context.Context, cfg *config.Config, logger *logging.Logger, an *analytics.Service, hub *events.Hub) (*nats.Conn, error) {
	if cfg.Events.URL == "" {
		logger.Info(ctx, "NATS not configured, change events disabled")
		return nil, nil
	}

	nc, err := events.Connect(cfg.Events.URL, cfg.Events.Token, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	_, err = events.Subscribe(ctx, nc, cfg.Events.SubjectPrefix, func(ctx context.Context, ev events.Event) {
		if ev.Source == instanceID {
			return
		}
		n := an.Invalidate(ev.OrgID)
		logger.Debug(ctx, "analytics invalidated by remote change",
			zap.String("org", ev.OrgID),
			zap.String("kind", ev.Kind),
			zap.String("source", ev.Source),
			zap.Int("entries", n))
		if err := hub.Publish(ctx, ev); err != nil {
			logger.Debug(ctx, "remote change not relayed", zap.Error(err))
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to record events: %w", err)
	}

	logger.Info(ctx, "Connected to NATS",
		zap.String("url", config.RedactURL(cfg.Events.URL)),
		zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	return nc, nil
}
