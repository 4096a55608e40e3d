// Command organcored runs the organ allocation engine as a long-lived
// process: it opens the configured persistence backend, wires the matching
// engine and report worker, periodically sweeps expired proposals, and serves
// Prometheus metrics.
//
// Configuration is environment driven:
//
//	ORGANCORE_STORAGE_DRIVER  memory|sqlite|postgres (default sqlite)
//	ORGANCORE_SQLITE_PATH     sqlite file path (default ./organcore.db)
//	ORGANCORE_POSTGRES_DSN    postgres DSN when driver=postgres
//	ORGANCORE_REDIS_ADDR      optional redis host:port for fact publication
//	ORGANCORE_BLOB_DRIVER     fs|s3|memory (default fs), see internal/blob
//	ORGANCORE_METRICS_ADDR    metrics listen address (default :9464)
//	ORGANCORE_SWEEP_INTERVAL  proposal expiry sweep period (default 1h)
//	ORGANCORE_LOG_FORMAT      json|console (default json)
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"organcore/internal/adapters/reports"
	"organcore/internal/blob"
	"organcore/internal/events"
	"organcore/internal/infra/metrics"
	"organcore/internal/match"
	"organcore/internal/registry"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("organcored failed", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("ORGANCORE_LOG_FORMAT") == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := match.OpenPersistentStore(match.NewDefaultRulesEngine())
	if err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(ctx, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(reg)

	organs := registry.NewOrgans()
	recipients := registry.NewRecipients()
	quality := registry.NewQuality()
	waiting := match.NewWaitingList(store,
		match.WithWaitingListLogger(logger),
		match.WithWaitingListPublisher(publisher),
	)
	engine := match.NewEngine(store, waiting, organs, recipients, quality,
		match.WithLogger(logger),
		match.WithPublisher(publisher),
		match.WithMetricsRecorder(recorder),
	)

	blobs, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	worker := reports.NewWorker(store, blobs, logger)
	worker.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := worker.Stop(shutdownCtx); err != nil {
			logger.Warn("report worker shutdown timed out", zap.Error(err))
		}
	}()

	metricsSrv := startMetricsServer(reg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("organcored started",
		zap.String("storage_driver", os.Getenv("ORGANCORE_STORAGE_DRIVER")),
		zap.String("blob_driver", string(blobs.Driver())))

	sweepLoop(ctx, engine, logger)
	logger.Info("organcored shutting down")
	return nil
}

func newPublisher(ctx context.Context, logger *zap.Logger) (events.Publisher, func(), error) {
	addr := os.Getenv("ORGANCORE_REDIS_ADDR")
	if addr == "" {
		return &events.MemoryPublisher{}, func() {}, nil
	}
	pub, err := events.NewRedisPublisher(ctx, addr, "")
	if err != nil {
		return nil, nil, err
	}
	logger.Info("publishing facts to redis",
		zap.String("addr", addr), zap.String("channel", pub.Channel()))
	return pub, func() { _ = pub.Close() }, nil
}

func startMetricsServer(reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	addr := os.Getenv("ORGANCORE_METRICS_ADDR")
	if addr == "" {
		addr = ":9464"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", addr))
	return srv
}

// sweepLoop expires overdue proposals on a fixed period until the context is
// cancelled. The engine itself never expires proposals on its own timer.
func sweepLoop(ctx context.Context, engine *match.Engine, logger *zap.Logger) {
	interval := time.Hour
	if raw := os.Getenv("ORGANCORE_SWEEP_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			logger.Warn("invalid sweep interval, using default", zap.String("value", raw))
		} else {
			interval = parsed
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := engine.SweepExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("proposal sweep failed", zap.Error(err))
				continue
			}
			if swept > 0 {
				logger.Info("proposals expired", zap.Int("count", swept))
			}
		}
	}
}
