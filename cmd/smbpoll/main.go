// Command smbpoll polls an SMB share and moves every new file into a sink:
// another share, a local directory or an S3 bucket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/absfs/smbpoll"
	"github.com/absfs/smbpoll/internal/config"
	"github.com/absfs/smbpoll/internal/idempotent"
	"github.com/absfs/smbpoll/internal/logging"
	"github.com/absfs/smbpoll/internal/route"
	"github.com/absfs/smbpoll/internal/sink/local"
	"github.com/absfs/smbpoll/internal/sink/s3"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		// Can't use structured logging yet
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}

	logger, _, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("smbpoll stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := smbpoll.NewMetrics(reg)

	sourceCfg, err := cfg.SourceSMB()
	if err != nil {
		return err
	}
	sourceCfg.Logger = logger.Named("source")
	sourceCfg.Metrics = metrics

	source, err := smbpoll.NewClient(sourceCfg)
	if err != nil {
		return fmt.Errorf("source client: %w", err)
	}
	defer source.Close()

	sink, closeSink, err := newSink(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer closeSink()

	repo, err := newRepository(cfg)
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close()
	}

	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsHandler(reg)}
		go func() {
			logger.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	r := route.New(source.Consumer(), sink, route.Config{
		Interval:      cfg.Interval,
		Repository:    repo,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		SpoolDir:      cfg.SpoolDir,
		Logger:        logger.Named("route"),
	})

	logger.Info("smbpoll starting",
		zap.String("source", source.Root().Endpoint()),
		zap.String("sink", cfg.Sink.Type),
		zap.Duration("interval", cfg.Interval))

	return r.Run(ctx)
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newSink(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *smbpoll.Metrics) (smbpoll.FileSink, func(), error) {
	switch cfg.Sink.Type {
	case "smb":
		sinkCfg, err := cfg.SinkSMB()
		if err != nil {
			return nil, nil, err
		}
		sinkCfg.Logger = logger.Named("sink")
		sinkCfg.Metrics = metrics

		client, err := smbpoll.NewClient(sinkCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("sink client: %w", err)
		}
		return client.Producer(), func() { client.Close() }, nil

	case "local":
		sink, err := local.New(cfg.Sink.Local)
		if err != nil {
			return nil, nil, fmt.Errorf("local sink: %w", err)
		}
		return sink, func() {}, nil

	case "s3":
		sink, err := s3.New(ctx, cfg.Sink.S3, logger.Named("sink"))
		if err != nil {
			return nil, nil, fmt.Errorf("s3 sink: %w", err)
		}
		return sink, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown sink type: %s", cfg.Sink.Type)
}

func newRepository(cfg *config.Config) (idempotent.Repository, error) {
	switch cfg.Idempotent.Type {
	case "memory":
		return idempotent.NewMemoryRepository(cfg.Idempotent.TTL), nil
	case "badger":
		repo, err := idempotent.NewBadgerRepository(idempotent.BadgerConfig{
			Dir: cfg.Idempotent.Dir,
			TTL: cfg.Idempotent.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("idempotent repository: %w", err)
		}
		return repo, nil
	}
	return nil, nil
}
