// Command timeline-sidecar reports the metrics of the process registry to a
// timeline metrics collector, and exposes the reporter lifecycle over http.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	exporters "github.com/juvenn/timeline-exporters"
	"github.com/juvenn/timeline-exporters/config"
	"github.com/juvenn/timeline-exporters/emitters"
	"github.com/juvenn/timeline-exporters/emitters/influx"
	"github.com/juvenn/timeline-exporters/emitters/timeline"
	"github.com/juvenn/timeline-exporters/manage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "timeline-sidecar",
		Short:        "Ship in-process metrics to a timeline metrics collector",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "timeline-sidecar %s\n", version)
		},
	})
	return root
}

type runOptions struct {
	configPath string
	listen     string
	demo       bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reporter until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to broker properties file")
	cmd.Flags().StringVar(&opts.listen, "listen", ":9099", "Address of the management http server")
	cmd.Flags().BoolVar(&opts.demo, "demo", false, "Register simulated broker metrics")
	return cmd
}

func run(ctx context.Context, opts *runOptions) error {
	v, err := config.New(opts.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	reg := metrics.DefaultRegistry
	if opts.demo {
		stop := startDemo(reg)
		defer stop()
	}
	promReg := prometheus.NewRegistry()
	sched := exporters.NewScheduler(exporters.FromGoMetrics(reg), emitterFactory(&current, logger),
		exporters.WithSchedulerStats(exporters.NewStats(promReg)),
		exporters.WithSchedulerLogger(logger),
		exporters.WithReporterOptions(exporters.WithDurationUnit(cfg.DurationUnit)))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := sched.Initialize(ctx, cfg.Config); err != nil {
		logger.Error("Failed to initialize reporter", zap.Error(err))
		return err
	}
	defer func() {
		if err := sched.Close(); err != nil {
			logger.Warn("Failed to close reporter", zap.Error(err))
		}
	}()

	if opts.configPath != "" {
		config.Watch(v, func(next *config.Config) {
			current.Store(next)
			toggle(sched, next, logger)
		}, func(err error) {
			logger.Warn("Ignored invalid config", zap.Error(err))
		})
	}

	srv := &http.Server{
		Addr:              opts.listen,
		Handler:           manage.Handler(sched, promReg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving management interface", zap.String("addr", opts.listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Management server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

// Start or stop reporting as reporter.enabled flips in config file.
func toggle(sched *exporters.Scheduler, cfg *config.Config, logger *zap.Logger) {
	switch running := sched.Running(); {
	case cfg.ReporterEnabled && !running:
		logger.Info("Reporter enabled by config")
		sched.Start(cfg.PollingInterval)
	case !cfg.ReporterEnabled && running:
		logger.Info("Reporter disabled by config")
		sched.Stop()
	}
}

// Emitters are created from the latest config, so a reloaded config takes
// effect upon next stop and start.
func emitterFactory(current *atomic.Pointer[config.Config], logger *zap.Logger) exporters.EmitterFactory {
	return func(base exporters.Config) ([]exporters.Emitter, error) {
		cfg := current.Load()
		switch cfg.Emitter {
		case config.EmitterStdout:
			return []exporters.Emitter{emitters.NewStdoutEmitter()}, nil
		case config.EmitterInflux:
			em, err := influx.NewV1Emitter(cfg.InfluxURL, cfg.InfluxDatabase,
				influx.WithRequestTimeout(cfg.RequestTimeout))
			if err != nil {
				return nil, err
			}
			return []exporters.Emitter{em}, nil
		}
		em, err := timeline.NewEmitter(base.CollectorURI(),
			timeline.WithRequestTimeout(cfg.RequestTimeout),
			timeline.WithCompression(cfg.Compress),
			timeline.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return []exporters.Emitter{em}, nil
	}
}

// JSON logs to stderr, stdout is left to the stdout emitter.
func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		zapLevel,
	)
	return zap.New(core, zap.AddCaller()).With(zap.String("component", "timeline-sidecar")), nil
}
