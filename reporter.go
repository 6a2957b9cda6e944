package exporters

import (
	"context"
	"fmt"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// A reporter runs reporting cycles: flatten every metric of the registry
// into the point cache, read the points back and emit them as one batch.
type Reporter struct {
	registry     Registry
	cache        *PointCache
	flattener    *Flattener
	hostname     string
	appID        string
	autoReset    bool // auto reset metric such as counter
	durationUnit time.Duration
	emitters     []Emitter
	stats        *Stats
	logger       *zap.Logger
}

// Run one reporting cycle. Metrics failed to flatten are skipped, a batch
// failed to emit is dropped, neither stops the cycle nor escapes it.
func (rep *Reporter) RunCycle() {
	rep.stats.Cycles.Inc()
	batch := rep.collect()
	if len(batch) == 0 {
		return
	}
	rep.emit(batch)
}

func (rep *Reporter) collect() (batch Batch) {
	batch = make(Batch, 0, 128)
	defer func() {
		if r := recover(); r != nil {
			rep.logger.Error("Registry panicked, emitting points collected so far",
				zap.Int("points", len(batch)), zap.Any("panic", r))
		}
	}()
	var n int
	rep.registry.Each(func(name MetricName, metric any) {
		n++
		names, err := rep.flattener.Flatten(name, metric)
		if err != nil {
			kind := KindOf(metric)
			rep.stats.metricFailed(kind)
			rep.logger.Error("Failed to flatten metric, skipping",
				zap.Stringer("metric", name),
				zap.String("kind", kindName(kind, metric)),
				zap.Error(err))
			return
		}
		if rep.autoReset {
			reset(metric)
		}
		for _, key := range names {
			if sample, ok := rep.cache.Get(key); ok {
				batch = append(batch, sample)
			}
		}
	})
	rep.logger.Debug("Collected metric points", zap.Int("metrics", n), zap.Int("points", len(batch)))
	return batch
}

func (rep *Reporter) emit(batch Batch) {
	var wg conc.WaitGroup
	for _, em := range rep.emitters {
		wg.Go(func() {
			if err := em.Emit(batch); err != nil {
				rep.stats.EmitFailures.Inc()
				rep.logger.Error("Failed to emit metric points, dropping batch",
					zap.Int("points", len(batch)), zap.Error(err))
				return
			}
			rep.stats.PointsEmitted.Add(float64(len(batch)))
			rep.logger.Debug("Emitted metric points", zap.Int("points", len(batch)))
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		rep.stats.EmitFailures.Inc()
		rep.logger.Error("Emitter panicked, dropping batch",
			zap.Int("points", len(batch)), zap.Error(r.AsError()))
	}
}

func kindName(kind MetricType, metric any) string {
	if kind != "" {
		return string(kind)
	}
	return fmt.Sprintf("%T", metric)
}

func reset(metric any) {
	switch metric := metric.(type) {
	case metrics.Counter:
		metric.Clear()
	case metrics.Histogram:
		metric.Clear()
	}
}

// Close emitters, the reporter must not be used afterwards.
func (rep *Reporter) Close() error {
	var err error
	for _, em := range rep.emitters {
		err = multierr.Append(err, em.Close())
	}
	return err
}

func (rep *Reporter) Cache() *PointCache {
	return rep.cache
}

func (rep *Reporter) Hostname() string {
	return rep.hostname
}

// Create reporter of registry. Upon closing, the associated emitters will be
// closed too. Hostname is resolved unless given by WithHostname, failing to
// do so is an error.
func NewReporter(registry Registry, opts ...Option) (*Reporter, error) {
	rep := &Reporter{
		registry:     registry,
		appID:        DefaultAppID,
		durationUnit: DefaultDurationUnit,
		logger:       zap.L(),
	}
	for _, opt := range opts {
		opt(rep)
	}
	if len(rep.emitters) < 1 {
		return nil, fmt.Errorf("Please specify at least one emitter to report metrics to.")
	}
	if rep.hostname == "" {
		hostname, err := ResolveHostname(context.Background())
		if err != nil {
			return nil, err
		}
		rep.hostname = hostname
	}
	if rep.cache == nil {
		rep.cache = NewPointCache(DefaultMaxRows, DefaultMaxAge)
	}
	if rep.stats == nil {
		rep.stats = NewStats(nil)
	}
	rep.flattener = NewFlattener(rep.cache, rep.hostname, rep.appID, rep.durationUnit)
	return rep, nil
}

type Option func(*Reporter)

// Where to emit metrics
func WithEmitters(emitters ...Emitter) Option {
	return func(rep *Reporter) {
		rep.emitters = append(rep.emitters, emitters...)
	}
}

// Cache to hold points between cycles, default to one of default bounds.
func WithCache(cache *PointCache) Option {
	return func(rep *Reporter) {
		rep.cache = cache
	}
}

// Host name attached to each sample.
func WithHostname(hostname string) Option {
	return func(rep *Reporter) {
		rep.hostname = hostname
	}
}

// App id attached to each sample, default to kafka_broker.
func WithAppID(appID string) Option {
	return func(rep *Reporter) {
		rep.appID = appID
	}
}

// Auto reset metric after each report, such as Counter.
func WithAutoReset(flag bool) Option {
	return func(rep *Reporter) {
		rep.autoReset = flag
	}
}

// Unit timer durations are reported in, default to milliseconds.
func WithDurationUnit(unit time.Duration) Option {
	return func(rep *Reporter) {
		rep.durationUnit = unit
	}
}

func WithStats(stats *Stats) Option {
	return func(rep *Reporter) {
		rep.stats = stats
	}
}

// Logger to use, default to zap.L()
func WithLogger(logger *zap.Logger) Option {
	return func(rep *Reporter) {
		rep.logger = logger
	}
}
