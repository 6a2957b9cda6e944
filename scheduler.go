package exporters

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type State int

const (
	StateUninitialized State = iota
	StateStopped
	StateRunning
)

func (st State) String() string {
	switch st {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	}
	return "uninitialized"
}

// Create the emitters a fresh reporter delivers to.
type EmitterFactory func(cfg Config) ([]Emitter, error)

// Scheduler owns the reporter lifecycle:
//
//	uninitialized --Initialize--> stopped --Start--> running --Stop--> stopped
//
// Transitions serialize on one lock, misuse such as Start before Initialize
// is a no-op. Cycles never overlap, a tick arriving while a cycle is still
// in flight runs once that cycle completes.
type Scheduler struct {
	registry Registry
	factory  EmitterFactory
	hostname func(context.Context) (string, error)
	stats    *Stats
	logger   *zap.Logger
	opts     []Option

	mu          sync.Mutex
	initialized bool
	running     bool
	cfg         Config
	host        string
	addr        string
	cache       *PointCache
	reporter    *Reporter
	cron        *cron.Cron
}

type SchedulerOption func(*Scheduler)

// Resolve host name with fn instead of ResolveHostname.
func WithHostnameFunc(fn func(context.Context) (string, error)) SchedulerOption {
	return func(s *Scheduler) {
		s.hostname = fn
	}
}

func WithSchedulerStats(stats *Stats) SchedulerOption {
	return func(s *Scheduler) {
		s.stats = stats
	}
}

func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Extra options applied to every reporter created.
func WithReporterOptions(opts ...Option) SchedulerOption {
	return func(s *Scheduler) {
		s.opts = append(s.opts, opts...)
	}
}

func NewScheduler(registry Registry, factory EmitterFactory, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		registry: registry,
		factory:  factory,
		hostname: ResolveHostname,
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = NewStats(nil)
	}
	return s
}

// Initialize resolves host name, creates the point cache and a reporter.
// Failing to resolve host name is fatal. Reporting starts right away if
// enabled by cfg. A second call is a no-op.
func (s *Scheduler) Initialize(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	s.logger.Info("Initializing timeline metrics reporter")
	host, err := s.hostname(ctx)
	if err != nil {
		s.logger.Error("Could not identify hostname", zap.Error(err))
		return fmt.Errorf("initialize reporter: %w", err)
	}
	s.cfg = cfg
	s.host = host
	s.cache = NewPointCache(cfg.MaxRowCacheSize, cfg.SendInterval)
	s.addr = cfg.CollectorAddr()
	if tcp, err := net.ResolveTCPAddr("tcp", s.addr); err != nil {
		s.logger.Warn("Could not resolve collector address", zap.String("addr", s.addr), zap.Error(err))
	} else {
		s.addr = tcp.String()
	}
	if err := s.initReporter(); err != nil {
		return err
	}
	s.initialized = true
	s.logger.Debug("Initialized timeline metrics reporter",
		zap.String("hostname", host),
		zap.String("collector", cfg.CollectorURI()),
		zap.String("addr", s.addr),
		zap.Duration("sendInterval", cfg.SendInterval),
		zap.Int("maxRowCacheSize", cfg.MaxRowCacheSize))
	if cfg.ReporterEnabled {
		s.start(cfg.PollingInterval)
	}
	return nil
}

// Create a fresh reporter, replacing and closing the previous one.
// Must be called with s.mu held.
func (s *Scheduler) initReporter() error {
	emitters, err := s.factory(s.cfg)
	if err != nil {
		return fmt.Errorf("create emitters: %w", err)
	}
	opts := append([]Option{
		WithEmitters(emitters...),
		WithCache(s.cache),
		WithHostname(s.host),
		WithStats(s.stats),
		WithLogger(s.logger),
	}, s.opts...)
	rep, err := NewReporter(s.registry, opts...)
	if err != nil {
		return fmt.Errorf("create reporter: %w", err)
	}
	if s.reporter != nil {
		if err := s.reporter.Close(); err != nil {
			s.logger.Warn("Failed to close previous reporter", zap.Error(err))
		}
	}
	s.reporter = rep
	return nil
}

// Start reporting every period, a no-op if running or not yet initialized.
// Period shorter than a second is rounded up.
func (s *Scheduler) Start(period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start(period)
}

func (s *Scheduler) start(period time.Duration) {
	if !s.initialized || s.running {
		return
	}
	if period <= 0 {
		s.logger.Warn("Ignored start with non-positive period", zap.Duration("period", period))
		return
	}
	log := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.DelayIfStillRunning(log)),
	)
	c.Schedule(cron.Every(period), cron.FuncJob(s.reporter.RunCycle))
	c.Start()
	s.cron = c
	s.running = true
	s.stats.Running.Set(1)
	s.logger.Info("Started timeline metrics reporter", zap.Duration("period", period))
}

// Stop reporting and reset the reporter so that it may be started again.
// An in-flight cycle is not interrupted, Stop waits for it to complete.
// A no-op if not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
}

func (s *Scheduler) stop() {
	if !s.initialized || !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
	s.stats.Running.Set(0)
	s.logger.Info("Stopped timeline metrics reporter")
	if err := s.initReporter(); err != nil {
		s.logger.Error("Failed to reset reporter, keeping previous one", zap.Error(err))
	}
}

// Stop reporting and close emitters.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.running = false
		s.stats.Running.Set(0)
	}
	if s.reporter == nil {
		return nil
	}
	err := s.reporter.Close()
	s.reporter = nil
	s.initialized = false
	return err
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.running:
		return StateRunning
	case s.initialized:
		return StateStopped
	}
	return StateUninitialized
}

func (s *Scheduler) Running() bool {
	return s.State() == StateRunning
}

// Host name resolved upon initialize.
func (s *Scheduler) Hostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Collector address resolved upon initialize, host:port as configured if it
// could not be resolved.
func (s *Scheduler) CollectorAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run one cycle right away regardless of state, a no-op if not initialized.
func (s *Scheduler) RunCycle() {
	s.mu.Lock()
	rep := s.reporter
	s.mu.Unlock()
	if rep != nil {
		rep.RunCycle()
	}
}

// Adapt zap to cron.Logger, cron's chatter is logged at debug level.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (cl cronLogger) Info(msg string, keysAndValues ...interface{}) {
	cl.l.Debugw(msg, keysAndValues...)
}

func (cl cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	cl.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
