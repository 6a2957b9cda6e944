package main

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	exporters "github.com/juvenn/timeline-exporters"
	"github.com/juvenn/timeline-exporters/config"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestEmitterFactory(t *testing.T) {
	assert := assert.New(t)
	var current atomic.Pointer[config.Config]
	cfg := loadConfig(t)
	current.Store(cfg)
	factory := emitterFactory(&current, zap.NewNop())

	for _, name := range []string{config.EmitterTimeline, config.EmitterStdout} {
		next := *cfg
		next.Emitter = name
		current.Store(&next)
		ems, err := factory(next.Config)
		assert.NoError(err, name)
		assert.Len(ems, 1, name)
	}

	next := *cfg
	next.Emitter = config.EmitterInflux
	next.InfluxURL = "http://influx:8086/write"
	current.Store(&next)
	ems, err := factory(next.Config)
	assert.NoError(err)
	assert.Len(ems, 1)
}

func TestToggle(t *testing.T) {
	cfg := loadConfig(t)
	sched := exporters.NewScheduler(exporters.FromGoMetrics(metrics.NewRegistry()),
		func(exporters.Config) ([]exporters.Emitter, error) {
			return []exporters.Emitter{nopEmitter{}}, nil
		},
		exporters.WithHostnameFunc(func(context.Context) (string, error) { return "node1", nil }))
	require.NoError(t, sched.Initialize(context.Background(), cfg.Config))
	defer sched.Close()

	enabled := *cfg
	enabled.ReporterEnabled = true
	enabled.PollingInterval = time.Second
	toggle(sched, &enabled, zap.NewNop())
	assert.True(t, sched.Running())
	toggle(sched, &enabled, zap.NewNop())
	assert.True(t, sched.Running())

	toggle(sched, cfg, zap.NewNop())
	assert.False(t, sched.Running())
}

type nopEmitter struct{}

func (nopEmitter) Emit(exporters.Batch) error { return nil }
func (nopEmitter) Close() error               { return nil }

func TestNewLogger(t *testing.T) {
	_, err := newLogger("verbose")
	assert.Error(t, err)
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "timeline-sidecar dev\n", out.String())
}
