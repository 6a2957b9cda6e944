// Package config loads reporter settings from a broker properties file,
// e.g. server.properties, with environment variables taking precedence:
//
//	kafka.timeline.metrics.host=collector.example.com
//	KAFKA_TIMELINE_METRICS_HOST=collector.example.com
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	exporters "github.com/juvenn/timeline-exporters"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	SendIntervalKey    = "kafka.timeline.metrics.sendInterval"    // millis
	MaxRowCacheSizeKey = "kafka.timeline.metrics.maxRowCacheSize" // rows per name prefix
	HostKey            = "kafka.timeline.metrics.host"
	PortKey            = "kafka.timeline.metrics.port"
	EnabledKey         = "kafka.timeline.metrics.reporter.enabled"
	EmitterKey         = "kafka.timeline.metrics.emitter" // timeline, influx or stdout
	RequestTimeoutKey  = "kafka.timeline.metrics.request.timeout" // millis
	CompressKey        = "kafka.timeline.metrics.compress"
	InfluxURLKey       = "kafka.timeline.metrics.influx.url"
	InfluxDatabaseKey  = "kafka.timeline.metrics.influx.database"
	PollingIntervalKey = "kafka.metrics.polling.interval.secs"
	LogLevelKey        = "kafka.timeline.metrics.log.level"
	DurationUnitKey    = "kafka.timeline.metrics.duration.unit" // e.g. 1ms
)

const (
	EmitterTimeline = "timeline"
	EmitterInflux   = "influx"
	EmitterStdout   = "stdout"
)

type Config struct {
	exporters.Config
	Emitter        string
	RequestTimeout time.Duration
	Compress       bool
	InfluxURL      string
	InfluxDatabase string
	LogLevel       string
	DurationUnit   time.Duration // unit timers are reported in
}

func (cfg *Config) Validate() error {
	if err := cfg.Config.Validate(); err != nil {
		return err
	}
	switch cfg.Emitter {
	case EmitterTimeline, EmitterStdout:
	case EmitterInflux:
		if cfg.InfluxURL == "" {
			return fmt.Errorf("%s is required by influx emitter", InfluxURLKey)
		}
	default:
		return fmt.Errorf("unknown emitter %q", cfg.Emitter)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout %s is not positive", cfg.RequestTimeout)
	}
	if cfg.DurationUnit <= 0 {
		return fmt.Errorf("duration unit %s is not positive", cfg.DurationUnit)
	}
	return nil
}

// Create viper reading properties file at path, if path is empty only
// defaults and environment are used.
func New(path string) (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.WithCodecRegistry(newCodecRegistry()))
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	d := exporters.DefaultConfig()
	v.SetDefault(SendIntervalKey, d.SendInterval.Milliseconds())
	v.SetDefault(MaxRowCacheSizeKey, d.MaxRowCacheSize)
	v.SetDefault(HostKey, d.CollectorHost)
	v.SetDefault(PortKey, d.CollectorPort)
	v.SetDefault(EnabledKey, false)
	v.SetDefault(EmitterKey, EmitterTimeline)
	v.SetDefault(RequestTimeoutKey, 5000)
	v.SetDefault(CompressKey, false)
	v.SetDefault(InfluxDatabaseKey, "kafka")
	v.SetDefault(PollingIntervalKey, int(d.PollingInterval.Seconds()))
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(DurationUnitKey, exporters.DefaultDurationUnit.String())
}

// Load config from properties file at path, see New.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Decode and validate config, numbers may be given as strings as properties
// files have it.
func FromViper(v *viper.Viper) (*Config, error) {
	sendInterval, err := cast.ToInt64E(v.Get(SendIntervalKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SendIntervalKey, err)
	}
	maxRows, err := cast.ToIntE(v.Get(MaxRowCacheSizeKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MaxRowCacheSizeKey, err)
	}
	port, err := cast.ToIntE(v.Get(PortKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PortKey, err)
	}
	enabled, err := cast.ToBoolE(v.Get(EnabledKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnabledKey, err)
	}
	timeout, err := cast.ToInt64E(v.Get(RequestTimeoutKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RequestTimeoutKey, err)
	}
	compress, err := cast.ToBoolE(v.Get(CompressKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CompressKey, err)
	}
	polling, err := cast.ToInt64E(v.Get(PollingIntervalKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PollingIntervalKey, err)
	}
	unit, err := cast.ToDurationE(v.Get(DurationUnitKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DurationUnitKey, err)
	}
	cfg := &Config{
		Config: exporters.Config{
			SendInterval:    time.Duration(sendInterval) * time.Millisecond,
			MaxRowCacheSize: maxRows,
			CollectorHost:   v.GetString(HostKey),
			CollectorPort:   port,
			ReporterEnabled: enabled,
			PollingInterval: time.Duration(polling) * time.Second,
		},
		Emitter:        strings.ToLower(v.GetString(EmitterKey)),
		RequestTimeout: time.Duration(timeout) * time.Millisecond,
		Compress:       compress,
		InfluxURL:      v.GetString(InfluxURLKey),
		InfluxDatabase: v.GetString(InfluxDatabaseKey),
		LogLevel:       v.GetString(LogLevelKey),
		DurationUnit:   unit,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch config file, fn is called with the reloaded config upon change.
// Invalid config is reported to onError and otherwise ignored.
func Watch(v *viper.Viper, fn func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := FromViper(v)
		if err != nil {
			onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}
