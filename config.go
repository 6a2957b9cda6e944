package exporters

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultCollectorHost   = "localhost"
	DefaultCollectorPort   = 8188
	DefaultPollingInterval = 10 * time.Second
	collectorPath          = "/ws/v1/timeline/metrics"
)

// Settings the scheduler is initialized with.
type Config struct {
	SendInterval    time.Duration // retention of cached points
	MaxRowCacheSize int           // max cached rows per name prefix
	CollectorHost   string
	CollectorPort   int
	ReporterEnabled bool          // start reporting upon initialize
	PollingInterval time.Duration // reporting period when started upon initialize
}

func DefaultConfig() Config {
	return Config{
		SendInterval:    DefaultMaxAge,
		MaxRowCacheSize: DefaultMaxRows,
		CollectorHost:   DefaultCollectorHost,
		CollectorPort:   DefaultCollectorPort,
		PollingInterval: DefaultPollingInterval,
	}
}

func (cfg Config) CollectorAddr() string {
	return net.JoinHostPort(cfg.CollectorHost, strconv.Itoa(cfg.CollectorPort))
}

// e.g. http://localhost:8188/ws/v1/timeline/metrics
func (cfg Config) CollectorURI() string {
	return "http://" + cfg.CollectorAddr() + collectorPath
}

func (cfg Config) Validate() error {
	if cfg.CollectorHost == "" {
		return fmt.Errorf("collector host is empty")
	}
	if cfg.CollectorPort <= 0 || cfg.CollectorPort > 65535 {
		return fmt.Errorf("collector port %d out of range", cfg.CollectorPort)
	}
	if cfg.MaxRowCacheSize < 0 {
		return fmt.Errorf("max row cache size %d is negative", cfg.MaxRowCacheSize)
	}
	if cfg.SendInterval <= 0 {
		return fmt.Errorf("send interval %s is not positive", cfg.SendInterval)
	}
	if cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling interval %s is not positive", cfg.PollingInterval)
	}
	return nil
}
