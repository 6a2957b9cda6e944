package exporters

import (
	"time"
)

type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeMeter     MetricType = "meter"
	TypeTimer     MetricType = "timer"
	TypeHistogram MetricType = "histogram"
)

// Type of value a sample originated from, informational only.
const (
	ValueLong   = "Long"
	ValueDouble = "Double"
)

const DefaultAppID = "kafka_broker"

// A sample is one scalar observation of a flattened metric, e.g. the 1 minute
// rate of a meter. Samples are never mutated, a newer one replaces it in the
// point cache.
type MetricSample struct {
	Name      string  `json:"name"`
	HostName  string  `json:"hostname"`
	AppID     string  `json:"appid"`
	Timestamp int64   `json:"timestamp"` // millis since epoch
	Value     float64 `json:"value"`
	ValueType string  `json:"type,omitempty"`
}

func (s *MetricSample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Samples produced within one reporting cycle, in the order produced.
type Batch []MetricSample

func (b Batch) Names() []string {
	names := make([]string, len(b))
	for i := range b {
		names[i] = b[i].Name
	}
	return names
}
