package exporters

import (
	"fmt"
	"math"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cast"
)

// Suffixes appended to the sanitized metric name, one per derived sample.
const (
	SuffixCount         = ".count"
	SuffixOneMinute     = ".1MinuteRate"
	SuffixMeanRate      = ".meanRate"
	SuffixFiveMinute    = ".5MinuteRate"
	SuffixFifteenMinute = ".15MinuteRate"
	SuffixMax           = ".max"
	SuffixMean          = ".mean"
	SuffixMin           = ".min"
	// Note the missing leading dot, yielding e.g. basestddev.
	SuffixStdDev = "stddev"
	SuffixMedian = ".median"
	SuffixP75    = ".75percentile"
	SuffixP95    = ".95percentile"
	SuffixP98    = ".98percentile"
	SuffixP99    = ".99percentile"
	SuffixP999   = ".999percentile"
)

var percentiles = []float64{0.5, 0.75, 0.95, 0.98, 0.99, 0.999}

// Timers record nanoseconds, they are reported in milliseconds by default.
const DefaultDurationUnit = time.Millisecond

// A gauge of arbitrary value, e.g. one backed by a JMX attribute. Its value
// is reported if it is numeric or a string that parses as a number.
type ValueGauge interface {
	Value() any
}

type point struct {
	suffix    string
	value     float64
	valueType string
}

// Flattener turns one metric into samples, writes them to the point cache
// and reports the names written.
type Flattener struct {
	cache        *PointCache
	hostname     string
	appID        string
	durationUnit time.Duration // unit of timer durations, e.g. time.Millisecond
}

// Create a flattener reporting timer durations in durationUnit, a
// non-positive one defaults to DefaultDurationUnit.
func NewFlattener(cache *PointCache, hostname, appID string, durationUnit time.Duration) *Flattener {
	if durationUnit <= 0 {
		durationUnit = DefaultDurationUnit
	}
	return &Flattener{cache: cache, hostname: hostname, appID: appID, durationUnit: durationUnit}
}

// Flatten metric into samples named sanitized name + suffix, and cache them.
// Nothing is cached if metric is of unknown kind, its value is not a finite
// number, or it panics while being read.
func (f *Flattener) Flatten(name MetricName, metric any) (names []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			names = nil
			err = fmt.Errorf("flatten %s: %v", name, r)
		}
	}()
	points, err := f.collectPoints(metric)
	if err != nil {
		return nil, fmt.Errorf("flatten %s: %w", name, err)
	}
	for _, p := range points {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return nil, fmt.Errorf("flatten %s: %s%s is not finite", name, KindOf(metric), p.suffix)
		}
	}
	now := time.Now().UnixMilli()
	base := SanitizeName(name)
	names = make([]string, 0, len(points))
	for _, p := range points {
		sample := MetricSample{
			Name:      base + p.suffix,
			HostName:  f.hostname,
			AppID:     f.appID,
			Timestamp: now,
			Value:     p.value,
			ValueType: p.valueType,
		}
		f.cache.Put(sample.Name, sample)
		names = append(names, sample.Name)
	}
	return names, nil
}

func (f *Flattener) collectPoints(metric any) ([]point, error) {
	switch metric := metric.(type) {
	case metrics.Counter:
		ms := metric.Snapshot()
		return []point{{SuffixCount, float64(ms.Count()), ValueLong}}, nil
	case metrics.Gauge:
		ms := metric.Snapshot()
		return []point{{"", float64(ms.Value()), ValueLong}}, nil
	case metrics.GaugeFloat64:
		ms := metric.Snapshot()
		return []point{{"", ms.Value(), ValueDouble}}, nil
	case ValueGauge:
		v, err := gaugeValue(metric.Value())
		if err != nil {
			return nil, err
		}
		return []point{{"", v, ValueDouble}}, nil
	case metrics.Meter:
		return meteredPoints(metric.Snapshot()), nil
	case metrics.Histogram:
		ms := metric.Snapshot()
		sum := summaryPoints(ms)
		ps := snapshotPoints(ms)
		return []point{sum[0], sum[1], ps[0], sum[2], ps[1], ps[2], ps[3], ps[4], ps[5], sum[3]}, nil
	case metrics.Timer:
		ms := metric.Snapshot()
		points := meteredPoints(ms)
		sum := scaled(summaryPoints(ms), f.durationUnit)
		ps := scaled(snapshotPoints(ms), f.durationUnit)
		return append(points, sum[0], sum[1], ps[0], sum[2], ps[1], ps[2], ps[3], ps[4], ps[5], sum[3]), nil
	}
	return nil, fmt.Errorf("unsupported metric kind %T", metric)
}

func gaugeValue(v any) (float64, error) {
	switch v.(type) {
	case nil, bool:
		return 0, fmt.Errorf("non-numeric gauge value %v", v)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("non-numeric gauge value: %w", err)
	}
	return f, nil
}

type metered interface {
	Count() int64
	Rate1() float64
	Rate5() float64
	Rate15() float64
	RateMean() float64
}

type summarizable interface {
	Max() int64
	Mean() float64
	Min() int64
	StdDev() float64
}

type sampled interface {
	Percentiles([]float64) []float64
}

// count, 1m, mean, 5m, 15m
func meteredPoints(m metered) []point {
	return []point{
		{SuffixCount, float64(m.Count()), ValueLong},
		{SuffixOneMinute, m.Rate1(), ValueDouble},
		{SuffixMeanRate, m.RateMean(), ValueDouble},
		{SuffixFiveMinute, m.Rate5(), ValueDouble},
		{SuffixFifteenMinute, m.Rate15(), ValueDouble},
	}
}

// max, mean, min, stddev
func summaryPoints(m summarizable) []point {
	return []point{
		{SuffixMax, float64(m.Max()), ValueLong},
		{SuffixMean, m.Mean(), ValueDouble},
		{SuffixMin, float64(m.Min()), ValueLong},
		{SuffixStdDev, m.StdDev(), ValueDouble},
	}
}

// median, p98, p95, p999, p99, p75
func snapshotPoints(m sampled) []point {
	ps := m.Percentiles(percentiles)
	return []point{
		{SuffixMedian, ps[0], ValueDouble},
		{SuffixP98, ps[3], ValueDouble},
		{SuffixP95, ps[2], ValueDouble},
		{SuffixP999, ps[5], ValueDouble},
		{SuffixP99, ps[4], ValueDouble},
		{SuffixP75, ps[1], ValueDouble},
	}
}

// Convert nanosecond points to unit.
func scaled(points []point, unit time.Duration) []point {
	du := float64(unit)
	for i := range points {
		points[i].value /= du
		points[i].valueType = ValueDouble
	}
	return points
}

// Kind of a metric as reported in logs, empty if unsupported.
func KindOf(metric any) MetricType {
	switch metric.(type) {
	case metrics.Counter:
		return TypeCounter
	case metrics.Gauge, metrics.GaugeFloat64, ValueGauge:
		return TypeGauge
	case metrics.Meter:
		return TypeMeter
	case metrics.Histogram:
		return TypeHistogram
	case metrics.Timer:
		return TypeTimer
	}
	return ""
}
