package exporters

import (
	"math"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testName = MetricName{Group: "kafka.server", Type: "BrokerTopicMetrics", Name: "MessagesInPerSec"}

const testBase = "kafka.server.BrokerTopicMetrics.MessagesInPerSec"

func newTestFlattener() *Flattener {
	return NewFlattener(NewPointCache(DefaultMaxRows, time.Minute), "node1", DefaultAppID, DefaultDurationUnit)
}

// Read back the samples of names from cache.
func cached(t *testing.T, f *Flattener, names []string) map[string]MetricSample {
	t.Helper()
	out := make(map[string]MetricSample, len(names))
	for _, name := range names {
		s, ok := f.cache.Get(name)
		require.True(t, ok, "%s should be cached", name)
		out[name] = s
	}
	return out
}

type stubMeter struct {
	metrics.Meter
	count             int64
	m1, m5, m15, mean float64
}

func (m stubMeter) Snapshot() metrics.Meter { return m }
func (m stubMeter) Count() int64            { return m.count }
func (m stubMeter) Rate1() float64          { return m.m1 }
func (m stubMeter) Rate5() float64          { return m.m5 }
func (m stubMeter) Rate15() float64         { return m.m15 }
func (m stubMeter) RateMean() float64       { return m.mean }

type valueGauge struct{ v any }

func (g valueGauge) Value() any { return g.v }

type panicGauge struct{}

func (panicGauge) Value() any { panic("broken gauge") }

func TestFlattenCounter(t *testing.T) {
	f := newTestFlattener()
	counter := metrics.NewCounter()
	counter.Inc(42)
	names, err := f.Flatten(testName, counter)
	require.NoError(t, err)
	assert.Equal(t, []string{testBase + ".count"}, names)
	s := cached(t, f, names)[testBase+".count"]
	assert.Equal(t, 42.0, s.Value)
	assert.Equal(t, "node1", s.HostName)
	assert.Equal(t, DefaultAppID, s.AppID)
	assert.Equal(t, ValueLong, s.ValueType)
	assert.InDelta(t, time.Now().UnixMilli(), s.Timestamp, 5000)
}

func TestFlattenGauge(t *testing.T) {
	assert := assert.New(t)
	f := newTestFlattener()
	gauge := metrics.NewGauge()
	gauge.Update(7)
	names, err := f.Flatten(testName, gauge)
	require.NoError(t, err)
	assert.Equal([]string{testBase}, names)
	assert.Equal(7.0, cached(t, f, names)[testBase].Value)

	gf := metrics.NewGaugeFloat64()
	gf.Update(0.25)
	names, err = f.Flatten(testName, gf)
	require.NoError(t, err)
	assert.Equal(0.25, cached(t, f, names)[testBase].Value)
}

func TestFlattenValueGauge(t *testing.T) {
	assert := assert.New(t)
	f := newTestFlattener()
	for _, v := range []any{7, int64(7), float32(7), 7.0, "7", "7.0"} {
		names, err := f.Flatten(testName, valueGauge{v})
		if assert.NoError(err, "%#v", v) {
			assert.Equal(7.0, cached(t, f, names)[testBase].Value)
		}
	}
	for _, v := range []any{"seven", nil, true, struct{}{}, math.NaN(), math.Inf(1)} {
		names, err := f.Flatten(testName, valueGauge{v})
		assert.Error(err, "%#v", v)
		assert.Empty(names)
	}
}

func TestFlattenMeter(t *testing.T) {
	assert := assert.New(t)
	f := newTestFlattener()
	meter := stubMeter{count: 10, m1: 1.5, mean: 2.0, m5: 1.0, m15: 0.5}
	names, err := f.Flatten(testName, meter)
	require.NoError(t, err)
	assert.Len(names, 5)
	samples := cached(t, f, names)
	expected := map[string]float64{
		".count":        10,
		".1MinuteRate":  1.5,
		".meanRate":     2.0,
		".5MinuteRate":  1.0,
		".15MinuteRate": 0.5,
	}
	for suffix, v := range expected {
		if assert.Contains(samples, testBase+suffix) {
			assert.Equal(v, samples[testBase+suffix].Value, suffix)
		}
	}
}

func TestFlattenHistogram(t *testing.T) {
	assert := assert.New(t)
	f := newTestFlattener()
	h := metrics.NewHistogram(metrics.NewUniformSample(100))
	for i := int64(1); i <= 100; i++ {
		h.Update(i)
	}
	names, err := f.Flatten(testName, h)
	require.NoError(t, err)
	assert.Equal([]string{
		testBase + ".max",
		testBase + ".mean",
		testBase + ".median",
		testBase + ".min",
		testBase + ".98percentile",
		testBase + ".95percentile",
		testBase + ".999percentile",
		testBase + ".99percentile",
		testBase + ".75percentile",
		testBase + "stddev",
	}, names)
	samples := cached(t, f, names)
	assert.Equal(100.0, samples[testBase+".max"].Value)
	assert.Equal(1.0, samples[testBase+".min"].Value)
	assert.Equal(50.5, samples[testBase+".mean"].Value)
	assert.InDelta(50.5, samples[testBase+".median"].Value, 0.01)
}

func TestFlattenTimer(t *testing.T) {
	assert := assert.New(t)
	f := newTestFlattener()
	timer := metrics.NewTimer()
	timer.Update(10 * time.Millisecond)
	timer.Update(20 * time.Millisecond)
	names, err := f.Flatten(testName, timer)
	require.NoError(t, err)
	assert.Len(names, 15)
	unique := make(map[string]bool)
	for _, name := range names {
		unique[name] = true
	}
	assert.Len(unique, 15, "no duplicate names")
	samples := cached(t, f, names)
	assert.Equal(2.0, samples[testBase+".count"].Value)
	assert.Equal(20.0, samples[testBase+".max"].Value, "in milliseconds")
	assert.Equal(10.0, samples[testBase+".min"].Value)
	assert.Equal(15.0, samples[testBase+".mean"].Value)
	assert.InDelta(15.0, samples[testBase+".median"].Value, 0.01)
	assert.Contains(samples, testBase+"stddev")
	assert.Contains(samples, testBase+".15MinuteRate")
	assert.Contains(samples, testBase+".999percentile")
}

func TestFlattenTimerUnit(t *testing.T) {
	f := NewFlattener(NewPointCache(DefaultMaxRows, time.Minute), "node1", DefaultAppID, time.Second)
	timer := metrics.NewTimer()
	timer.Update(1500 * time.Millisecond)
	names, err := f.Flatten(testName, timer)
	require.NoError(t, err)
	samples := cached(t, f, names)
	assert.Equal(t, 1.5, samples[testBase+".max"].Value)
	assert.Equal(t, 1.0, samples[testBase+".count"].Value, "counts are not scaled")

	f = NewFlattener(NewPointCache(DefaultMaxRows, time.Minute), "node1", DefaultAppID, 0)
	assert.Equal(t, DefaultDurationUnit, f.durationUnit)
}

func TestFlattenFailure(t *testing.T) {
	assert := assert.New(t)
	f := newTestFlattener()

	names, err := f.Flatten(testName, panicGauge{})
	assert.ErrorContains(err, "broken gauge")
	assert.Empty(names)

	names, err = f.Flatten(testName, metrics.NewEWMA1())
	assert.ErrorContains(err, "unsupported metric kind")
	assert.Empty(names)

	_, ok := f.cache.Get(testBase)
	assert.False(ok, "nothing cached on failure")
}

func TestKindOf(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(TypeCounter, KindOf(metrics.NewCounter()))
	assert.Equal(TypeGauge, KindOf(metrics.NewGauge()))
	assert.Equal(TypeGauge, KindOf(valueGauge{1}))
	assert.Equal(TypeMeter, KindOf(stubMeter{}))
	assert.Equal(TypeHistogram, KindOf(metrics.NewHistogram(metrics.NewUniformSample(10))))
	assert.Equal(TypeTimer, KindOf(metrics.NewTimer()))
	assert.Equal(MetricType(""), KindOf(42))
}
