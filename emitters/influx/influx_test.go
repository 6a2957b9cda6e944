package influx

import (
	"testing"
	"time"

	exporters "github.com/juvenn/timeline-exporters"
	"github.com/stretchr/testify/assert"
)

func TestEncodeLine(t *testing.T) {
	ts := time.Unix(1667123357, 0).UnixMilli()
	cases := []struct {
		sample    *exporters.MetricSample
		precision string
		out       string
	}{
		{
			sample:    &exporters.MetricSample{Name: "req.count", HostName: "localhost", Timestamp: ts, Value: 1},
			precision: "s",
			out:       "req.count,host=localhost value=1 1667123357",
		},
		{
			sample:    &exporters.MetricSample{Name: "req.mean", AppID: "kafka_broker", HostName: "localhost", Timestamp: ts, Value: 2.5},
			precision: "ms",
			out:       "req.mean,appid=kafka_broker,host=localhost value=2.5 1667123357000",
		},
		{
			// escaped
			sample:    &exporters.MetricSample{Name: "req count", AppID: "a,b", HostName: "x=y", Timestamp: ts, Value: 1},
			precision: "us",
			out:       `req\ count,appid=a\,b,host=x\=y value=1 1667123357000000`,
		},
	}
	assert := assert.New(t)
	for _, tc := range cases {
		assert.Equal(tc.out, encodeLine(tc.sample, tc.precision))
	}
}

func TestInvalidPrecision(t *testing.T) {
	_, err := NewV1Emitter("http://127.0.0.1/write", "req", WithPrecision("m"))
	assert.Error(t, err)
}
