package manage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	exporters "github.com/juvenn/timeline-exporters"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLifecycle struct {
	state   exporters.State
	periods []time.Duration
	stops   int
}

func (lc *fakeLifecycle) Start(period time.Duration) {
	lc.periods = append(lc.periods, period)
	if lc.state == exporters.StateStopped {
		lc.state = exporters.StateRunning
	}
}

func (lc *fakeLifecycle) Stop() {
	lc.stops++
	if lc.state == exporters.StateRunning {
		lc.state = exporters.StateStopped
	}
}

func (lc *fakeLifecycle) State() exporters.State { return lc.state }
func (lc *fakeLifecycle) Hostname() string       { return "node1" }
func (lc *fakeLifecycle) CollectorAddr() string  { return "127.0.0.1:8188" }

func (lc *fakeLifecycle) Config() exporters.Config {
	cfg := exporters.DefaultConfig()
	cfg.PollingInterval = 30 * time.Second
	return cfg
}

func serve(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, Status) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var st Status
	if rec.Code == http.StatusOK && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	}
	return rec, st
}

func TestStartStop(t *testing.T) {
	assert := assert.New(t)
	lc := &fakeLifecycle{state: exporters.StateStopped}
	h := Handler(lc, nil, zap.NewNop())

	rec, st := serve(t, h, http.MethodPost, "/reporter/start?period=15")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("running", st.State)
	assert.Equal("node1", st.Hostname)
	assert.Equal("http://localhost:8188/ws/v1/timeline/metrics", st.Collector)
	assert.Equal("127.0.0.1:8188", st.Addr)

	rec, _ = serve(t, h, http.MethodPost, "/reporter/start")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal([]time.Duration{15 * time.Second, 30 * time.Second}, lc.periods)

	rec, st = serve(t, h, http.MethodPost, "/reporter/stop")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("stopped", st.State)
	assert.Equal(1, lc.stops)
}

func TestBadRequests(t *testing.T) {
	assert := assert.New(t)
	lc := &fakeLifecycle{state: exporters.StateStopped}
	h := Handler(lc, nil, zap.NewNop())

	for _, period := range []string{"0", "-5", "ten", "1.5"} {
		rec, _ := serve(t, h, http.MethodPost, "/reporter/start?period="+period)
		assert.Equal(http.StatusBadRequest, rec.Code, period)
	}
	rec, _ := serve(t, h, http.MethodGet, "/reporter/start")
	assert.Equal(http.StatusMethodNotAllowed, rec.Code)
	rec, _ = serve(t, h, http.MethodGet, "/reporter/stop")
	assert.Equal(http.StatusMethodNotAllowed, rec.Code)
	rec, _ = serve(t, h, http.MethodPost, "/reporter/status")
	assert.Equal(http.StatusMethodNotAllowed, rec.Code)
	rec, _ = serve(t, h, http.MethodGet, "/metrics")
	assert.Equal(http.StatusNotFound, rec.Code, "no gatherer")
	assert.Empty(lc.periods)
	assert.Zero(lc.stops)
}

func TestStatusUninitialized(t *testing.T) {
	h := Handler(&fakeLifecycle{}, nil, zap.NewNop())
	rec, st := serve(t, h, http.MethodGet, "/reporter/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Status{State: "uninitialized"}, st)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := exporters.NewStats(reg)
	stats.Cycles.Inc()
	h := Handler(&fakeLifecycle{}, reg, zap.NewNop())
	rec, _ := serve(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "timeline_reporter_cycles_total 1")
}

func TestParsePeriod(t *testing.T) {
	assert := assert.New(t)
	du, err := parsePeriod("", 0)
	assert.NoError(err)
	assert.Equal(exporters.DefaultPollingInterval, du)
	du, err = parsePeriod("", time.Minute)
	assert.NoError(err)
	assert.Equal(time.Minute, du)
	du, err = parsePeriod("3", time.Minute)
	assert.NoError(err)
	assert.Equal(3*time.Second, du)
}
