// Package manage exposes the reporter lifecycle over http:
//
//	POST /reporter/start?period=10  start reporting every 10 seconds
//	POST /reporter/stop             stop reporting
//	GET  /reporter/status           state, hostname, collector and its address
//	GET  /metrics                   self metrics in prometheus format
package manage

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	exporters "github.com/juvenn/timeline-exporters"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Lifecycle operations managed, implemented by *exporters.Scheduler.
type Lifecycle interface {
	Start(period time.Duration)
	Stop()
	State() exporters.State
	Hostname() string
	CollectorAddr() string
	Config() exporters.Config
}

type Status struct {
	State     string `json:"state"`
	Hostname  string `json:"hostname,omitempty"`
	Collector string `json:"collector,omitempty"`
	Addr      string `json:"addr,omitempty"`
}

type handler struct {
	lc     Lifecycle
	logger *zap.Logger
}

// Handler serving lifecycle operations, and self metrics from gatherer if
// not nil.
func Handler(lc Lifecycle, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	h := &handler{lc: lc, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/reporter/start", h.start)
	mux.HandleFunc("/reporter/stop", h.stop)
	mux.HandleFunc("/reporter/status", h.status)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (h *handler) start(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	period, err := parsePeriod(req.URL.Query().Get("period"), h.lc.Config().PollingInterval)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Info("Start requested", zap.Duration("period", period), zap.String("remote", req.RemoteAddr))
	h.lc.Start(period)
	h.writeStatus(w)
}

func (h *handler) stop(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.logger.Info("Stop requested", zap.String("remote", req.RemoteAddr))
	h.lc.Stop()
	h.writeStatus(w)
}

func (h *handler) status(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeStatus(w)
}

func (h *handler) writeStatus(w http.ResponseWriter) {
	st := Status{State: h.lc.State().String()}
	if st.State != exporters.StateUninitialized.String() {
		st.Hostname = h.lc.Hostname()
		st.Collector = h.lc.Config().CollectorURI()
		st.Addr = h.lc.CollectorAddr()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		h.logger.Warn("Failed to write status", zap.Error(err))
	}
}

// Period in seconds, default to def or else the default polling interval.
func parsePeriod(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		if def > 0 {
			return def, nil
		}
		return exporters.DefaultPollingInterval, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("period must be a positive number of seconds, got %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}
