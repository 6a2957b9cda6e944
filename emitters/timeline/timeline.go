// Package timeline emits samples to a timeline metrics collector, e.g.
// http://localhost:8188/ws/v1/timeline/metrics
package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	exporters "github.com/juvenn/timeline-exporters"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const userAgent = "timeline-exporter/0.1.0"

func NewEmitter(collectorUri string, opts ...Option) (*timelineEmitter, error) {
	u, err := url.Parse(collectorUri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("Collector uri must be http(s), got %q", collectorUri)
	}
	em := &timelineEmitter{
		collectorUrl: u,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(em)
	}
	return em, nil
}

// Http emitter posting batches as timeline metrics json, each batch is
// delivered at most once.
type timelineEmitter struct {
	collectorUrl *url.URL
	compress     bool // gzip request body
	http         *http.Client
	logger       *zap.Logger
}

// Wire form of one sample, values keyed by millis since epoch.
type timelineMetric struct {
	MetricName string             `json:"metricname"`
	AppID      string             `json:"appid"`
	HostName   string             `json:"hostname"`
	StartTime  int64              `json:"starttime"`
	Type       string             `json:"type,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
}

type timelineMetrics struct {
	Metrics []timelineMetric `json:"metrics"`
}

func encodeBatch(batch exporters.Batch) ([]byte, error) {
	tms := timelineMetrics{Metrics: make([]timelineMetric, 0, len(batch))}
	for _, s := range batch {
		tms.Metrics = append(tms.Metrics, timelineMetric{
			MetricName: s.Name,
			AppID:      s.AppID,
			HostName:   s.HostName,
			StartTime:  s.Timestamp,
			Type:       s.ValueType,
			Metrics:    map[string]float64{strconv.FormatInt(s.Timestamp, 10): s.Value},
		})
	}
	return json.Marshal(tms)
}

func (this *timelineEmitter) Emit(batch exporters.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	body, err := encodeBatch(batch)
	if err != nil {
		return fmt.Errorf("encode %d points: %w", len(batch), err)
	}
	size := len(body)
	if this.compress {
		if body, err = gzipBytes(body); err != nil {
			return fmt.Errorf("compress %d points: %w", len(batch), err)
		}
	}
	if err := this.request(body); err != nil {
		return err
	}
	this.logger.Debug("Posted timeline metrics",
		zap.Int("points", len(batch)),
		zap.String("size", humanize.Bytes(uint64(size))),
		zap.String("sent", humanize.Bytes(uint64(len(body)))))
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (this *timelineEmitter) request(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, this.collectorUrl.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if this.compress {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := this.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bstr, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s %s %s", http.MethodPost, this.collectorUrl, resp.Status, string(bstr))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (this *timelineEmitter) Close() error {
	this.http.CloseIdleConnections()
	return nil
}

type Option func(*timelineEmitter)

// Http request timeout, default to 5s.
func WithRequestTimeout(du time.Duration) Option {
	return func(em *timelineEmitter) {
		em.http.Timeout = du
	}
}

// Gzip request body, the collector must accept Content-Encoding: gzip.
func WithCompression(flag bool) Option {
	return func(em *timelineEmitter) {
		em.compress = flag
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(em *timelineEmitter) {
		em.logger = logger
	}
}
