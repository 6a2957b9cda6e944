package influx

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	exporters "github.com/juvenn/timeline-exporters"
)

func NewV2Emitter(writeUrl string, bucket string, opts ...Option) (*influxEmitter, error) {
	em, err := newEmitter(writeUrl, opts...)
	if err != nil {
		return nil, err
	}
	em.v2 = true
	em.params.Set("bucket", bucket)
	return em, nil
}

func NewV1Emitter(writeUrl, database string, opts ...Option) (*influxEmitter, error) {
	em, err := newEmitter(writeUrl, opts...)
	if err != nil {
		return nil, err
	}
	em.params.Set("db", database)
	return em, nil
}

func newEmitter(writeUrl string, opts ...Option) (*influxEmitter, error) {
	url, err := url.Parse(writeUrl)
	if err != nil {
		return nil, err
	}
	em := &influxEmitter{
		writeUrl:  url,
		precision: "ms",
		params:    url.Query(),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(em)
	}
	if !validPrecisions[em.precision] {
		return nil, fmt.Errorf("Influx precision must be one of [ns,u,us,ms,s]")
	}
	em.params.Set("precision", em.precision)
	return em, nil
}

// Http based influx emitter that supports both v1 and v2 ednpoints.
// See https://docs.influxdata.com/influxdb/v1.8/tools/api/#influxdb-20-api-compatibility-endpoints
type influxEmitter struct {
	writeUrl  *url.URL   // Influx url
	v2        bool       // v2 or not
	params    url.Values // Influx url params
	username  string
	password  string
	authtoken string // for v2 only
	precision string
	http      *http.Client
}

func (this *influxEmitter) buildUrl() string {
	u := *this.writeUrl
	u.RawQuery = this.params.Encode()
	return u.String()
}

// Encode sample as influx line protocol, the sample name being measurement:
//
//	kafka.server.BrokerTopicMetrics.MessagesInPerSec.count,appid=kafka_broker,host=node1 value=1027 1395066363000
func encodeLine(sample *exporters.MetricSample, precision string) string {
	var sb strings.Builder
	sb.WriteString(escape(sample.Name))
	if sample.AppID != "" {
		sb.WriteString(",appid=")
		sb.WriteString(escape(sample.AppID))
	}
	if sample.HostName != "" {
		sb.WriteString(",host=")
		sb.WriteString(escape(sample.HostName))
	}
	sb.WriteString(fmt.Sprintf(" value=%g", sample.Value))
	// write timestamp
	ts := sample.Time()
	sb.WriteString(" ")
	var tss string
	switch precision {
	case "ns":
		tss = fmt.Sprintf("%d", ts.UnixNano())
	case "u", "us":
		tss = fmt.Sprintf("%d", ts.UnixMicro())
	case "ms":
		tss = fmt.Sprintf("%d", ts.UnixMilli())
	default:
		tss = fmt.Sprintf("%d", ts.Unix())
	}
	sb.WriteString(tss)
	return sb.String()
}

var escaper = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)

func escape(s string) string {
	return escaper.Replace(s)
}

func (this *influxEmitter) Close() error {
	return nil
}

func (this *influxEmitter) Emit(batch exporters.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	var lines strings.Builder
	for i := range batch {
		lines.WriteString(encodeLine(&batch[i], this.precision))
		lines.WriteString("\n")
	}
	return this.request(bytes.NewBufferString(lines.String()))
}

func (this *influxEmitter) request(body io.Reader) error {
	writeUrl := this.buildUrl()
	req, err := http.NewRequest(http.MethodPost, writeUrl, body)
	if err != nil {
		return err
	}
	if this.v2 {
		if this.authtoken != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Token %s", this.authtoken))
		} else if this.username != "" && this.password != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Token %s:%s", this.username, this.password))
		}
	} else {
		if this.username != "" && this.password != "" {
			req.SetBasicAuth(this.username, this.password)
		}
	}
	req.Header.Set("user-agent", "timeline-exporter/0.1.0")
	resp, err := this.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		bstr, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s %s %s", http.MethodPost, writeUrl, resp.Status, string(bstr))
	}
	return nil
}

type Option func(*influxEmitter)

// ### Common options

// Timestamp precision used to encode metric, can be one of [ns,u,us,ms,s], default to ms.
func WithPrecision(p string) Option {
	return func(em *influxEmitter) {
		em.precision = p
	}
}

var (
	validPrecisions = map[string]bool{
		"ns": true,
		"u":  true, // same as us
		"us": true,
		"ms": true,
		"s":  true,
	}
)

// User pass authentication
func WithUserAuth(user, pass string) Option {
	return func(em *influxEmitter) {
		em.username = user
		em.password = pass
	}
}

// Http request timeout, default to 5s.
func WithRequestTimeout(du time.Duration) Option {
	return func(em *influxEmitter) {
		em.http.Timeout = du
	}
}

// ### V2 options

// Influx API token, v2 only.
// See https://docs.influxdata.com/influxdb/v2.4/security/tokens/
func WithAuthToken(token string) Option {
	return func(em *influxEmitter) {
		em.authtoken = token
	}
}

// Org name, v2 only.
func WithOrg(org string) Option {
	return func(em *influxEmitter) {
		em.params.Set("org", org)
	}
}

// ### V1 options

// Retention policy, v1 only
func WithRetentionPolicy(rp string) Option {
	return func(em *influxEmitter) {
		em.params.Set("rp", rp)
	}
}
