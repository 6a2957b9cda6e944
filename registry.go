package exporters

import (
	"strings"

	"github.com/rcrowley/go-metrics"
)

// Registry yields its current complete set of metrics on each call to Each.
type Registry interface {
	Each(fn func(name MetricName, metric any))
}

type RegistryFunc func(fn func(name MetricName, metric any))

func (f RegistryFunc) Each(fn func(name MetricName, metric any)) {
	f(fn)
}

// Adapt a go-metrics registry, names are parsed with ParseMetricName.
func FromGoMetrics(reg metrics.Registry) Registry {
	return goMetricsRegistry{reg: reg}
}

type goMetricsRegistry struct {
	reg metrics.Registry
}

func (r goMetricsRegistry) Each(fn func(name MetricName, metric any)) {
	r.reg.Each(func(name string, metric interface{}) {
		fn(ParseMetricName(name), metric)
	})
}

// Name in the form group:type=T,name=N[,scope=S], which parses back to mn.
func (mn MetricName) MBeanName() string {
	var sb strings.Builder
	sb.WriteString(mn.Group)
	sb.WriteString(":type=")
	sb.WriteString(mn.Type)
	sb.WriteString(",name=")
	sb.WriteString(mn.Name)
	if mn.HasScope() {
		sb.WriteString(",scope=")
		sb.WriteString(mn.Scope)
	}
	return sb.String()
}

// Register metric to a go-metrics registry under its mbean name. Kinds unknown
// to go-metrics, e.g. a ValueGauge, are silently dropped by it, report those
// through a RegistryFunc instead.
func Register(reg metrics.Registry, mn MetricName, metric any) error {
	return reg.Register(mn.MBeanName(), metric)
}
