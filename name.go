package exporters

import (
	"strings"
)

// A structured metric identifier, e.g. the JMX style
// kafka.server:type=BrokerTopicMetrics,name=MessagesInPerSec,topic=orders
type MetricName struct {
	Group string
	Type  string
	Name  string
	Scope string
}

func (mn MetricName) HasScope() bool {
	return mn.Scope != ""
}

func (mn MetricName) IsZero() bool {
	return mn == MetricName{}
}

// Unstructured if only a name, maybe scoped, as parsed from a plain
// registry name.
func (mn MetricName) unstructured() bool {
	return mn.Group == "" && mn.Type == ""
}

// Qualified name group.type.name[.scope], components joined even if empty.
// An unstructured name maps to name[.scope].
func (mn MetricName) String() string {
	if mn.IsZero() {
		return ""
	}
	name := mn.Group + "." + mn.Type + "." + mn.Name
	if mn.unstructured() {
		name = mn.Name
	}
	if mn.HasScope() {
		name += "." + mn.Scope
	}
	return name
}

// Parse a registry name into a structured one. Names in the form of
//
//	group:type=T,name=N[,scope=S]
//
// are split into their components, any other key=value pairs after name
// are folded into the scope in registration order, e.g.
// "kafka.server:type=BrokerTopicMetrics,name=BytesInPerSec,topic=orders"
// yields scope "topic.orders". Anything else becomes the Name as is.
func ParseMetricName(raw string) MetricName {
	group, props, ok := strings.Cut(raw, ":")
	if !ok || !strings.Contains(props, "=") {
		return MetricName{Name: raw}
	}
	mn := MetricName{Group: group}
	var scope []string
	for _, kv := range strings.Split(props, ",") {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case "type":
			mn.Type = v
		case "name":
			mn.Name = v
		case "scope":
			scope = append(scope, v)
		default:
			scope = append(scope, k, v)
		}
	}
	mn.Scope = strings.Join(scope, ".")
	return mn
}

// Sanitize qualified name so that it only contains [A-Za-z0-9_.\-\x00],
// any other char is replaced by underscore.
func SanitizeName(mn MetricName) string {
	if mn.IsZero() {
		return ""
	}
	return sanitize(mn.String())
}

func sanitize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if isWireSafe(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func isWireSafe(c rune) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '.', c == 0:
		return true
	}
	return false
}
