package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamforge/pipeline/internal/event"
)

func TestSanitizeMetricName(t *testing.T) {
	cases := map[string]string{
		"requests_total":   "requests_total",
		"requests.total":   "requests_total",
		"3xx":               "_xx",
		"":                  "unnamed",
		"go_routine:count": "go_routine:count",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeMetricName(in), "input %q", in)
	}
}

func TestSanitizedLabelsSortedAndDeduplicated(t *testing.T) {
	names, values := sanitizedLabels(map[string][]string{
		"host":   {"a1"},
		"region": {"us-east", "us-west"},
	})

	assert.Equal(t, []string{"host", "region"}, names)
	assert.Equal(t, []string{"a1", "us-east,us-west"}, values)
}

func TestSanitizedLabelsDropsInvalidNames(t *testing.T) {
	names, _ := sanitizedLabels(map[string][]string{
		"": {"whatever"},
	})
	assert.Empty(t, names)
}

func TestMetricKey(t *testing.T) {
	m := event.NewMetric("name", event.MetricAbsolute, event.GaugeValue(1))
	m.Namespace = "ns"
	assert.Equal(t, "ns/name", metricKey(m))
}
