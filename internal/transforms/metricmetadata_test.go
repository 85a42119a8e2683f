package transforms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/transforms"
)

func logField(t *testing.T, l *event.LogEvent, field string, v event.Value) {
	t.Helper()
	require.NoError(t, l.Insert(event.NewPath(event.RootEvent, event.FieldSegment(field)), v))
}

func logNestedField(t *testing.T, l *event.LogEvent, a, b string, v event.Value) {
	t.Helper()
	require.NoError(t, l.Insert(event.NewPath(event.RootEvent, event.FieldSegment(a), event.FieldSegment(b)), v))
}

func TestMetricMetadataCounter(t *testing.T) {
	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())

	l := event.NewLog()
	logField(t, l, "name", event.Str("requests_total"))
	logField(t, l, "kind", event.Str("incremental"))
	logNestedField(t, l, "counter", "value", event.FloatVal(event.MustFloat(3)))

	out, ok := mm.Transform(event.FromLog(l))
	require.True(t, ok)
	require.Equal(t, event.KindMetric, out.Kind())

	m := out.AsMetric()
	assert.Equal(t, "requests_total", m.Name)
	assert.Equal(t, event.MetricIncremental, m.MKind)
	v, isCounter := m.Value().Counter()
	assert.True(t, isCounter)
	assert.Equal(t, 3.0, v)
}

func TestMetricMetadataGaugeWithTagsAndNamespace(t *testing.T) {
	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())

	l := event.NewLog()
	logField(t, l, "name", event.Str("queue_depth"))
	logField(t, l, "kind", event.Str("absolute"))
	logField(t, l, "namespace", event.Str("ingest"))
	logNestedField(t, l, "gauge", "value", event.FloatVal(event.MustFloat(42.5)))

	tags := event.NewObject()
	tags.Set("host", event.Str("a1"))
	logField(t, l, "tags", event.ObjectVal(tags))

	out, ok := mm.Transform(event.FromLog(l))
	require.True(t, ok)

	m := out.AsMetric()
	assert.Equal(t, "ingest", m.Namespace)
	v, isGauge := m.Value().Gauge()
	assert.True(t, isGauge)
	assert.Equal(t, 42.5, v)
	assert.Equal(t, []string{"a1"}, m.Tags["host"])
}

func TestMetricMetadataDistribution(t *testing.T) {
	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())

	l := event.NewLog()
	logField(t, l, "name", event.Str("latency"))
	logField(t, l, "kind", event.Str("incremental"))
	logNestedField(t, l, "distribution", "statistic", event.Str("histogram"))

	sample := event.NewObject()
	sample.Set("value", event.FloatVal(event.MustFloat(1.5)))
	sample.Set("rate", event.Integer(2))
	require.NoError(t, l.Insert(
		event.NewPath(event.RootEvent, event.FieldSegment("distribution"), event.FieldSegment("samples")),
		event.Array([]event.Value{event.ObjectVal(sample)}),
	))

	out, ok := mm.Transform(event.FromLog(l))
	require.True(t, ok)

	samples, stat, isDist := out.AsMetric().Value().Distribution()
	require.True(t, isDist)
	assert.Equal(t, event.StatisticHistogram, stat)
	require.Len(t, samples, 1)
	assert.Equal(t, 1.5, samples[0].Value)
	assert.Equal(t, uint32(2), samples[0].Count)
}

func TestMetricMetadataRejectsNonMetricShapedLog(t *testing.T) {
	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())

	l := event.NewLog()
	logField(t, l, "message", event.Str("hello"))

	_, ok := mm.Transform(event.FromLog(l))
	assert.False(t, ok)
}

func TestMetricMetadataRejectsInvalidKind(t *testing.T) {
	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())

	l := event.NewLog()
	logField(t, l, "name", event.Str("x"))
	logField(t, l, "kind", event.Str("bogus"))
	logNestedField(t, l, "gauge", "value", event.FloatVal(event.MustFloat(1)))

	_, ok := mm.Transform(event.FromLog(l))
	assert.False(t, ok)
}

func TestMetricMetadataIgnoresNonLogEvents(t *testing.T) {
	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())

	m := event.NewMetric("already_a_metric", event.MetricAbsolute, event.GaugeValue(1))
	_, ok := mm.Transform(event.FromMetric(m))
	assert.False(t, ok)
}
