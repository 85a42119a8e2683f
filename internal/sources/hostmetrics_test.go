package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

func TestHostMetricsConfigWithDefaults(t *testing.T) {
	cfg := HostMetricsConfig{}.withDefaults()
	assert.Equal(t, 15*time.Second, cfg.Interval)
	assert.Equal(t, "host", cfg.Namespace)
}

func TestHostMetricsConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := HostMetricsConfig{Interval: time.Minute, Namespace: "edge"}.withDefaults()
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, "edge", cfg.Namespace)
}

func TestHostMetricsSourceEmitGauge(t *testing.T) {
	s := NewHostMetricsSource(HostMetricsConfig{Namespace: "edge"}, observability.NewNoOpLogger())
	group := pipeline.New(1, time.Second, observability.NewNoOpLogger())

	s.emitGauge(context.Background(), group, "cpu_percent", 42)

	work := <-group.Chan()
	var got *event.MetricEvent
	work.Process(func(ev event.Event) {
		require.Equal(t, event.KindMetric, ev.Kind())
		got = ev.AsMetric()
	})

	require.NotNil(t, got)
	assert.Equal(t, "edge.cpu_percent", got.Name)
	assert.Equal(t, "edge", got.Namespace)
	v, ok := got.Value().Gauge()
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
	require.NotNil(t, got.Timestamp)
}
