package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamforge/pipeline/internal/event"
)

func TestErrorFieldsRequiresMessage(t *testing.T) {
	l := event.NewLog()
	l.Fields.Set("level", event.Str("error"))

	_, _, ok := errorFields(event.FromLog(l))
	assert.False(t, ok)
}

func TestErrorFieldsExtractsLevelAndMessage(t *testing.T) {
	l := event.NewLog()
	l.Fields.Set("level", event.Str("fatal"))
	l.Fields.Set("message", event.Str("disk full"))

	level, msg, ok := errorFields(event.FromLog(l))
	assert.True(t, ok)
	assert.Equal(t, "fatal", level)
	assert.Equal(t, "disk full", msg)
}

func TestErrorFieldsRejectsMetricEvents(t *testing.T) {
	m := event.NewMetric("x", event.MetricAbsolute, event.GaugeValue(1))
	_, _, ok := errorFields(event.FromMetric(m))
	assert.False(t, ok)
}

func TestMatchesLevelEmptySetMatchesEverything(t *testing.T) {
	s := &SentrySink{cfg: SentrySinkConfig{}}
	assert.True(t, s.matchesLevel("info"))
}

func TestMatchesLevelRestrictsToConfiguredSet(t *testing.T) {
	s := &SentrySink{cfg: SentrySinkConfig{Levels: map[string]struct{}{"error": {}, "fatal": {}}}}
	assert.True(t, s.matchesLevel("error"))
	assert.False(t, s.matchesLevel("info"))
}
