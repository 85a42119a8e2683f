package sinks_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/sinks"
)

func TestEventToJSONLogRoundTrip(t *testing.T) {
	l := event.NewLog()
	require.NoError(t, l.Insert(event.NewPath(event.RootEvent, event.FieldSegment("message")), event.Str("hello")))
	require.NoError(t, l.Insert(event.NewPath(event.RootEvent, event.FieldSegment("count")), event.Integer(3)))

	data, err := sinks.EventToJSON(event.FromLog(l))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "hello", m["message"])
	assert.Equal(t, float64(3), m["count"])

	back, err := sinks.JSONToLogEvent(data)
	require.NoError(t, err)
	v, ok := back.Get(event.NewPath(event.RootEvent, event.FieldSegment("message")))
	require.True(t, ok)
	b, _ := v.BytesVal()
	assert.Equal(t, "hello", string(b))
}

func TestEventToJSONNestedObjectAndArray(t *testing.T) {
	l := event.NewLog()
	nested := event.NewObject()
	nested.Set("a", event.Integer(1))
	require.NoError(t, l.Insert(event.NewPath(event.RootEvent, event.FieldSegment("nested")), event.ObjectVal(nested)))
	require.NoError(t, l.Insert(
		event.NewPath(event.RootEvent, event.FieldSegment("tags")),
		event.Array([]event.Value{event.Str("x"), event.Str("y")}),
	))

	data, err := sinks.EventToJSON(event.FromLog(l))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, map[string]any{"a": float64(1)}, m["nested"])
	assert.Equal(t, []any{"x", "y"}, m["tags"])
}

func TestEventToJSONMetric(t *testing.T) {
	m := event.NewMetric("requests", event.MetricAbsolute, event.GaugeValue(1.5))
	m.AddTag("host", "a1")

	data, err := sinks.EventToJSON(event.FromMetric(m))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "requests", decoded["name"])
	assert.Equal(t, 1.5, decoded["gauge"])
}

func TestJSONToLogEventRejectsInvalidJSON(t *testing.T) {
	_, err := sinks.JSONToLogEvent([]byte("not json"))
	assert.Error(t, err)
}
