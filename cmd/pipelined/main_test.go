package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/diskbuffer"
	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/sinks"
	"github.com/streamforge/pipeline/internal/transforms"
)

func TestApplyTransformsPassesThroughWithNothingConfigured(t *testing.T) {
	l := event.NewLog()
	l.Fields.Set("message", event.Str("hi"))
	ev := event.FromLog(l)

	out, ok := applyTransforms(ev, nil, nil, nil, observability.NewNoOpLogger())
	require.True(t, ok)
	assert.Equal(t, event.KindLog, out.Kind())
	v, _ := out.AsLog().Fields.Get("message")
	b, _ := v.BytesVal()
	assert.Equal(t, "hi", string(b))
}

func TestApplyTransformsPromotesMetricShapedLog(t *testing.T) {
	l := event.NewLog()
	l.Fields.Set("name", event.Str("queue_depth"))
	l.Fields.Set("kind", event.Str("absolute"))
	gauge := event.NewObject()
	gauge.Set("value", event.FloatVal(event.MustFloat(5)))
	l.Fields.Set("gauge", event.ObjectVal(gauge))

	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())
	out, ok := applyTransforms(event.FromLog(l), nil, nil, mm, observability.NewNoOpLogger())

	require.True(t, ok)
	assert.Equal(t, event.KindMetric, out.Kind())
	assert.Equal(t, "queue_depth", out.AsMetric().Name)
}

func TestApplyTransformsLeavesNonMetricShapedLogAsLog(t *testing.T) {
	l := event.NewLog()
	l.Fields.Set("message", event.Str("just a log line"))

	mm := transforms.NewMetricMetadata(observability.NewNoOpLogger())
	out, ok := applyTransforms(event.FromLog(l), nil, nil, mm, observability.NewNoOpLogger())

	require.True(t, ok)
	assert.Equal(t, event.KindLog, out.Kind())
}

func TestDiskBufferRelayWritesAndReplaysRecord(t *testing.T) {
	buf, err := diskbuffer.Open(diskbuffer.Options{DataDir: t.TempDir(), MaxDataFileSize: 1 << 20})
	require.NoError(t, err)
	defer buf.Close()

	relay := &diskBufferRelay{buf: buf, logger: observability.NewNoOpLogger()}

	l := event.NewLog()
	l.Fields.Set("message", event.Str("durable"))

	var status event.Status
	l.Metadata.Finalizers.Add(event.FinalizerFunc(func(s event.Status) { status = s }))

	relay.Submit(workFromLogForTest(l))
	assert.Equal(t, event.Delivered, status)

	data, err := buf.ReadNext()
	require.NoError(t, err)

	back, err := sinks.JSONToLogEvent(data)
	require.NoError(t, err)
	v, ok := back.Get(event.NewPath(event.RootEvent, event.FieldSegment("message")))
	require.True(t, ok)
	b, _ := v.BytesVal()
	assert.Equal(t, "durable", string(b))
}

func TestDiskBufferRelayDrainDeadlineCtxNeverCancelled(t *testing.T) {
	relay := &diskBufferRelay{}
	assert.NoError(t, relay.DrainDeadlineCtx().Err())
}

func workFromLogForTest(l *event.LogEvent) testWork {
	return testWork{ev: event.FromLog(l)}
}

type testWork struct{ ev event.Event }

func (w testWork) Accept(fn func(event.Event)) bool { fn(w.ev); return true }
func (w testWork) Process(fn func(event.Event))     { fn(w.ev) }
func (w testWork) DebugInfo() string                { return "testWork" }
