// Package sinks holds the Event egress adapters from SPEC_FULL.md §B: thin
// collaborators that drain a pipeline.TaskGroup's Work channel and hand
// Events to some external system, finalizing each with Delivered, Errored,
// or Rejected exactly once (spec.md §6's egress contract).
package sinks

import (
	"encoding/json"
	"fmt"

	"github.com/streamforge/pipeline/internal/event"
)

// EventToJSON renders an Event as a single JSON object, the wire shape every
// line/batch-oriented sink in this package uses. Log and Trace events become
// their field object; Metric events become a small envelope describing the
// metric's shape. This is intentionally independent of internal/event's
// EstimatedJSONSize, which only estimates a byte count and never encodes.
func EventToJSON(ev event.Event) ([]byte, error) {
	switch ev.Kind() {
	case event.KindLog:
		return json.Marshal(objectToJSON(ev.AsLog().Fields))
	case event.KindTrace:
		return json.Marshal(objectToJSON(ev.AsTrace().Fields))
	case event.KindMetric:
		return json.Marshal(metricToJSON(ev.AsMetric()))
	default:
		return nil, fmt.Errorf("sinks: unknown event kind %v", ev.Kind())
	}
}

func objectToJSON(o *event.Object) map[string]any {
	if o == nil {
		return map[string]any{}
	}
	m := make(map[string]any, o.Len())
	for _, k := range o.Keys() {
		v, _ := o.Get(k)
		m[k] = valueToJSON(v)
	}
	return m
}

func valueToJSON(v event.Value) any {
	switch v.Kind() {
	case event.KindNull:
		return nil
	case event.KindBool:
		b, _ := v.Bool()
		return b
	case event.KindInteger:
		i, _ := v.Integer()
		return i
	case event.KindFloat:
		f, _ := v.Float()
		return f.Value()
	case event.KindBytes:
		b, _ := v.BytesVal()
		return string(b)
	case event.KindTimestamp:
		t, _ := v.TimestampVal()
		return t.Format("2006-01-02T15:04:05.000000000Z07:00")
	case event.KindRegex:
		r, _ := v.RegexVal()
		if r == nil {
			return nil
		}
		return r.String()
	case event.KindArray:
		arr, _ := v.ArrayVal()
		out := make([]any, len(arr))
		for i, el := range arr {
			out[i] = valueToJSON(el)
		}
		return out
	case event.KindObject:
		obj, _ := v.ObjectRef()
		return objectToJSON(obj)
	default:
		return nil
	}
}

func metricToJSON(m *event.MetricEvent) map[string]any {
	out := map[string]any{
		"name":      m.Name,
		"namespace": m.Namespace,
		"tags":      m.Tags,
	}
	if m.Timestamp != nil {
		out["timestamp"] = *m.Timestamp
	}
	val := m.Value()
	switch val.Type() {
	case event.ValueCounter:
		v, _ := val.Counter()
		out["counter"] = v
	case event.ValueGauge:
		v, _ := val.Gauge()
		out["gauge"] = v
	case event.ValueSet:
		set, _ := val.Set()
		members := make([]string, 0, len(set))
		for k := range set {
			members = append(members, k)
		}
		out["set"] = members
	case event.ValueDistribution:
		samples, stat, _ := val.Distribution()
		out["distribution"] = samples
		out["statistic"] = stat
	case event.ValueAggregatedHistogram:
		buckets, sum, count, _ := val.AggregatedHistogram()
		out["buckets"] = buckets
		out["sum"] = sum
		out["count"] = count
	case event.ValueAggregatedSummary:
		quantiles, sum, count, _ := val.AggregatedSummary()
		out["quantiles"] = quantiles
		out["sum"] = sum
		out["count"] = count
	}
	return out
}

// JSONToLogEvent is the inverse of EventToJSON's Log/Trace branch, used by
// sources that read back objects a sink wrote (e.g. internal/sources/s3source.go
// replaying its own bucket).
func JSONToLogEvent(data []byte) (*event.LogEvent, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	l := event.NewLog()
	for k, v := range m {
		if err := l.Insert(event.NewPath(event.RootEvent, event.FieldSegment(k)), anyToValue(v)); err != nil {
			return nil, fmt.Errorf("sinks: inserting field %q: %w", k, err)
		}
	}
	return l, nil
}

func anyToValue(v any) event.Value {
	switch x := v.(type) {
	case nil:
		return event.Null()
	case bool:
		return event.Bool(x)
	case string:
		return event.Str(x)
	case float64:
		return event.FloatVal(event.MustFloat(x))
	case []any:
		vals := make([]event.Value, len(x))
		for i, el := range x {
			vals[i] = anyToValue(el)
		}
		return event.Array(vals)
	case map[string]any:
		obj := event.NewObject()
		for k, el := range x {
			obj.Set(k, anyToValue(el))
		}
		return event.ObjectVal(obj)
	default:
		return event.Str(fmt.Sprintf("%v", x))
	}
}
