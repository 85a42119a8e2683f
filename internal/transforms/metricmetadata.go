// Package transforms holds the event-reshaping transform kinds SPEC_FULL.md
// §D adds alongside the VRL-based remap transform (internal/vrl): kinds the
// original ships that spec.md's Non-goals don't name, so aren't excluded.
package transforms

import (
	"fmt"
	"time"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
)

// MetricMetadata converts a structured Log event into a Metric event,
// grounded directly on original_source/src/transforms/metric_metadata.rs's
// to_metric: a log with a "kind" ("absolute"/"incremental"), a "name", and
// exactly one of a "counter", "gauge", "distribution", "histogram", or
// "summary" field becomes the corresponding Metric. Any other log is
// dropped with a logged reason, matching the original's per-failure-kind
// emit! calls (MetricMetadataInvalidFieldValueError, ParserMissingFieldError,
// MetricMetadataParseFloatError/ParseIntError/ParseArrayError).
type MetricMetadata struct {
	logger *observability.CoreLogger
}

func NewMetricMetadata(logger *observability.CoreLogger) *MetricMetadata {
	return &MetricMetadata{logger: logger}
}

// Transform converts ev (which must be a Log event) to a Metric event. It
// returns ok=false if ev isn't a recognizable metric-shaped log, logging
// why at Warn level, matching the original's "drop and record" behavior
// rather than propagating a compile-time-style error.
func (mm *MetricMetadata) Transform(ev event.Event) (event.Event, bool) {
	if ev.Kind() != event.KindLog {
		return event.Event{}, false
	}
	m, err := toMetric(ev.AsLog())
	if err != nil {
		mm.logger.CaptureWarn("transforms: metric_metadata dropped event", "error", err.Error())
		return event.Event{}, false
	}
	return event.FromMetric(m), true
}

func toMetric(log *event.LogEvent) (*event.MetricEvent, error) {
	name, err := getStr(log, "name")
	if err != nil {
		return nil, err
	}

	kindStr, err := getStr(log, "kind")
	if err != nil {
		return nil, err
	}
	var kind event.MetricKind
	switch kindStr {
	case "absolute":
		kind = event.MetricAbsolute
	case "incremental":
		kind = event.MetricIncremental
	default:
		return nil, fmt.Errorf("invalid value %q for field %q", kindStr, "kind")
	}

	value, err := metricValue(log)
	if err != nil {
		return nil, err
	}

	m := event.NewMetric(name, kind, value)
	if ns, err := getStr(log, "namespace"); err == nil {
		m.Namespace = ns
	}
	if tagsVal, ok := log.Get(event.NewPath(event.RootEvent, event.FieldSegment("tags"))); ok {
		if obj, ok := tagsVal.ObjectRef(); ok {
			for _, k := range obj.Keys() {
				v, _ := obj.Get(k)
				if b, ok := v.BytesVal(); ok {
					m.AddTag(k, string(b))
				}
			}
		}
	}

	if ts, ok := log.Get(event.NewPath(event.RootEvent, event.FieldSegment("timestamp"))); ok {
		if t, ok := ts.TimestampVal(); ok {
			millis := t.UnixMilli()
			m.Timestamp = &millis
		}
	}
	if m.Timestamp == nil {
		now := time.Now().UnixMilli()
		m.Timestamp = &now
	}

	return m, nil
}

// metricValue inspects which of the five mutually-exclusive shape fields is
// present and decodes the corresponding MetricValue, matching the
// original's iterate-root-keys-until-one-matches loop.
func metricValue(log *event.LogEvent) (event.MetricValue, error) {
	if _, ok := log.Get(path1("counter")); ok {
		return counterValue(log)
	}
	if _, ok := log.Get(path1("gauge")); ok {
		return gaugeValue(log)
	}
	if _, ok := log.Get(path1("distribution")); ok {
		return distributionValue(log)
	}
	if _, ok := log.Get(path1("histogram")); ok {
		return histogramValue(log)
	}
	if _, ok := log.Get(path1("summary")); ok {
		return summaryValue(log)
	}
	return event.MetricValue{}, fmt.Errorf("no counter/gauge/distribution/histogram/summary field found")
}

func path1(field string) event.Path {
	return event.NewPath(event.RootEvent, event.FieldSegment(field))
}

func path2(a, b string) event.Path {
	return event.NewPath(event.RootEvent, event.FieldSegment(a), event.FieldSegment(b))
}

func getStr(log *event.LogEvent, field string) (string, error) {
	v, ok := log.Get(path1(field))
	if !ok {
		return "", fmt.Errorf("missing field %q", field)
	}
	b, ok := v.BytesVal()
	if !ok {
		return "", fmt.Errorf("field %q is not a string", field)
	}
	return string(b), nil
}

func getFloat(log *event.LogEvent, path event.Path, field string) (float64, error) {
	v, ok := log.Get(path)
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	if i, ok := v.Integer(); ok {
		return float64(i), nil
	}
	if f, ok := v.Float(); ok {
		return f.Value(), nil
	}
	return 0, fmt.Errorf("field %q is not numeric", field)
}

func getInt(log *event.LogEvent, path event.Path, field string) (int64, error) {
	v, ok := log.Get(path)
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	if i, ok := v.Integer(); ok {
		return i, nil
	}
	return 0, fmt.Errorf("field %q is not an integer", field)
}

func counterValue(log *event.LogEvent) (event.MetricValue, error) {
	v, err := getFloat(log, path2("counter", "value"), "counter.value")
	if err != nil {
		return event.MetricValue{}, err
	}
	return event.CounterValue(v), nil
}

func gaugeValue(log *event.LogEvent) (event.MetricValue, error) {
	v, err := getFloat(log, path2("gauge", "value"), "gauge.value")
	if err != nil {
		return event.MetricValue{}, err
	}
	return event.GaugeValue(v), nil
}

func distributionValue(log *event.LogEvent) (event.MetricValue, error) {
	samplesVal, ok := log.Get(path2("distribution", "samples"))
	if !ok {
		return event.MetricValue{}, fmt.Errorf("missing field %q", "distribution.samples")
	}
	arr, ok := samplesVal.ArrayVal()
	if !ok {
		return event.MetricValue{}, fmt.Errorf("field %q is not an array", "distribution.samples")
	}
	samples := make([]event.Sample, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.ObjectRef()
		if !ok {
			return event.MetricValue{}, fmt.Errorf("distribution sample is not an object")
		}
		valueV, ok := obj.Get("value")
		if !ok {
			return event.MetricValue{}, fmt.Errorf("missing field %q", "value")
		}
		value, ok := numeric(valueV)
		if !ok {
			return event.MetricValue{}, fmt.Errorf("field %q is not numeric", "value")
		}
		rateV, ok := obj.Get("rate")
		if !ok {
			return event.MetricValue{}, fmt.Errorf("missing field %q", "rate")
		}
		rate, ok := rateV.Integer()
		if !ok {
			return event.MetricValue{}, fmt.Errorf("field %q is not an integer", "rate")
		}
		samples = append(samples, event.Sample{Value: value, Count: uint32(rate)})
	}

	statV, ok := log.Get(path2("distribution", "statistic"))
	if !ok {
		return event.MetricValue{}, fmt.Errorf("missing field %q", "distribution.statistic")
	}
	statBytes, ok := statV.BytesVal()
	if !ok {
		return event.MetricValue{}, fmt.Errorf("field %q is not a string", "distribution.statistic")
	}
	statStr := string(statBytes)
	var stat event.MetricStatistic
	switch statStr {
	case "histogram":
		stat = event.StatisticHistogram
	case "summary":
		stat = event.StatisticSummary
	default:
		return event.MetricValue{}, fmt.Errorf("invalid value %q for field %q", statStr, "distribution.statistic")
	}
	return event.DistributionValue(samples, stat), nil
}

func histogramValue(log *event.LogEvent) (event.MetricValue, error) {
	bucketsVal, ok := log.Get(path2("histogram", "buckets"))
	if !ok {
		return event.MetricValue{}, fmt.Errorf("missing field %q", "histogram.buckets")
	}
	arr, ok := bucketsVal.ArrayVal()
	if !ok {
		return event.MetricValue{}, fmt.Errorf("field %q is not an array", "histogram.buckets")
	}
	buckets := make([]event.Bucket, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.ObjectRef()
		if !ok {
			return event.MetricValue{}, fmt.Errorf("histogram bucket is not an object")
		}
		upperV, ok := obj.Get("upper_limit")
		if !ok {
			return event.MetricValue{}, fmt.Errorf("missing field %q", "histogram.buckets.upper_limit")
		}
		upper, ok := numeric(upperV)
		if !ok {
			return event.MetricValue{}, fmt.Errorf("field %q is not numeric", "histogram.buckets.upper_limit")
		}
		countV, ok := obj.Get("count")
		if !ok {
			return event.MetricValue{}, fmt.Errorf("missing field %q", "histogram.buckets.count")
		}
		count, ok := countV.Integer()
		if !ok {
			return event.MetricValue{}, fmt.Errorf("field %q is not an integer", "histogram.buckets.count")
		}
		buckets = append(buckets, event.Bucket{UpperLimit: upper, Count: uint64(count)})
	}
	count, err := getInt(log, path2("histogram", "count"), "histogram.count")
	if err != nil {
		return event.MetricValue{}, err
	}
	sum, err := getFloat(log, path2("histogram", "sum"), "histogram.sum")
	if err != nil {
		return event.MetricValue{}, err
	}
	return event.AggregatedHistogramValue(buckets, sum, uint64(count)), nil
}

func summaryValue(log *event.LogEvent) (event.MetricValue, error) {
	quantilesVal, ok := log.Get(path2("summary", "quantiles"))
	if !ok {
		return event.MetricValue{}, fmt.Errorf("missing field %q", "summary.quantiles")
	}
	arr, ok := quantilesVal.ArrayVal()
	if !ok {
		return event.MetricValue{}, fmt.Errorf("field %q is not an array", "summary.quantiles")
	}
	quantiles := make([]event.Quantile, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.ObjectRef()
		if !ok {
			return event.MetricValue{}, fmt.Errorf("summary quantile is not an object")
		}
		qV, ok := obj.Get("quantile")
		if !ok {
			return event.MetricValue{}, fmt.Errorf("missing field %q", "summary.quantiles.quantile")
		}
		q, ok := numeric(qV)
		if !ok {
			return event.MetricValue{}, fmt.Errorf("field %q is not numeric", "summary.quantiles.quantile")
		}
		vV, ok := obj.Get("value")
		if !ok {
			return event.MetricValue{}, fmt.Errorf("missing field %q", "summary.quantiles.value")
		}
		v, ok := numeric(vV)
		if !ok {
			return event.MetricValue{}, fmt.Errorf("field %q is not numeric", "summary.quantiles.value")
		}
		quantiles = append(quantiles, event.Quantile{Quantile: q, Value: v})
	}
	count, err := getInt(log, path2("summary", "count"), "summary.count")
	if err != nil {
		return event.MetricValue{}, err
	}
	sum, err := getFloat(log, path2("summary", "sum"), "summary.sum")
	if err != nil {
		return event.MetricValue{}, err
	}
	return event.AggregatedSummaryValue(quantiles, sum, uint64(count)), nil
}

func numeric(v event.Value) (float64, bool) {
	if i, ok := v.Integer(); ok {
		return float64(i), true
	}
	if f, ok := v.Float(); ok {
		return f.Value(), true
	}
	return 0, false
}
