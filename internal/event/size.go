package event

// EstimatedJSONSize returns an estimate (not an exact count) of the number of
// bytes this event would occupy JSON-encoded, without actually encoding it.
// Sinks use this to size batches against a byte budget cheaply, the way the
// original implementation's estimated_json_encoded_size_of does.
func (e Event) EstimatedJSONSize() int {
	switch e.kind {
	case KindLog:
		return objectEstimatedSize(e.log.Fields) + 2
	case KindTrace:
		return objectEstimatedSize(e.trace.Fields) + 2
	case KindMetric:
		return estimatedMetricSize(e.metric)
	default:
		return 0
	}
}

func valueEstimatedSize(v Value) int {
	switch v.kind {
	case KindNull:
		return len("null")
	case KindBool:
		return len("false")
	case KindInteger:
		return 20
	case KindFloat:
		return 24
	case KindBytes:
		return len(v.bytesV) + 2
	case KindTimestamp:
		return 30
	case KindRegex:
		if v.reV != nil {
			return len(v.reV.String()) + 2
		}
		return 2
	case KindArray:
		n := 2
		for _, e := range v.arrV {
			n += valueEstimatedSize(e) + 1
		}
		return n
	case KindObject:
		return objectEstimatedSize(v.objV)
	default:
		return 0
	}
}

func objectEstimatedSize(o *Object) int {
	if o == nil {
		return 2
	}
	n := 2
	for _, k := range o.keys {
		v := o.values[k]
		n += len(k) + 3 + valueEstimatedSize(v) + 1
	}
	return n
}

func estimatedMetricSize(m *MetricEvent) int {
	n := len(m.Name) + len(m.Namespace) + 32
	for k, vs := range m.Tags {
		for _, v := range vs {
			n += len(k) + len(v) + 4
		}
	}
	switch m.value.typ {
	case ValueDistribution:
		n += len(m.value.samples) * 16
	case ValueAggregatedHistogram:
		n += len(m.value.buckets) * 16
	case ValueAggregatedSummary:
		n += len(m.value.quantiles) * 16
	case ValueSet:
		for k := range m.value.set {
			n += len(k) + 2
		}
	}
	return n
}
