package event

import (
	"sync"
	"sync/atomic"
)

// Status is the terminal delivery status a Finalizer receives exactly once,
// per spec.md §3's invariant, regardless of which path (ack, drop, transform
// error, shutdown) produced it.
type Status int

const (
	Delivered Status = iota
	Errored
	Rejected
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Errored:
		return "errored"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Finalizer receives a terminal Status exactly once. Implementations are
// typically batch-acknowledgement hooks shared by many events in one batch.
type Finalizer interface {
	UpdateStatus(Status)
}

// FinalizerFunc adapts a function to Finalizer.
type FinalizerFunc func(Status)

func (f FinalizerFunc) UpdateStatus(s Status) { f(s) }

// FinalizerSet tracks a worst-status-wins set of finalizers shared by
// reference across clones of an event's Metadata. The last reference drop
// triggers delivery, mirroring the teacher's reference-counted handle
// pattern for cross-task shared state (spec.md Design Notes: "cyclic
// event/metadata ownership").
type FinalizerSet struct {
	mu         sync.Mutex
	finalizers []Finalizer
	refs       int32
	fired      bool
	worst      Status
}

func NewFinalizerSet() *FinalizerSet {
	return &FinalizerSet{refs: 1}
}

func (fs *FinalizerSet) Add(f Finalizer) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.finalizers = append(fs.finalizers, f)
}

// Clone increments the reference count; call Release when the clone is done
// with the event (delivered, dropped, or errored).
func (fs *FinalizerSet) Clone() *FinalizerSet {
	atomic.AddInt32(&fs.refs, 1)
	return fs
}

// Release decrements the reference count. When it reaches zero, every
// registered finalizer receives, exactly once, the worst status passed to
// any Release call (Delivered < Errored < Rejected).
func (fs *FinalizerSet) Release(status Status) {
	fs.mu.Lock()
	if status > fs.worst {
		fs.worst = status
	}
	fs.mu.Unlock()
	if atomic.AddInt32(&fs.refs, -1) > 0 {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.fired {
		return
	}
	fs.fired = true
	for _, f := range fs.finalizers {
		f.UpdateStatus(fs.worst)
	}
}

// SchemaHandle is an opaque, shared-immutable handle to a schema definition
// referenced by an event's Metadata. Its contents are out of scope for this
// core (spec.md §1: "JSON-schema emission" is an external collaborator);
// only identity and equality matter here.
type SchemaHandle struct {
	Name string
}

// Metadata is attached to Log and Trace events: a schema handle, the
// finalizer set, and optional upstream identifiers (e.g. source-assigned
// message ids used for dedup by a sink).
type Metadata struct {
	Schema      *SchemaHandle
	Finalizers  *FinalizerSet
	UpstreamIDs []string
}

func NewMetadata() *Metadata {
	return &Metadata{Finalizers: NewFinalizerSet()}
}

// Clone returns a Metadata sharing the same finalizer set (by reference, with
// an incremented ref count) and schema handle, but with its own copy of the
// upstream-id slice.
func (m *Metadata) Clone() *Metadata {
	return &Metadata{
		Schema:      m.Schema,
		Finalizers:  m.Finalizers.Clone(),
		UpstreamIDs: append([]string(nil), m.UpstreamIDs...),
	}
}

// EventKind distinguishes the three Event variants.
type EventKind int

const (
	KindLog EventKind = iota
	KindMetric
	KindTrace
)

// LogEvent is an ordered mapping from path-strings to Values, plus Metadata.
type LogEvent struct {
	Fields   *Object
	Metadata *Metadata
}

func NewLog() *LogEvent {
	return &LogEvent{Fields: NewObject(), Metadata: NewMetadata()}
}

func (l *LogEvent) Get(p Path) (Value, bool) {
	return Get(ObjectVal(l.Fields), p.Segments)
}

func (l *LogEvent) Insert(p Path, v Value) error {
	root := ObjectVal(l.Fields)
	if err := Insert(&root, p.Segments, v); err != nil {
		return err
	}
	obj, _ := root.ObjectRef()
	l.Fields = obj
	return nil
}

// TraceEvent has the same shape as LogEvent but is semantically distinct for
// routing (spec.md §3).
type TraceEvent struct {
	Fields   *Object
	Metadata *Metadata
}

func NewTrace() *TraceEvent {
	return &TraceEvent{Fields: NewObject(), Metadata: NewMetadata()}
}

// MetricKind distinguishes absolute vs. incremental metric semantics.
type MetricKind int

const (
	MetricAbsolute MetricKind = iota
	MetricIncremental
)

// MetricStatistic names the statistic a distribution summarizes.
type MetricStatistic int

const (
	StatisticHistogram MetricStatistic = iota
	StatisticSummary
)

// Sample is one (value, count) pair within a distribution.
type Sample struct {
	Value float64
	Count uint32
}

// Bucket is one (upper_limit, count) pair within an aggregated histogram.
type Bucket struct {
	UpperLimit float64
	Count      uint64
}

// Quantile is one (quantile, value) pair within an aggregated summary.
type Quantile struct {
	Quantile float64
	Value    float64
}

// MetricValue is the tagged union of metric value shapes from spec.md §3.
type MetricValue struct {
	typ MetricValueType

	counter   float64
	gauge     float64
	set       map[string]struct{}
	samples   []Sample
	statistic MetricStatistic
	buckets   []Bucket
	aggSum    float64
	aggCount  uint64
	quantiles []Quantile
	sketch    []byte // opaque serialized sketch (e.g. DDSketch), not reinterpreted here
}

type MetricValueType int

const (
	ValueCounter MetricValueType = iota
	ValueGauge
	ValueSet
	ValueDistribution
	ValueAggregatedHistogram
	ValueAggregatedSummary
	ValueSketch
)

func (m MetricValue) Type() MetricValueType { return m.typ }

func CounterValue(v float64) MetricValue { return MetricValue{typ: ValueCounter, counter: v} }
func GaugeValue(v float64) MetricValue   { return MetricValue{typ: ValueGauge, gauge: v} }
func SetValue(members map[string]struct{}) MetricValue {
	return MetricValue{typ: ValueSet, set: members}
}
func DistributionValue(samples []Sample, stat MetricStatistic) MetricValue {
	return MetricValue{typ: ValueDistribution, samples: samples, statistic: stat}
}
func AggregatedHistogramValue(buckets []Bucket, sum float64, count uint64) MetricValue {
	return MetricValue{typ: ValueAggregatedHistogram, buckets: buckets, aggSum: sum, aggCount: count}
}
func AggregatedSummaryValue(qs []Quantile, sum float64, count uint64) MetricValue {
	return MetricValue{typ: ValueAggregatedSummary, quantiles: qs, aggSum: sum, aggCount: count}
}
func SketchValue(b []byte) MetricValue { return MetricValue{typ: ValueSketch, sketch: b} }

func (m MetricValue) Counter() (float64, bool)  { return m.counter, m.typ == ValueCounter }
func (m MetricValue) Gauge() (float64, bool)    { return m.gauge, m.typ == ValueGauge }
func (m MetricValue) Set() (map[string]struct{}, bool) { return m.set, m.typ == ValueSet }
func (m MetricValue) Distribution() ([]Sample, MetricStatistic, bool) {
	return m.samples, m.statistic, m.typ == ValueDistribution
}
func (m MetricValue) AggregatedHistogram() ([]Bucket, float64, uint64, bool) {
	return m.buckets, m.aggSum, m.aggCount, m.typ == ValueAggregatedHistogram
}
func (m MetricValue) AggregatedSummary() ([]Quantile, float64, uint64, bool) {
	return m.quantiles, m.aggSum, m.aggCount, m.typ == ValueAggregatedSummary
}

// MetricEvent. Its Value is immutable after construction; only tags,
// timestamp, and the metric-level metadata may be mutated (spec.md §3).
type MetricEvent struct {
	Name      string
	Namespace string
	MKind     MetricKind
	value     MetricValue // unexported: immutable after NewMetric

	Tags      map[string][]string // multimap
	Timestamp *int64              // unix millis, optional
	IntervalMs *int64
}

func NewMetric(name string, kind MetricKind, value MetricValue) *MetricEvent {
	return &MetricEvent{Name: name, MKind: kind, value: value, Tags: make(map[string][]string)}
}

func (m *MetricEvent) Value() MetricValue { return m.value }

func (m *MetricEvent) AddTag(key, value string) {
	m.Tags[key] = append(m.Tags[key], value)
}

// Event is the tagged union of Log, Metric, and Trace.
type Event struct {
	kind   EventKind
	log    *LogEvent
	metric *MetricEvent
	trace  *TraceEvent
}

func FromLog(l *LogEvent) Event       { return Event{kind: KindLog, log: l} }
func FromMetric(m *MetricEvent) Event { return Event{kind: KindMetric, metric: m} }
func FromTrace(t *TraceEvent) Event   { return Event{kind: KindTrace, trace: t} }

func (e Event) Kind() EventKind    { return e.kind }
func (e Event) AsLog() *LogEvent   { return e.log }
func (e Event) AsMetric() *MetricEvent { return e.metric }
func (e Event) AsTrace() *TraceEvent   { return e.trace }

// Finalize releases the event's finalizer reference with the given terminal
// status. It is a no-op for Metric events, which carry no Metadata.
func (e Event) Finalize(status Status) {
	switch e.kind {
	case KindLog:
		if e.log != nil && e.log.Metadata != nil {
			e.log.Metadata.Finalizers.Release(status)
		}
	case KindTrace:
		if e.trace != nil && e.trace.Metadata != nil {
			e.trace.Metadata.Finalizers.Release(status)
		}
	}
}
