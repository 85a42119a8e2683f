package sinks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/model"
	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

// PrometheusConfig configures PrometheusSink.
type PrometheusConfig struct {
	// PushGatewayURL is where batches of gauges/counters are pushed, e.g.
	// "http://pushgateway:9091".
	PushGatewayURL string

	// Job is the pushgateway job label grouping this pipeline's metrics.
	Job string
}

// PrometheusSink maintains a registry of gauges and counters keyed by metric
// name, updated from incoming Metric events, and pushed to a Prometheus
// pushgateway after every event. Counter events accumulate via Add; Gauge events
// overwrite via Set, matching spec.md §3's absolute-vs-incremental metric
// semantics.
type PrometheusSink struct {
	cfg      PrometheusConfig
	logger   *observability.CoreLogger
	registry *prometheus.Registry
	pusher   *push.Pusher

	mu       sync.Mutex
	gauges   map[string]*prometheus.GaugeVec
	counters map[string]*prometheus.CounterVec
}

func NewPrometheusSink(cfg PrometheusConfig, logger *observability.CoreLogger) *PrometheusSink {
	registry := prometheus.NewRegistry()
	return &PrometheusSink{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		pusher:   push.New(cfg.PushGatewayURL, cfg.Job).Gatherer(registry),
		gauges:   make(map[string]*prometheus.GaugeVec),
		counters: make(map[string]*prometheus.CounterVec),
	}
}

// Run drains group's Work channel, applying each Metric event to the
// registry and pushing to the gateway after each one, until the channel
// closes or group's DrainDeadlineCtx is cancelled; sinks.S3Sink batches on
// a timer, but pushgateway semantics call for "push on every observed
// change" instead, so this pushes inline.
func (s *PrometheusSink) Run(group pipeline.TaskGroup) error {
	ch := group.Chan()
	ctx := group.DrainDeadlineCtx()
	for {
		select {
		case <-ctx.Done():
			return nil
		case work, ok := <-ch:
			if !ok {
				return nil
			}
			work.Process(func(ev event.Event) {
				s.apply(ev)
			})
		}
	}
}

func (s *PrometheusSink) apply(ev event.Event) {
	if ev.Kind() != event.KindMetric {
		ev.Finalize(event.Rejected)
		return
	}
	m := ev.AsMetric()
	labelNames, labelValues := sanitizedLabels(m.Tags)

	switch m.Value().Type() {
	case event.ValueGauge:
		v, _ := m.Value().Gauge()
		s.gaugeFor(m, labelNames).WithLabelValues(labelValues...).Set(v)
	case event.ValueCounter:
		v, _ := m.Value().Counter()
		s.counterFor(m, labelNames).WithLabelValues(labelValues...).Add(v)
	default:
		// Distributions, sets, and sketches have no direct prometheus.Metric
		// shape cheap enough to maintain per-event; they're left to the
		// generic HTTP sink, which can forward their native wire format.
	}

	if err := s.pusher.Push(); err != nil {
		s.logger.CaptureError(fmt.Errorf("sinks: prometheus push failed: %w", err))
		ev.Finalize(event.Errored)
		return
	}
	ev.Finalize(event.Delivered)
}

func (s *PrometheusSink) gaugeFor(m *event.MetricEvent, labelNames []string) *prometheus.GaugeVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metricKey(m)
	if g, ok := s.gauges[key]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: sanitizeMetricName(m.Namespace),
		Name:      sanitizeMetricName(m.Name),
	}, labelNames)
	s.registry.MustRegister(g)
	s.gauges[key] = g
	return g
}

func (s *PrometheusSink) counterFor(m *event.MetricEvent, labelNames []string) *prometheus.CounterVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metricKey(m)
	if c, ok := s.counters[key]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: sanitizeMetricName(m.Namespace),
		Name:      sanitizeMetricName(m.Name),
	}, labelNames)
	s.registry.MustRegister(c)
	s.counters[key] = c
	return c
}

func metricKey(m *event.MetricEvent) string {
	return m.Namespace + "/" + m.Name
}

// sanitizeMetricName makes an arbitrary metric name a valid Prometheus
// metric name component, per github.com/prometheus/common/model's
// MetricNameRE.
func sanitizeMetricName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		case r == ':':
		default:
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return "unnamed"
	}
	return out
}

// sanitizedLabels converts a Metric event's tag multimap into a sorted,
// deduplicated label name/value pair, validating each candidate label name
// with model.LabelName.IsValid so an arbitrary tag key never panics the
// registry at WithLabelValues time.
func sanitizedLabels(tags map[string][]string) (names []string, values []string) {
	seen := make(map[string]bool, len(tags))
	for k := range tags {
		if k == "" {
			continue
		}
		name := model.LabelName(sanitizeMetricName(k))
		if !name.IsValid() || seen[string(name)] {
			continue
		}
		seen[string(name)] = true
		names = append(names, string(name))
	}
	sort.Strings(names)
	values = make([]string, len(names))
	for i, n := range names {
		raw := tags[n]
		if len(raw) == 0 {
			// name was sanitized from a differently-spelled key; find it.
			for k, vs := range tags {
				if sanitizeMetricName(k) == n && len(vs) > 0 {
					raw = vs
					break
				}
			}
		}
		values[i] = strings.Join(raw, ",")
	}
	return names, values
}
