package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

// HostMetricsConfig configures HostMetricsSource.
type HostMetricsConfig struct {
	Interval time.Duration
	// Namespace prefixes every emitted metric name, e.g. "host".
	Namespace string
}

func (c HostMetricsConfig) withDefaults() HostMetricsConfig {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.Namespace == "" {
		c.Namespace = "host"
	}
	return c
}

// HostMetricsSource emits CPU, memory, and uptime gauges on a fixed tick,
// grounded on the teacher's pkg/monitor tick loop (a periodic sampler
// feeding named gauges into the run's history), generalized here to the
// gopsutil/v4 cross-platform sampling API rather than the teacher's
// NVIDIA/AMD/Trainium-specific monitors, none of which this pipeline's
// domain calls for.
type HostMetricsSource struct {
	cfg    HostMetricsConfig
	logger *observability.CoreLogger
}

func NewHostMetricsSource(cfg HostMetricsConfig, logger *observability.CoreLogger) *HostMetricsSource {
	return &HostMetricsSource{cfg: cfg.withDefaults(), logger: logger}
}

// Run samples the host on every tick and submits one Metric Work per
// measurement until ctx is cancelled.
func (s *HostMetricsSource) Run(ctx context.Context, group pipeline.TaskGroup) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sampleOnce(ctx, group)
		}
	}
}

func (s *HostMetricsSource) sampleOnce(ctx context.Context, group pipeline.TaskGroup) {
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.logger.CaptureWarn("sources: hostmetrics cpu sample failed", "error", err.Error())
	} else if len(pcts) > 0 {
		s.emitGauge(ctx, group, "cpu_percent", pcts[0])
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.logger.CaptureWarn("sources: hostmetrics mem sample failed", "error", err.Error())
	} else {
		s.emitGauge(ctx, group, "mem_used_percent", vm.UsedPercent)
		s.emitGauge(ctx, group, "mem_available_bytes", float64(vm.Available))
	}

	if uptime, err := host.UptimeWithContext(ctx); err != nil {
		s.logger.CaptureWarn("sources: hostmetrics uptime sample failed", "error", err.Error())
	} else {
		s.emitGauge(ctx, group, "uptime_seconds", float64(uptime))
	}
}

func (s *HostMetricsSource) emitGauge(ctx context.Context, group pipeline.TaskGroup, name string, value float64) {
	m := event.NewMetric(fmt.Sprintf("%s.%s", s.cfg.Namespace, name), event.MetricAbsolute, event.GaugeValue(value))
	m.Namespace = s.cfg.Namespace
	now := time.Now().UnixMilli()
	m.Timestamp = &now
	group.SubmitOrCancel(ctx.Done(), pipeline.WorkFromEvent(event.FromMetric(m)))
}
