package sinks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/httplayers"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
	"github.com/streamforge/pipeline/internal/retryableclient"
	"github.com/streamforge/pipeline/internal/waiting"
	"golang.org/x/time/rate"
)

// HTTPConfig configures HTTPSink. It backs any "POST a batch of JSON lines"
// destination (Loki, CnosDB, Datadog-style line protocol) per SPEC_FULL.md
// §B, distinguished only by URL and ExtraHeaders.
type HTTPConfig struct {
	URL          string
	ExtraHeaders http.Header

	// RateLimit caps outbound requests per second; Burst allows short
	// bursts above that steady rate.
	RateLimit rate.Limit
	Burst     int

	// HeartbeatInterval sends an empty batch to keep the connection warm
	// when no events have arrived for this long, mirroring the teacher's
	// filestream TransmitLoop heartbeat-on-idle behavior.
	HeartbeatInterval time.Duration

	RetryMax int
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	return c
}

// HTTPSink transmits batches of Events as newline-delimited JSON POST
// bodies, rate-limited and retried, grounded on the teacher's
// internal/filestream/transmitloop.go (golang.org/x/time/rate.Limiter +
// heartbeat-on-idle) and built on internal/retryableclient +
// internal/httplayers, both kept from the teacher and generalized past its
// filestream-specific API.
type HTTPSink struct {
	cfg     HTTPConfig
	logger  *observability.CoreLogger
	client  *retryablehttp.Client
	peeker  *observability.Peeker
	limiter *rate.Limiter
}

func NewHTTPSink(cfg HTTPConfig, logger *observability.CoreLogger) *HTTPSink {
	cfg = cfg.withDefaults()
	peeker := &observability.Peeker{}

	client := retryableclient.NewRetryClient(
		retryableclient.WithRetryClientLogger(logger),
		retryableclient.WithRetryClientRetryMax(cfg.RetryMax),
	)
	client.HTTPClient.Transport = httplayers.WrapRoundTripper(
		client.HTTPClient.Transport,
		httplayers.Concat(httplayers.ExtraHeaders(cfg.ExtraHeaders), peeker),
	)

	return &HTTPSink{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		peeker:  peeker,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
	}
}

// Run transmits batches as they arrive, sending a zero-length heartbeat
// request whenever HeartbeatInterval elapses with nothing to send, until
// group's Work channel closes or ctx is cancelled.
func (s *HTTPSink) Run(ctx context.Context, group pipeline.TaskGroup) error {
	ch := group.Chan()
	for {
		idle := waiting.NewDelay(s.cfg.HeartbeatInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-group.DrainDeadlineCtx().Done():
			return nil
		case <-idle.Wait():
			s.transmit(ctx, nil)
		case work, ok := <-ch:
			if !ok {
				return nil
			}
			var batch []event.Event
			work.Process(func(ev event.Event) {
				batch = append(batch, ev)
			})
			s.transmit(ctx, batch)
		}
	}
}

func (s *HTTPSink) transmit(ctx context.Context, batch []event.Event) {
	if err := s.limiter.Wait(ctx); err != nil {
		for _, ev := range batch {
			ev.Finalize(event.Errored)
		}
		return
	}

	var buf bytes.Buffer
	for _, ev := range batch {
		line, err := EventToJSON(ev)
		if err != nil {
			s.logger.CaptureWarn("sinks: http skipping unencodable event", "error", err.Error())
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(buf.Bytes()))
	if err != nil {
		s.logger.CaptureError(fmt.Errorf("sinks: http building request: %w", err))
		for _, ev := range batch {
			ev.Finalize(event.Errored)
		}
		return
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := s.client.Do(req)
	if err != nil {
		for _, failed := range s.peeker.Read() {
			s.logger.CaptureWarn("sinks: http send failed", "status", failed.StatusCode, "body", failed.Body)
		}
		s.logger.CaptureError(fmt.Errorf("sinks: http send: %w", err))
		for _, ev := range batch {
			ev.Finalize(event.Errored)
		}
		return
	}
	defer resp.Body.Close()

	for _, ev := range batch {
		ev.Finalize(event.Delivered)
	}
}
