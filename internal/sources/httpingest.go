package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
	"github.com/streamforge/pipeline/internal/sinks"
)

// HTTPIngestConfig configures HTTPIngestSource.
type HTTPIngestConfig struct {
	Addr string

	// Format selects how the request body is split into Events:
	// FormatJSONArray for a Datadog-Agent-style "[{...},{...}]" body,
	// FormatSyslogLines for a Heroku-logs-style newline-delimited body.
	Format IngestFormat

	ReadHeaderTimeout time.Duration
}

type IngestFormat int

const (
	FormatJSONArray IngestFormat = iota
	FormatSyslogLines
)

func (c HTTPIngestConfig) withDefaults() HTTPIngestConfig {
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	return c
}

// HTTPIngestSource is a generic "POST a batch, get an Event stream" HTTP
// endpoint, shared by the Datadog Agent and Heroku logs sources per
// SPEC_FULL.md §B: both are, from this pipeline's point of view, an HTTP
// POST of a batch of structured lines that becomes a stream of Log events,
// differing only in body framing (JSON array vs. newline-delimited
// syslog-ish lines).
type HTTPIngestSource struct {
	cfg    HTTPIngestConfig
	logger *observability.CoreLogger
	server *http.Server
}

func NewHTTPIngestSource(cfg HTTPIngestConfig, logger *observability.CoreLogger) *HTTPIngestSource {
	return &HTTPIngestSource{cfg: cfg.withDefaults(), logger: logger}
}

// Run serves cfg.Addr until ctx is cancelled, submitting one Work per
// ingested line/object.
func (s *HTTPIngestSource) Run(ctx context.Context, group pipeline.TaskGroup) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		s.handle(ctx, group, w, r)
	})

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		_ = s.server.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *HTTPIngestSource) handle(ctx context.Context, group pipeline.TaskGroup, w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var lines []string
	switch s.cfg.Format {
	case FormatJSONArray:
		var objs []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&objs); err != nil {
			http.Error(w, fmt.Sprintf("invalid JSON array body: %v", err), http.StatusBadRequest)
			return
		}
		for _, obj := range objs {
			lines = append(lines, string(obj))
		}
	case FormatSyslogLines:
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lines = append(lines, syslogLineToJSON(line))
		}
	}

	for _, line := range lines {
		l, err := sinks.JSONToLogEvent([]byte(line))
		if err != nil {
			s.logger.CaptureWarn("sources: http ingest skipping malformed line", "error", err.Error())
			continue
		}
		group.SubmitOrCancel(ctx.Done(), pipeline.WorkFromEvent(event.FromLog(l)))
	}

	w.WriteHeader(http.StatusAccepted)
}

// syslogLineToJSON wraps a raw Heroku-style log line as a single-field JSON
// object so it flows through the same sinks.JSONToLogEvent path as the
// JSON-array format; Heroku log lines carry no structure beyond the text
// itself at this layer.
func syslogLineToJSON(line string) string {
	b, _ := json.Marshal(map[string]string{"message": line})
	return string(b)
}
