// Command pipelined runs the pipeline service described in SPEC_FULL.md: a
// configured set of sources feeds a transform stage (the file source by way
// of a durable disk buffer when data_dir is set), which fans each processed
// Event out to every configured sink.
//
// Usage:
//
//	pipelined -config pipeline.yaml
//
// See pipelined -h for the full flag list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/streamforge/pipeline/internal/config"
	"github.com/streamforge/pipeline/internal/diskbuffer"
	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/filesource"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pfxout"
	"github.com/streamforge/pipeline/internal/pipeline"
	"github.com/streamforge/pipeline/internal/searchsyntax"
	"github.com/streamforge/pipeline/internal/sinks"
	"github.com/streamforge/pipeline/internal/sources"
	"github.com/streamforge/pipeline/internal/transforms"
	"github.com/streamforge/pipeline/internal/version"
	"github.com/streamforge/pipeline/internal/vrl"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pipelined", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configPath := fs.String("config", "", "Path to the pipeline YAML config file.")
	logLevel := fs.Int("log-level", 0, "Log level: -4 debug, 0 info, 4 warn, 8 error.")
	showVersion := fs.Bool("version", false, "Print the version and exit.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "pipelined - StreamForge pipeline service\n\n")
		fmt.Fprintf(os.Stderr, "Version: %s (%s)\n\n", version.Version, version.Environment)
		fmt.Fprintf(os.Stderr, "Usage:\n  pipelined -config pipeline.yaml\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	banner := pfxout.New("pipelined")
	if *showVersion {
		banner.Println(fmt.Sprintf("%s (%s)", version.Version, version.Environment))
		return 0
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "pipelined: -config is required")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipelined: loading config: %v\n", err)
		return 1
	}

	slogLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(*logLevel),
	}))

	var hub *sentry.Hub
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			AttachStacktrace: true,
			Release:          version.Version,
			Environment:      version.Environment,
			BeforeSend:       observability.RemoveLoggerFrames,
		}); err != nil {
			slogLogger.Error("pipelined: sentry.Init failed", "error", err)
		} else {
			hub = sentry.CurrentHub()
			defer hub.Flush(2 * time.Second)
		}
	}
	logger := observability.NewCoreLogger(slogLogger, hub)

	banner.Println(pfxout.WithColor(fmt.Sprintf("starting pipelined %s", version.Version), pfxout.BrightBlue))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.CaptureError(fmt.Errorf("pipelined: %w", err))
		return 1
	}
	return 0
}

// sinkHandle names a running sink's TaskGroup, so the transform stage can
// submit each Event to every sink's group and shutdown can close them.
type sinkHandle struct {
	name  string
	group pipeline.TaskGroup
}

func serve(ctx context.Context, cfg *config.PipelineConfig, logger *observability.CoreLogger) error {
	const drainDeadline = 30 * time.Second

	g, gctx := errgroup.WithContext(ctx)

	var sinkHandles []sinkHandle
	addSink := func(name string, group pipeline.TaskGroup, runFn func() error) {
		sinkHandles = append(sinkHandles, sinkHandle{name: name, group: group})
		g.Go(func() error {
			if err := runFn(); err != nil {
				logger.CaptureError(fmt.Errorf("pipelined: sink %s: %w", name, err))
			}
			return nil
		})
	}

	if cfg.S3Sink != nil {
		group := pipeline.New(256, drainDeadline, logger)
		sink, err := sinks.NewS3Sink(ctx, nil, *cfg.S3Sink, logger)
		if err != nil {
			return fmt.Errorf("constructing s3 sink: %w", err)
		}
		addSink("s3", group, func() error { return sink.Run(gctx, group) })
	}
	if cfg.HTTPSink != nil {
		group := pipeline.New(256, drainDeadline, logger)
		sink := sinks.NewHTTPSink(*cfg.HTTPSink, logger)
		addSink("http", group, func() error { return sink.Run(gctx, group) })
	}
	if cfg.PrometheusSink != nil {
		group := pipeline.New(256, drainDeadline, logger)
		sink := sinks.NewPrometheusSink(*cfg.PrometheusSink, logger)
		addSink("prometheus", group, func() error { return sink.Run(group) })
	}
	if cfg.SentrySink != nil {
		group := pipeline.New(256, drainDeadline, logger)
		sink := sinks.NewSentrySink(*cfg.SentrySink, logger)
		addSink("sentry", group, func() error { return sink.Run(group) })
	}

	if len(sinkHandles) == 0 {
		logger.Warn("pipelined: no sinks configured, ingested events will only be logged")
	}

	ingest := pipeline.New(1024, drainDeadline, logger)

	var buf *diskbuffer.Buffer
	if cfg.DiskBuffer.DataDir != "" {
		var err error
		buf, err = diskbuffer.Open(cfg.DiskBuffer)
		if err != nil {
			return fmt.Errorf("opening disk buffer: %w", err)
		}
		defer buf.Close()
	}

	sourceGroup, sourceCtx := errgroup.WithContext(ctx)

	if cfg.FileSource.CheckpointPath != "" || len(cfg.FileSource.IncludePatterns) > 0 {
		sink := pipeline.Submitter(ingest)
		if buf != nil {
			sink = &diskBufferRelay{buf: buf, logger: logger}
		}
		tailer, err := filesource.New(cfg.FileSource, logger, sink)
		if err != nil {
			return fmt.Errorf("constructing file source: %w", err)
		}
		sourceGroup.Go(func() error { return tailer.Run(sourceCtx) })
	}
	if buf != nil {
		sourceGroup.Go(func() error { return pumpDiskBuffer(sourceCtx, buf, ingest, logger) })
	}
	if cfg.S3Source != nil {
		src, err := sources.NewS3Source(ctx, nil, *cfg.S3Source, logger)
		if err != nil {
			return fmt.Errorf("constructing s3 source: %w", err)
		}
		sourceGroup.Go(func() error { return src.Run(sourceCtx, ingest) })
	}
	if cfg.HostMetricsSource != nil {
		src := sources.NewHostMetricsSource(*cfg.HostMetricsSource, logger)
		sourceGroup.Go(func() error { return src.Run(sourceCtx, ingest) })
	}
	if cfg.HTTPIngestSource != nil {
		src := sources.NewHTTPIngestSource(*cfg.HTTPIngestSource, logger)
		sourceGroup.Go(func() error { return src.Run(sourceCtx, ingest) })
	}

	var program *vrl.CompiledProgram
	if cfg.Program != "" {
		var err error
		program, err = vrl.CompileProgram(cfg.Program, cfg.ReadOnlyPaths)
		if err != nil {
			return fmt.Errorf("compiling program: %w", err)
		}
	}
	var matcher *searchsyntax.Matcher
	if cfg.SearchQuery != "" {
		var err error
		matcher, err = searchsyntax.Compile(cfg.SearchQuery)
		if err != nil {
			return fmt.Errorf("compiling search query: %w", err)
		}
	}
	metricMetadata := transforms.NewMetricMetadata(logger)

	g.Go(func() error {
		fanOut(ctx, ingest, sinkHandles, program, matcher, metricMetadata, logger)
		return nil
	})

	// Sources run until ctx is cancelled (shutdown signal) or one fails.
	sourceErr := sourceGroup.Wait()
	ingest.SetDone()
	ingest.Close()

	for _, h := range sinkHandles {
		h.group.SetDone()
	}
	for _, h := range sinkHandles {
		h.group.Close()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if sourceErr != nil && gctx.Err() == nil {
		return sourceErr
	}
	return nil
}

// fanOut applies the configured transform chain to every event the sources
// submit into ingest, then hands the surviving event to every active sink's
// TaskGroup. A single shared channel can only be drained by one consumer
// (pipeline.TaskGroup.Chan's contract), so reaching N independent sinks
// means explicitly resubmitting into N separate TaskGroups here rather than
// relying on a broadcast channel.
func fanOut(
	ctx context.Context,
	ingest pipeline.TaskGroup,
	sinkHandles []sinkHandle,
	program *vrl.CompiledProgram,
	matcher *searchsyntax.Matcher,
	metricMetadata *transforms.MetricMetadata,
	logger *observability.CoreLogger,
) {
	ch := ingest.Chan()
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-ch:
			if !ok {
				return
			}
			work.Process(func(ev event.Event) {
				transformed, ok := applyTransforms(ev, program, matcher, metricMetadata, logger)
				if !ok {
					ev.Finalize(event.Rejected)
					return
				}
				if len(sinkHandles) == 0 {
					transformed.Finalize(event.Delivered)
					return
				}
				for _, h := range sinkHandles {
					h.group.SubmitOrCancel(ctx.Done(), pipeline.WorkFromEvent(transformed))
				}
			})
		}
	}
}

// applyTransforms runs ev through the VRL program (if configured), the
// search-query filter (if configured), and the metric-metadata conversion,
// in that order: VRL can reshape a log before the query filters on it, and
// metric-metadata conversion only ever applies to whatever log shape
// survives both. A log that doesn't match metric-metadata's shape passes
// through unconverted; this transform only ever promotes a matching log to
// a Metric, it doesn't reject events that aren't metric-shaped.
func applyTransforms(
	ev event.Event,
	program *vrl.CompiledProgram,
	matcher *searchsyntax.Matcher,
	metricMetadata *transforms.MetricMetadata,
	logger *observability.CoreLogger,
) (event.Event, bool) {
	if program != nil && ev.Kind() == event.KindLog {
		root := event.ObjectVal(ev.AsLog().Fields)
		outcome, err := program.Run(&root, vrl.BackendVM)
		if err != nil {
			logger.CaptureWarn("pipelined: program execution error", "error", err.Error())
			return event.Event{}, false
		}
		if outcome.Dropped {
			return event.Event{}, false
		}
		if obj, ok := root.ObjectRef(); ok {
			ev.AsLog().Fields = obj
		}
	}

	if matcher != nil && !matcher.MatchEvent(ev) {
		return event.Event{}, false
	}

	if metricMetadata != nil {
		if m, ok := metricMetadata.Transform(ev); ok {
			return m, true
		}
	}

	return ev, true
}

// diskBufferRelay implements pipeline.Submitter by durably writing each
// Event to a diskbuffer.Buffer instead of handing it straight to the
// ingest TaskGroup, per spec.md §4.1's durability guarantee for sources
// that can't simply redeliver on restart (a tailed file's offset moves on).
// pumpDiskBuffer is the corresponding reader, replaying written records
// into ingest and acknowledging them once accepted.
type diskBufferRelay struct {
	buf    *diskbuffer.Buffer
	logger *observability.CoreLogger
}

func (r *diskBufferRelay) Submit(work pipeline.Work) {
	r.SubmitOrCancel(nil, work)
}

func (r *diskBufferRelay) SubmitOrCancel(cancel <-chan struct{}, work pipeline.Work) {
	work.Process(func(ev event.Event) {
		data, err := sinks.EventToJSON(ev)
		if err != nil {
			r.logger.CaptureWarn("pipelined: disk buffer encode failed", "error", err.Error())
			ev.Finalize(event.Errored)
			return
		}
		if _, err := r.buf.WriteRecord(data); err != nil {
			r.logger.CaptureError(fmt.Errorf("pipelined: disk buffer write failed: %w", err))
			ev.Finalize(event.Errored)
			return
		}
		ev.Finalize(event.Delivered)
	})
}

func (r *diskBufferRelay) DrainDeadlineCtx() context.Context {
	return context.Background()
}

// pumpDiskBuffer replays records written by diskBufferRelay into ingest,
// acknowledging each batch once ingest has accepted it.
func pumpDiskBuffer(ctx context.Context, buf *diskbuffer.Buffer, ingest pipeline.TaskGroup, logger *observability.CoreLogger) error {
	const idleBackoff = 200 * time.Millisecond
	acked := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, err := buf.ReadNext()
		switch {
		case err == diskbuffer.ErrEmpty:
			if acked > 0 {
				if err := buf.Acknowledge(acked); err != nil {
					logger.CaptureError(fmt.Errorf("pipelined: disk buffer acknowledge failed: %w", err))
				}
				acked = 0
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idleBackoff):
			}
			continue
		case err != nil:
			logger.CaptureError(fmt.Errorf("pipelined: disk buffer read failed: %w", err))
			continue
		}

		l, err := sinks.JSONToLogEvent(data)
		if err != nil {
			logger.CaptureWarn("pipelined: disk buffer skipping malformed record", "error", err.Error())
			acked++
			continue
		}
		ingest.SubmitOrCancel(ctx.Done(), pipeline.WorkFromEvent(event.FromLog(l)))
		acked++

		if acked >= 256 {
			if err := buf.Acknowledge(acked); err != nil {
				logger.CaptureError(fmt.Errorf("pipelined: disk buffer acknowledge failed: %w", err))
			}
			acked = 0
		}
	}
}
