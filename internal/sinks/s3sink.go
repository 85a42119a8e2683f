package sinks

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

// S3Config configures S3Sink.
type S3Config struct {
	Bucket string
	Prefix string

	// BatchSize is the number of events buffered into one uploaded object
	// before BatchTimeout has elapsed.
	BatchSize int

	// BatchTimeout flushes a partial batch even if BatchSize hasn't been
	// reached, so a low-traffic sink doesn't hold events indefinitely.
	BatchTimeout time.Duration
}

func (c S3Config) withDefaults() S3Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	return c
}

// S3Sink batches Events into newline-delimited JSON objects and uploads each
// batch to S3 as it fills, grounded on the teacher's S3FileTransfer client
// construction (internal/filetransfer/file_transfer_s3.go's NewS3FileTransfer:
// config.LoadDefaultConfig + s3.NewFromConfig when no client is supplied).
// Unlike the teacher's Upload method, which was never implemented beyond a
// debug log line, this one actually writes to S3.
type S3Sink struct {
	client *s3.Client
	cfg    S3Config
	logger *observability.CoreLogger
}

func NewS3Sink(ctx context.Context, client *s3.Client, cfg S3Config, logger *observability.CoreLogger) (*S3Sink, error) {
	if client == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("sinks: loading default AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}
	return &S3Sink{client: client, cfg: cfg.withDefaults(), logger: logger}, nil
}

// Run drains group's Work channel, batching Events into S3 objects of up to
// BatchSize events (or BatchTimeout elapsed, whichever comes first), until
// the channel closes or ctx is cancelled.
func (s *S3Sink) Run(ctx context.Context, group pipeline.TaskGroup) error {
	batch := make([]event.Event, 0, s.cfg.BatchSize)
	timer := time.NewTimer(s.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.upload(ctx, batch); err != nil {
			s.logger.CaptureError(fmt.Errorf("sinks: s3 upload failed: %w", err))
			for _, ev := range batch {
				ev.Finalize(event.Errored)
			}
		} else {
			for _, ev := range batch {
				ev.Finalize(event.Delivered)
			}
		}
		batch = batch[:0]
		timer.Reset(s.cfg.BatchTimeout)
	}

	ch := group.Chan()
	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case <-group.DrainDeadlineCtx().Done():
			flush()
			return nil
		case <-timer.C:
			flush()
		case work, ok := <-ch:
			if !ok {
				flush()
				return nil
			}
			work.Process(func(ev event.Event) {
				batch = append(batch, ev)
			})
			if len(batch) >= s.cfg.BatchSize {
				flush()
			}
		}
	}
}

func (s *S3Sink) upload(ctx context.Context, batch []event.Event) error {
	var buf bytes.Buffer
	for _, ev := range batch {
		line, err := EventToJSON(ev)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	key := fmt.Sprintf("%sbatch-%d.jsonl", s.cfg.Prefix, time.Now().UnixNano())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("PutObject %s/%s: %w", s.cfg.Bucket, key, err)
	}
	return nil
}
