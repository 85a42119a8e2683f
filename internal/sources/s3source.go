// Package sources holds the Event ingestion adapters from SPEC_FULL.md §B:
// thin collaborators that produce Events into a pipeline.TaskGroup, per
// spec.md §6's ingestion contract (send(Event) -> ok | channel-closed,
// backpressure mandatory via the bounded channel).
package sources

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
	"github.com/streamforge/pipeline/internal/sinks"
	"golang.org/x/sync/errgroup"
)

// maxS3Workers bounds download parallelism, matching the teacher's
// internal/filetransfer/file_transfer_s3.go maxS3Workers package var.
var maxS3Workers = 1000

// S3Config configures S3Source.
type S3Config struct {
	Bucket string
	Prefix string

	// PollInterval is how often the source re-lists the bucket for new
	// objects under Prefix. Objects already seen this run aren't
	// re-downloaded.
	PollInterval time.Duration
}

func (c S3Config) withDefaults() S3Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	return c
}

// S3Source polls an S3 prefix for newly written objects and emits one
// LogEvent per newline in each, following the teacher's
// listObjectsWithPrefix/downloadFiles/downloadFile Download() path, adapted
// to stream object bodies into Events rather than writing them to local
// disk.
type S3Source struct {
	client *s3.Client
	cfg    S3Config
	logger *observability.CoreLogger

	seen map[string]struct{}
}

func NewS3Source(ctx context.Context, client *s3.Client, cfg S3Config, logger *observability.CoreLogger) (*S3Source, error) {
	if client == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("sources: loading default AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}
	return &S3Source{client: client, cfg: cfg.withDefaults(), logger: logger, seen: make(map[string]struct{})}, nil
}

// Run lists and downloads new objects under cfg.Prefix every PollInterval,
// submitting one Work per decoded line, until ctx is cancelled.
func (s *S3Source) Run(ctx context.Context, group pipeline.TaskGroup) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	if err := s.pollOnce(ctx, group); err != nil {
		s.logger.CaptureError(fmt.Errorf("sources: s3 initial poll: %w", err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.pollOnce(ctx, group); err != nil {
				s.logger.CaptureError(fmt.Errorf("sources: s3 poll: %w", err))
			}
		}
	}
}

func (s *S3Source) pollOnce(ctx context.Context, group pipeline.TaskGroup) error {
	keys, err := s.listObjectsWithPrefix(ctx)
	if err != nil {
		return err
	}

	var newKeys []string
	for _, k := range keys {
		if _, ok := s.seen[k]; !ok {
			newKeys = append(newKeys, k)
		}
	}
	if len(newKeys) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxS3Workers)
	for _, key := range newKeys {
		key := key
		g.Go(func() error {
			return s.downloadAndEmit(gctx, group, key)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, k := range newKeys {
		s.seen[k] = struct{}{}
	}
	return nil
}

// listObjectsWithPrefix returns every object key under cfg.Prefix, following
// the teacher's pagination loop (ListObjectsV2 + ContinuationToken until
// IsTruncated is false).
func (s *S3Source) listObjectsWithPrefix(ctx context.Context) ([]string, error) {
	var keys []string
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	}
	isTruncated := true
	for isTruncated {
		output, err := s.client.ListObjectsV2(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("ListObjectsV2 %s/%s: %w", s.cfg.Bucket, s.cfg.Prefix, err)
		}
		for _, obj := range output.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		isTruncated = output.IsTruncated != nil && *output.IsTruncated
		if isTruncated {
			params.ContinuationToken = output.NextContinuationToken
		}
	}
	return keys, nil
}

func (s *S3Source) downloadAndEmit(ctx context.Context, group pipeline.TaskGroup, key string) error {
	object, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("GetObject %s/%s: %w", s.cfg.Bucket, key, err)
	}
	defer object.Body.Close()

	body, err := io.ReadAll(object.Body)
	if err != nil {
		return fmt.Errorf("reading object body %s/%s: %w", s.cfg.Bucket, key, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l, err := sinks.JSONToLogEvent([]byte(line))
		if err != nil {
			s.logger.CaptureWarn("sources: s3 skipping malformed line", "bucket", s.cfg.Bucket, "key", key, "error", err.Error())
			continue
		}
		group.SubmitOrCancel(ctx.Done(), pipeline.WorkFromEvent(event.FromLog(l)))
	}
	return scanner.Err()
}
