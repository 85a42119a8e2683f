package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/config"
	"github.com/streamforge/pipeline/internal/diskbuffer"
	"github.com/streamforge/pipeline/internal/sources"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadMinimalDocumentHasNoSourcesOrSinks(t *testing.T) {
	path := writeConfig(t, `
file_source:
  include_patterns: ["*.log"]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, diskbuffer.Options{}, cfg.DiskBuffer)
	assert.Nil(t, cfg.S3Source)
	assert.Nil(t, cfg.HostMetricsSource)
	assert.Nil(t, cfg.HTTPIngestSource)
	assert.Nil(t, cfg.S3Sink)
	assert.Nil(t, cfg.HTTPSink)
	assert.Nil(t, cfg.PrometheusSink)
	assert.Nil(t, cfg.SentrySink)
}

func TestLoadDiskBufferSection(t *testing.T) {
	path := writeConfig(t, `
disk_buffer:
  data_dir: /var/lib/pipeline
  max_bytes: 1024
  when_full: drop_newest
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pipeline", cfg.DiskBuffer.DataDir)
	assert.Equal(t, uint64(1024), cfg.DiskBuffer.MaxBytes)
	assert.Equal(t, diskbuffer.WhenFullDropNewest, cfg.DiskBuffer.WhenFull)
	assert.NotZero(t, cfg.DiskBuffer.MaxDataFileSize, "a zero MaxDataFileSize would make diskbuffer.Open reject the config")
}

func TestLoadDiskBufferInvalidWhenFull(t *testing.T) {
	path := writeConfig(t, `
disk_buffer:
  data_dir: /var/lib/pipeline
  when_full: explode
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadSourcesAndSinks(t *testing.T) {
	path := writeConfig(t, `
sources:
  s3:
    bucket: my-bucket
    prefix: logs/
    poll_interval: 1m
  host_metrics:
    interval: 30s
    namespace: edge
  http_ingest:
    addr: ":9000"
    format: syslog_lines
sinks:
  http:
    url: https://example.com/ingest
    rate_limit: 5
    burst: 2
    extra_headers:
      Authorization: Bearer token
  prometheus:
    pushgateway_url: http://pushgateway:9091
    job: pipelined
  sentry:
    levels: ["error", "fatal"]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.S3Source)
	assert.Equal(t, "my-bucket", cfg.S3Source.Bucket)
	assert.Equal(t, time.Minute, cfg.S3Source.PollInterval)

	require.NotNil(t, cfg.HostMetricsSource)
	assert.Equal(t, "edge", cfg.HostMetricsSource.Namespace)

	require.NotNil(t, cfg.HTTPIngestSource)
	assert.Equal(t, sources.FormatSyslogLines, cfg.HTTPIngestSource.Format)

	require.NotNil(t, cfg.HTTPSink)
	assert.Equal(t, []string{"Bearer token"}, cfg.HTTPSink.ExtraHeaders["Authorization"])

	require.NotNil(t, cfg.PrometheusSink)
	assert.Equal(t, "pipelined", cfg.PrometheusSink.Job)

	require.NotNil(t, cfg.SentrySink)
	_, hasError := cfg.SentrySink.Levels["error"]
	assert.True(t, hasError)
}

func TestLoadInvalidHTTPIngestFormat(t *testing.T) {
	path := writeConfig(t, `
sources:
  http_ingest:
    addr: ":9000"
    format: carrier_pigeon
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadExpressionAndSentryDSN(t *testing.T) {
	path := writeConfig(t, `
expression:
  read_only_paths: ["/etc/pipeline"]
  timezone: UTC
  program: ". = parse_json!(.message)"
  search_query: "level:error"
sentry:
  dsn: "https://key@sentry.example.com/1"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/etc/pipeline"}, cfg.ReadOnlyPaths)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, ". = parse_json!(.message)", cfg.Program)
	assert.Equal(t, "level:error", cfg.SearchQuery)
	assert.Equal(t, "https://key@sentry.example.com/1", cfg.SentryDSN)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "not: valid: yaml: [")
	_, err := config.Load(path)
	assert.Error(t, err)
}
