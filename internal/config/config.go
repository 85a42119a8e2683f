// Package config loads a single YAML document into a PipelineConfig,
// mirroring the teacher's internal/settings layered load-then-derive
// pattern (internal/settings/settings.go's Settings wrapping a raw proto,
// internal/settings/derived.go computing values from it): a raw, purely
// yaml-tagged document is parsed, validated, and converted into the typed
// Options/Config structs each subsystem already exposes
// (diskbuffer.Options, filesource.Options, the vrl read-only-mounts/
// timezone pair, and every sinks/sources adapter config from SPEC_FULL.md
// §B), rather than each subsystem parsing YAML itself.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/streamforge/pipeline/internal/diskbuffer"
	"github.com/streamforge/pipeline/internal/filesource"
	"github.com/streamforge/pipeline/internal/sinks"
	"github.com/streamforge/pipeline/internal/sources"
)

type rawDocument struct {
	DiskBuffer rawDiskBuffer `yaml:"disk_buffer"`
	FileSource rawFileSource `yaml:"file_source"`
	Expression rawExpression `yaml:"expression"`
	Sources    rawSourcesDoc `yaml:"sources"`
	Sinks      rawSinksDoc   `yaml:"sinks"`
	Sentry     rawSentry     `yaml:"sentry"`
}

type rawSentry struct {
	DSN string `yaml:"dsn"`
}

type rawDiskBuffer struct {
	DataDir         string `yaml:"data_dir"`
	MaxBytes        uint64 `yaml:"max_bytes"`
	MaxDataFileSize uint64 `yaml:"max_data_file_size"`
	WhenFull        string `yaml:"when_full"`
}

type rawFingerprint struct {
	Strategy           string `yaml:"strategy"`
	ChecksumLines      int    `yaml:"checksum_lines"`
	IgnoredHeaderBytes int    `yaml:"ignored_header_bytes"`
	MaxLineLength      int    `yaml:"max_line_length"`
}

type rawMultiline struct {
	StartPattern    string        `yaml:"start_pattern"`
	ContinuePattern string        `yaml:"continue_pattern"`
	Timeout         time.Duration `yaml:"timeout"`
}

type rawFileSource struct {
	IncludePatterns       []string      `yaml:"include_patterns"`
	ExcludePatterns       []string      `yaml:"exclude_patterns"`
	Fingerprint           rawFingerprint `yaml:"fingerprint"`
	ReadLimitBytesPerTick int64         `yaml:"read_limit_bytes_per_tick"`
	IgnoreOlderSecs       int64         `yaml:"ignore_older_secs"`
	Multiline             *rawMultiline `yaml:"multiline"`
	CheckpointPath        string        `yaml:"checkpoint_path"`
	TickInterval          time.Duration `yaml:"tick_interval"`
}

type rawExpression struct {
	ReadOnlyPaths []string `yaml:"read_only_paths"`
	Timezone      string   `yaml:"timezone"`
	Program       string   `yaml:"program"`
	SearchQuery   string   `yaml:"search_query"`
}

type rawSourcesDoc struct {
	S3          *rawS3Source          `yaml:"s3"`
	HostMetrics *rawHostMetricsSource `yaml:"host_metrics"`
	HTTPIngest  *rawHTTPIngestSource  `yaml:"http_ingest"`
}

type rawS3Source struct {
	Bucket       string        `yaml:"bucket"`
	Prefix       string        `yaml:"prefix"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type rawHostMetricsSource struct {
	Interval  time.Duration `yaml:"interval"`
	Namespace string        `yaml:"namespace"`
}

type rawHTTPIngestSource struct {
	Addr   string `yaml:"addr"`
	Format string `yaml:"format"`
}

type rawSinksDoc struct {
	S3         *rawS3Sink         `yaml:"s3"`
	HTTP       *rawHTTPSink       `yaml:"http"`
	Prometheus *rawPrometheusSink `yaml:"prometheus"`
	Sentry     *rawSentrySink     `yaml:"sentry"`
}

type rawS3Sink struct {
	Bucket       string        `yaml:"bucket"`
	Prefix       string        `yaml:"prefix"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type rawHTTPSink struct {
	URL               string            `yaml:"url"`
	ExtraHeaders      map[string]string `yaml:"extra_headers"`
	RateLimit         float64           `yaml:"rate_limit"`
	Burst             int               `yaml:"burst"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval"`
	RetryMax          int               `yaml:"retry_max"`
}

type rawPrometheusSink struct {
	PushGatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type rawSentrySink struct {
	Levels []string `yaml:"levels"`
}

// PipelineConfig is the fully derived, validated configuration this core
// consumes, per spec.md §6's three config objects plus the SPEC_FULL.md §B
// source/sink adapter configs.
type PipelineConfig struct {
	DiskBuffer diskbuffer.Options
	FileSource filesource.Options

	ReadOnlyPaths []string
	Timezone      string
	Program       string
	SearchQuery   string

	S3Source          *sources.S3Config
	HostMetricsSource *sources.HostMetricsConfig
	HTTPIngestSource  *sources.HTTPIngestConfig

	S3Sink         *sinks.S3Config
	HTTPSink       *sinks.HTTPConfig
	PrometheusSink *sinks.PrometheusConfig
	SentrySink     *sinks.SentrySinkConfig

	// SentryDSN, if set, is used to report the pipeline's own operational
	// errors (not to be confused with SentrySink, which forwards ingested
	// events to Sentry as a data sink).
	SentryDSN string
}

// Load reads and derives a PipelineConfig from the YAML document at path.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return raw.derive()
}

func (raw rawDocument) derive() (*PipelineConfig, error) {
	var diskOpts diskbuffer.Options
	if raw.DiskBuffer.DataDir != "" {
		var err error
		diskOpts, err = raw.DiskBuffer.derive()
		if err != nil {
			return nil, fmt.Errorf("config: disk_buffer: %w", err)
		}
	}

	fileOpts, err := raw.FileSource.derive()
	if err != nil {
		return nil, fmt.Errorf("config: file_source: %w", err)
	}

	cfg := &PipelineConfig{
		DiskBuffer:    diskOpts,
		FileSource:    fileOpts,
		ReadOnlyPaths: raw.Expression.ReadOnlyPaths,
		Timezone:      raw.Expression.Timezone,
		Program:       raw.Expression.Program,
		SearchQuery:   raw.Expression.SearchQuery,
		SentryDSN:     raw.Sentry.DSN,
	}

	if s := raw.Sources.S3; s != nil {
		cfg.S3Source = &sources.S3Config{Bucket: s.Bucket, Prefix: s.Prefix, PollInterval: s.PollInterval}
	}
	if s := raw.Sources.HostMetrics; s != nil {
		cfg.HostMetricsSource = &sources.HostMetricsConfig{Interval: s.Interval, Namespace: s.Namespace}
	}
	if s := raw.Sources.HTTPIngest; s != nil {
		format, err := parseIngestFormat(s.Format)
		if err != nil {
			return nil, fmt.Errorf("config: sources.http_ingest: %w", err)
		}
		cfg.HTTPIngestSource = &sources.HTTPIngestConfig{Addr: s.Addr, Format: format}
	}

	if s := raw.Sinks.S3; s != nil {
		cfg.S3Sink = &sinks.S3Config{Bucket: s.Bucket, Prefix: s.Prefix, BatchSize: s.BatchSize, BatchTimeout: s.BatchTimeout}
	}
	if s := raw.Sinks.HTTP; s != nil {
		header := make(map[string][]string, len(s.ExtraHeaders))
		for k, v := range s.ExtraHeaders {
			header[k] = []string{v}
		}
		cfg.HTTPSink = &sinks.HTTPConfig{
			URL:               s.URL,
			ExtraHeaders:      header,
			RateLimit:         rate.Limit(s.RateLimit),
			Burst:             s.Burst,
			HeartbeatInterval: s.HeartbeatInterval,
			RetryMax:          s.RetryMax,
		}
	}
	if s := raw.Sinks.Prometheus; s != nil {
		cfg.PrometheusSink = &sinks.PrometheusConfig{PushGatewayURL: s.PushGatewayURL, Job: s.Job}
	}
	if s := raw.Sinks.Sentry; s != nil {
		levels := make(map[string]struct{}, len(s.Levels))
		for _, l := range s.Levels {
			levels[l] = struct{}{}
		}
		cfg.SentrySink = &sinks.SentrySinkConfig{Levels: levels}
	}

	return cfg, nil
}

// defaultMaxDataFileSize is used when the config doesn't set
// max_data_file_size; diskbuffer.Open rejects a zero value outright.
const defaultMaxDataFileSize = 64 << 20

func (raw rawDiskBuffer) derive() (diskbuffer.Options, error) {
	if raw.DataDir == "" {
		return diskbuffer.Options{}, fmt.Errorf("data_dir is required")
	}
	policy, err := parseWhenFull(raw.WhenFull)
	if err != nil {
		return diskbuffer.Options{}, err
	}
	maxDataFileSize := raw.MaxDataFileSize
	if maxDataFileSize == 0 {
		maxDataFileSize = defaultMaxDataFileSize
	}
	return diskbuffer.Options{
		DataDir:         raw.DataDir,
		MaxBytes:        raw.MaxBytes,
		MaxDataFileSize: maxDataFileSize,
		WhenFull:        policy,
	}, nil
}

func parseWhenFull(s string) (diskbuffer.WhenFullPolicy, error) {
	switch s {
	case "", "block":
		return diskbuffer.WhenFullBlock, nil
	case "drop_newest":
		return diskbuffer.WhenFullDropNewest, nil
	default:
		return 0, fmt.Errorf("invalid when_full %q", s)
	}
}

func (raw rawFileSource) derive() (filesource.Options, error) {
	fpStrategy, err := parseFingerprintStrategy(raw.Fingerprint.Strategy)
	if err != nil {
		return filesource.Options{}, err
	}

	var multiline *filesource.MultilineConfig
	if raw.Multiline != nil {
		ml, err := raw.Multiline.derive()
		if err != nil {
			return filesource.Options{}, err
		}
		multiline = ml
	}

	return filesource.Options{
		IncludePatterns: raw.IncludePatterns,
		ExcludePatterns: raw.ExcludePatterns,
		Fingerprint: filesource.Config{
			Strategy:           fpStrategy,
			ChecksumLines:      raw.Fingerprint.ChecksumLines,
			IgnoredHeaderBytes: raw.Fingerprint.IgnoredHeaderBytes,
			MaxLineLength:      raw.Fingerprint.MaxLineLength,
		},
		ReadLimitBytesPerTick: raw.ReadLimitBytesPerTick,
		IgnoreOlderSecs:       raw.IgnoreOlderSecs,
		Multiline:             multiline,
		CheckpointPath:        raw.CheckpointPath,
		TickInterval:          raw.TickInterval,
	}, nil
}

func parseFingerprintStrategy(s string) (filesource.FingerprintKind, error) {
	switch s {
	case "", "dev_inode":
		return filesource.FingerprintDevInode, nil
	case "checksum":
		return filesource.FingerprintChecksum, nil
	default:
		return 0, fmt.Errorf("invalid fingerprint.strategy %q", s)
	}
}

func (raw *rawMultiline) derive() (*filesource.MultilineConfig, error) {
	var start, cont *regexp.Regexp
	var err error
	if raw.StartPattern != "" {
		start, err = regexp.Compile(raw.StartPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid multiline.start_pattern: %w", err)
		}
	}
	if raw.ContinuePattern != "" {
		cont, err = regexp.Compile(raw.ContinuePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid multiline.continue_pattern: %w", err)
		}
	}
	return &filesource.MultilineConfig{
		StartPattern:    start,
		ContinuePattern: cont,
		Timeout:         raw.Timeout,
	}, nil
}

func parseIngestFormat(s string) (sources.IngestFormat, error) {
	switch s {
	case "", "json_array":
		return sources.FormatJSONArray, nil
	case "syslog_lines":
		return sources.FormatSyslogLines, nil
	default:
		return 0, fmt.Errorf("invalid format %q", s)
	}
}
