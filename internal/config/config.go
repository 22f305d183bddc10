package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/rclog/internal/artifact"
)

// Config represents the main configuration
type Config struct {
	Inputs       InputsConfig       `yaml:"inputs"`
	Report       ReportConfig       `yaml:"report"`
	Parser       *ParserConfig      `yaml:"parser,omitempty"`
	Intermediate IntermediateConfig `yaml:"intermediate"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      *MetricsConfig     `yaml:"metrics,omitempty"`
	Tracing      *TracingConfig     `yaml:"tracing,omitempty"`
	Sinks        SinksConfig        `yaml:"sinks"`
	Retry        *RetryConfig       `yaml:"retry,omitempty"`
	Watch        *WatchConfig       `yaml:"watch,omitempty"`
	Profiling    *ProfilingConfig   `yaml:"profiling,omitempty"`
}

// InputsConfig locates the diagnostic data of one run.
// Either Archive or IncrementalLog must be set.
type InputsConfig struct {
	Archive        string `yaml:"archive,omitempty"`
	Password       string `yaml:"password,omitempty"`
	IncrementalLog string `yaml:"incremental_log,omitempty"`
	PDList         string `yaml:"pdlist,omitempty"`
	WorkDir        string `yaml:"work_dir,omitempty"`
}

// ReportConfig defines the workbook produced by a run
type ReportConfig struct {
	Organization     string           `yaml:"organization"`
	ChassisID        string           `yaml:"chassis_id"`
	OutputDir        string           `yaml:"output_dir,omitempty"`
	DiskAnalysis     bool             `yaml:"disk_analysis"`
	KeepIntermediate bool             `yaml:"keep_intermediate"`
	Purge            bool             `yaml:"purge"`
	Categories       []CategoryConfig `yaml:"categories,omitempty"`
}

// CategoryConfig overrides one category; Keyword defaults to Name
type CategoryConfig struct {
	Name    string `yaml:"name"`
	Keyword string `yaml:"keyword,omitempty"`
}

// ParserConfig holds incremental log parsing configuration
type ParserConfig struct {
	SequenceMarker string `yaml:"sequence_marker,omitempty"`
	LineSeparator  string `yaml:"line_separator,omitempty"`
}

// IntermediateConfig controls the per-category artifact files
type IntermediateConfig struct {
	Compression string `yaml:"compression,omitempty"` // none, gzip, snappy
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"` // node_exporter textfile collector output
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// SinksConfig holds the optional destinations of a finished run
type SinksConfig struct {
	S3            *S3SinkConfig            `yaml:"s3,omitempty"`
	Kafka         *KafkaSinkConfig         `yaml:"kafka,omitempty"`
	Elasticsearch *ElasticsearchSinkConfig `yaml:"elasticsearch,omitempty"`
	// DeadLetterDir receives events no event sink accepted
	DeadLetterDir string `yaml:"dead_letter_dir,omitempty"`
}

// S3SinkConfig uploads the workbook (and optionally the artifacts) to a bucket
type S3SinkConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
	StorageClass    string `yaml:"storage_class,omitempty"`
	UploadArtifacts bool   `yaml:"upload_artifacts,omitempty"`
}

// KafkaSinkConfig publishes categorized events to a topic
type KafkaSinkConfig struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	ClientID         string   `yaml:"client_id,omitempty"`
	RequiredAcks     int16    `yaml:"required_acks,omitempty"`
	CompressionCodec string   `yaml:"compression_codec,omitempty"`
	Version          string   `yaml:"version,omitempty"`
	RateLimit        int        `yaml:"rate_limit,omitempty"` // events per second, 0 = unlimited
	TLS              *TLSConfig `yaml:"tls,omitempty"`
}

// ElasticsearchSinkConfig bulk-indexes categorized events
type ElasticsearchSinkConfig struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
	Username  string   `yaml:"username,omitempty"`
	Password  string   `yaml:"password,omitempty"`
	APIKey    string   `yaml:"api_key,omitempty"`
	CloudID   string   `yaml:"cloud_id,omitempty"`
	BatchSize int      `yaml:"batch_size,omitempty"`
	RateLimit int        `yaml:"rate_limit,omitempty"`
	TLS       *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig secures a sink connection
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// RetryConfig holds retry configuration for sinks
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`
	Multiplier     float64       `yaml:"multiplier,omitempty"`
	Jitter         bool          `yaml:"jitter,omitempty"`
}

// WatchConfig drives the inbox watcher
type WatchConfig struct {
	Inbox    string        `yaml:"inbox"`
	Ledger   string        `yaml:"ledger,omitempty"`
	Pattern  string        `yaml:"pattern,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
	// Listen is the address of the status server, empty disables it
	Listen string `yaml:"listen,omitempty"`
}

// ProfilingConfig captures runtime profiles of a run
type ProfilingConfig struct {
	CPUProfile string `yaml:"cpu_profile,omitempty"`
	MemProfile string `yaml:"mem_profile,omitempty"`
	PProf      bool   `yaml:"pprof,omitempty"` // serve /debug/pprof on the status server
}

// Default values
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultWorkDir       = "."
	DefaultCompression   = "none"
	DefaultWatchPattern  = "rclogs"
	DefaultWatchDebounce = 2 * time.Second
	DefaultLedgerName    = ".rclog-processed.json"
	OtherCategoryName    = "Other"
)

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults sets default values for unspecified configuration
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Inputs.WorkDir == "" {
		c.Inputs.WorkDir = DefaultWorkDir
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = c.Inputs.WorkDir
	}
	if c.Intermediate.Compression == "" {
		c.Intermediate.Compression = DefaultCompression
	}
	for i := range c.Report.Categories {
		if c.Report.Categories[i].Keyword == "" {
			c.Report.Categories[i].Keyword = c.Report.Categories[i].Name
		}
	}
	if c.Sinks.S3 != nil && c.Sinks.S3.Region == "" {
		c.Sinks.S3.Region = "us-east-1"
	}
	if c.Sinks.Elasticsearch != nil && c.Sinks.Elasticsearch.BatchSize == 0 {
		c.Sinks.Elasticsearch.BatchSize = 500
	}
	if c.Watch != nil {
		if c.Watch.Pattern == "" {
			c.Watch.Pattern = DefaultWatchPattern
		}
		if c.Watch.Debounce == 0 {
			c.Watch.Debounce = DefaultWatchDebounce
		}
		if c.Watch.Ledger == "" && c.Watch.Inbox != "" {
			c.Watch.Ledger = c.Watch.Inbox + string(os.PathSeparator) + DefaultLedgerName
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validCompressions := map[string]bool{
		"none": true, "gzip": true, "snappy": true,
	}
	if !validCompressions[c.Intermediate.Compression] {
		return fmt.Errorf("invalid intermediate compression: %s", c.Intermediate.Compression)
	}

	seen := make(map[string]bool)
	files := make(map[string]string)
	for i, cat := range c.Report.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if strings.EqualFold(cat.Name, OtherCategoryName) {
			return fmt.Errorf("category %d: %q is reserved for the catch-all category", i, cat.Name)
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate category: %s", cat.Name)
		}
		seen[cat.Name] = true

		base := artifact.FileBase(cat.Name)
		if other, ok := files[base]; ok {
			return fmt.Errorf("categories %q and %q share the artifact file %s", other, cat.Name, base)
		}
		files[base] = cat.Name
	}

	if s3 := c.Sinks.S3; s3 != nil && s3.Bucket == "" {
		return fmt.Errorf("s3 sink has no bucket configured")
	}

	if k := c.Sinks.Kafka; k != nil {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("kafka sink has no brokers configured")
		}
		if k.Topic == "" {
			return fmt.Errorf("kafka sink has no topic configured")
		}
	}

	if es := c.Sinks.Elasticsearch; es != nil {
		if len(es.Addresses) == 0 && es.CloudID == "" {
			return fmt.Errorf("elasticsearch sink has no addresses or cloud ID configured")
		}
		if es.Index == "" {
			return fmt.Errorf("elasticsearch sink has no index configured")
		}
	}

	if c.Metrics != nil && c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics enabled without a textfile path")
	}

	for name, t := range map[string]*TLSConfig{"kafka": c.kafkaTLS(), "elasticsearch": c.elasticsearchTLS()} {
		if t != nil && t.Enabled && (t.CertFile == "") != (t.KeyFile == "") {
			return fmt.Errorf("%s TLS needs both cert_file and key_file", name)
		}
	}

	if c.Tracing != nil && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("invalid tracing sample rate: %v", c.Tracing.SampleRate)
	}

	return nil
}

func (c *Config) kafkaTLS() *TLSConfig {
	if c.Sinks.Kafka == nil {
		return nil
	}
	return c.Sinks.Kafka.TLS
}

func (c *Config) elasticsearchTLS() *TLSConfig {
	if c.Sinks.Elasticsearch == nil {
		return nil
	}
	return c.Sinks.Elasticsearch.TLS
}

// ValidateRun checks the settings a single analysis run needs
func (c *Config) ValidateRun() error {
	if c.Inputs.Archive == "" && c.Inputs.IncrementalLog == "" {
		return fmt.Errorf("either an archive or an incremental log must be configured")
	}
	if strings.TrimSpace(c.Report.Organization) == "" {
		return fmt.Errorf("organization name is required")
	}
	if strings.TrimSpace(c.Report.ChassisID) == "" {
		return fmt.Errorf("chassis ID is required")
	}
	if c.Report.DiskAnalysis && c.Inputs.Archive == "" && c.Inputs.PDList == "" {
		return fmt.Errorf("disk analysis requires a pdlist file or an archive")
	}
	return nil
}

// ValidateWatch checks the settings the inbox watcher needs
func (c *Config) ValidateWatch() error {
	if c.Watch == nil || c.Watch.Inbox == "" {
		return fmt.Errorf("watch mode requires an inbox directory")
	}
	if strings.TrimSpace(c.Report.Organization) == "" {
		return fmt.Errorf("organization name is required")
	}
	if strings.TrimSpace(c.Report.ChassisID) == "" {
		return fmt.Errorf("chassis ID is required")
	}
	return nil
}

// LoadOrDefault loads configuration from file or returns a default configuration
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Inputs: InputsConfig{
			WorkDir: DefaultWorkDir,
		},
		Report: ReportConfig{
			OutputDir: DefaultWorkDir,
		},
		Intermediate: IntermediateConfig{
			Compression: DefaultCompression,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
	return cfg
}
