package output

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config contains S3-specific configuration
type S3Config struct {
	Bucket       string
	Region       string
	Prefix       string
	Endpoint     string // S3-compatible services such as MinIO
	UsePathStyle bool
	StorageClass string
}

// objectPutter is the subset of the S3 client used by the uploader
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores run files under <prefix>/<organization>/<chassis>/
type S3Uploader struct {
	config S3Config
	client objectPutter
	folder string
	stats  sinkStats
}

// NewS3Uploader creates an uploader using the default AWS credential chain
func NewS3Uploader(ctx context.Context, s3Config S3Config, organization, chassisID string) (*S3Uploader, error) {
	if s3Config.Bucket == "" {
		return nil, fmt.Errorf("no bucket specified")
	}

	if s3Config.Region == "" {
		return nil, fmt.Errorf("no region specified")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(s3Config.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if s3Config.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s3Config.Endpoint)
			o.UsePathStyle = s3Config.UsePathStyle
		})
	}

	return newS3Uploader(s3Config, s3.NewFromConfig(cfg, opts...), organization, chassisID), nil
}

func newS3Uploader(s3Config S3Config, client objectPutter, organization, chassisID string) *S3Uploader {
	return &S3Uploader{
		config: s3Config,
		client: client,
		folder: path.Join(keySegment(organization), keySegment(chassisID)),
	}
}

func keySegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", `\`, "_", " ", "_").Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

// Key returns the object key used for a local file
func (s *S3Uploader) Key(localPath string) string {
	return path.Join(s.config.Prefix, s.folder, filepath.Base(localPath))
}

// Upload puts one file into the bucket
func (s *S3Uploader) Upload(ctx context.Context, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		s.stats.failure(1, err)
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.Key(localPath)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(localPath)),
	}
	if s.config.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.config.StorageClass)
	}

	start := time.Now()
	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.stats.failure(1, err)
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.stats.success(1, int64(len(data)), time.Since(start))
	return nil
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// Close closes the S3 uploader
func (s *S3Uploader) Close() error {
	return nil
}

// Name returns the sink name
func (s *S3Uploader) Name() string {
	return "s3"
}

// Metrics returns the current metrics
func (s *S3Uploader) Metrics() *SinkMetrics {
	return s.stats.snapshot()
}
