package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// resultsPrefix is the key prefix for exported results.
const resultsPrefix = "results/"

// S3Options configures an S3-compatible bucket (AWS, Tigris, MinIO, R2).
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter uploads results to a bucket.
type S3Exporter struct {
	client putObjectAPI
	bucket string
	logger *slog.Logger
}

// NewS3Exporter builds an S3 client with static credentials. A custom
// endpoint switches to path-style addressing.
func NewS3Exporter(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("s3 exporter initialized", "bucket", opts.Bucket, "endpoint", opts.Endpoint)
	return &S3Exporter{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// Export puts content at results/{name} and returns its s3:// location.
func (e *S3Exporter) Export(ctx context.Context, name, content string) (string, error) {
	key := resultsPrefix + name
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload result: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", e.bucket, key)
	e.logger.Debug("result exported", "location", location, "bytes", len(content))
	return location, nil
}
