package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Timeouts
	OperationTimeout time.Duration
	DownloadTimeout  time.Duration
	UploadTimeout    time.Duration
}

// DefaultS3Config returns sensible defaults for S3 configuration.
func DefaultS3Config(region string) S3Config {
	return S3Config{
		Region:           region,
		OperationTimeout: 30 * time.Second,
		DownloadTimeout:  5 * time.Minute,
		UploadTimeout:    time.Minute,
	}
}

// S3Client wraps the SDK client with per-operation timeouts.
type S3Client struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Client creates a new S3 client. Credentials come from cfg when set,
// otherwise from the default AWS chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	defaults := DefaultS3Config(cfg.Region)
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaults.DownloadTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaults.UploadTimeout
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeObjectStorage, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{cfg: cfg, client: client}, nil
}

// Reader returns a reader for an object and its size.
func (c *S3Client) Reader(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)

	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, 0, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}

	// cancel the timeout once the body is closed
	return &cancelOnCloseReader{
		ReadCloser: output.Body,
		cancel:     cancel,
	}, aws.ToInt64(output.ContentLength), nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}

// Stat returns object metadata.
func (c *S3Client) Stat(ctx context.Context, bucket, key string) (*FileInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	output, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}

	info := &FileInfo{
		Path: "s3://" + bucket + "/" + key,
		Size: aws.ToInt64(output.ContentLength),
	}
	if output.LastModified != nil {
		info.ModTime = output.LastModified.Unix()
	}
	return info, nil
}

// Put uploads body as a single object.
func (c *S3Client) Put(ctx context.Context, bucket, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if ct := contentType(key); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := c.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func contentType(key string) string {
	switch ext := path.Ext(key); ext {
	case ".dot", ".gv":
		return "text/vnd.graphviz"
	case "":
		return ""
	default:
		return mime.TypeByExtension(ext)
	}
}

// S3Storage adapts S3Client to Storage for one bucket.
type S3Storage struct {
	client *S3Client
	bucket string
}

func (s *S3Storage) Scheme() string { return "s3" }

func (s *S3Storage) Reader(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return s.client.Reader(ctx, s.bucket, key)
}

// Writer buffers the object in memory and uploads it on Close.
func (s *S3Storage) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	return &s3Writer{ctx: ctx, client: s.client, bucket: s.bucket, key: key}, nil
}

func (s *S3Storage) Stat(ctx context.Context, key string) (*FileInfo, error) {
	return s.client.Stat(ctx, s.bucket, key)
}

// s3Writer implements io.WriteCloser for small S3 uploads.
type s3Writer struct {
	ctx    context.Context
	client *S3Client
	bucket string
	key    string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.client.Put(w.ctx, w.bucket, w.key, w.buf.Bytes())
}
