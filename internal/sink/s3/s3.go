// Package s3 provides a FileSink that uploads to an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/absfs/smbpoll"
)

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
}

// PutObjectAPI is the part of the S3 client the sink uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Sink uploads each file as an object named prefix + relative path.
type Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

var _ smbpoll.FileSink = (*Sink)(nil)

// New builds an S3 client from cfg and the default AWS credential chain.
// Static keys in cfg take precedence over the chain.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient creates a sink around an existing client.
func NewWithClient(client PutObjectAPI, cfg Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(smbpoll.NormalizePath(cfg.Prefix), "/"),
		logger: logger.With(zap.String("bucket", cfg.Bucket)),
	}
}

// objectKey maps name onto the bucket, below the configured prefix.
func (s *Sink) objectKey(name string) (string, error) {
	key := strings.TrimPrefix(path.Clean("/"+smbpoll.NormalizePath(name)), "/")
	if key == "" {
		return "", fmt.Errorf("invalid name: %q", name)
	}
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key, nil
}

// Put uploads content and returns the object key. Bodies that cannot seek
// are buffered first so the request can be signed and retried.
func (s *Sink) Put(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := s.objectKey(name)
	if err != nil {
		return "", err
	}

	body, ok := content.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(content)
		if err != nil {
			return "", fmt.Errorf("read content for %s: %w", key, err)
		}
		body = bytes.NewReader(data)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Debug("S3 put object", zap.String("key", key))
	return key, nil
}
