// Package archive stores fetch content that overflows C1's in-memory cache
// size limit to S3 instead of dropping it, grounded on
// internal/objectstore/s3.go's AWS SDK v2 client setup.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"agenttic-rag/internal/config"
)

// Archiver writes oversized fetch results to long-term storage. A nil
// *S3Archiver is a valid no-op archiver: callers do not need to branch on
// whether archiving is configured.
type Archiver interface {
	Archive(ctx context.Context, key string, contentType string, data []byte) error
}

// S3Archiver archives objects to a single S3 bucket, keyed by the fetch
// cache's normalized URL key.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// New builds an S3Archiver from cfg. It returns (nil, nil) when no bucket is
// configured, so construction failure only happens for a genuinely broken
// configuration.
func New(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	awsOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return &S3Archiver{client: s3.NewFromConfig(awsCfg), bucket: cfg.S3Bucket}, nil
}

// Archive uploads data under key, prefixed so archived fetch bodies don't
// collide with any other object namespace sharing the bucket.
func (a *S3Archiver) Archive(ctx context.Context, key string, contentType string, data []byte) error {
	if a == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String("fetch-overflow/" + key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := a.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}
