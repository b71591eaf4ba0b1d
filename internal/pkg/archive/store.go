// Package archive keeps full webhook bodies that exceed the size stored in
// the delivery log, in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
)

// maxFetchBytes bounds payloads read back from the bucket.
const maxFetchBytes = 32 << 20

var ErrDisabled = errors.New("payload archive is disabled")

// Store wraps the S3 client with payload archive functionality
type Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates the S3 client and checks that the bucket is reachable.
// Outside production a missing bucket is created.
func NewStore(ctx context.Context, cfg config.Archive, createMissingBucket bool) (*Store, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services generally need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	store := &Store{
		s3Client: s3Client,
		bucket:   cfg.BucketName,
	}

	if err := store.ensureBucket(ctx, cfg, createMissingBucket); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Archive] Using bucket %s for oversized webhook payloads", cfg.BucketName)
	return store, nil
}

func (s *Store) ensureBucket(ctx context.Context, cfg config.Archive, create bool) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	if !create {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}

	log.Warnf("[Archive] Bucket %s not found, attempting to create it", s.bucket)
	input := &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}
	// Only AWS itself needs a location constraint outside us-east-1
	if cfg.EndpointURL == "" && cfg.Region != "" && cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(cfg.Region),
		}
	}
	if _, err := s.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ArchivePayload stores body under key.
func (s *Store) ArchivePayload(ctx context.Context, key string, body []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"upload-source": "ledgersync-webhook",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Debugf("[Archive] Stored s3://%s/%s (%d bytes)", s.bucket, key, len(body))
	return nil
}

// FetchPayload reads back a body stored by ArchivePayload.
func (s *Store) FetchPayload(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return body, nil
}
