package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3-compatible store.
type S3Config struct {
	Endpoint        string
	Region          string // Default: "auto" (R2)
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL prefixes public object URLs as {base}/{bucket}/{key}.
	// Defaults to Endpoint.
	PublicBaseURL string
}

// S3Store uploads objects to S3 or an S3-compatible service such as R2.
type S3Store struct {
	client        *s3.Client
	publicBaseURL string
}

// NewS3Store creates a store with the given configuration.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = cfg.Endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // No session token for R2
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true, // R2 requires path-style addressing
		// R2 and MinIO reject the SDK's default trailing checksums.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})

	return &S3Store{
		client:        client,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Put uploads data to bucket/key.
func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if bucket == "" {
		return ErrInvalidBucket
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PublicURL returns {base}/{bucket}/{key}.
func (s *S3Store) PublicURL(bucket, key string) string {
	return s.publicBaseURL + "/" + bucket + "/" + key
}

// Client returns the underlying S3 client, used by readiness checks.
func (s *S3Store) Client() *s3.Client {
	return s.client
}
