// Package s3 is the S3-compatible BlobStore. Originals and derived variants
// live in separate buckets.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"aboba/core/media/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var _ domain.BlobStore = (*Store)(nil)

type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient

	original string
	derived  string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		original:  cfg.OriginalBucket,
		derived:   cfg.DerivedBucket,
	}, nil
}

// PresignOriginalUpload implements BlobStore.
func (s *Store) PresignOriginalUpload(ctx context.Context, key, mime string, maxBytes int64, ttl time.Duration) (*domain.PresignedUpload, error) {
	req, err := s.presigner.PresignPostObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.original),
		Key:    aws.String(key),
	}, func(o *s3.PresignPostOptions) {
		o.Expires = ttl
		o.Conditions = []interface{}{
			[]interface{}{"content-length-range", 1, maxBytes},
			map[string]string{"Content-Type": mime},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("presign post %q: %w", key, err)
	}

	fields := make(map[string]string, len(req.Values)+1)
	for k, v := range req.Values {
		fields[k] = v
	}
	// the Content-Type condition only holds if the client sends the field
	if _, ok := fields["Content-Type"]; !ok {
		fields["Content-Type"] = mime
	}

	return &domain.PresignedUpload{URL: req.URL, Fields: fields}, nil
}

// OpenOriginal implements BlobStore.
func (s *Store) OpenOriginal(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.original),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%q: %w", key, domain.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("get original %q: %w", key, err)
	}
	return out.Body, nil
}

// PutDerived implements BlobStore.
func (s *Store) PutDerived(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.derived),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put derived %q: %w", key, err)
	}
	return nil
}

// PresignDerivedDownload implements BlobStore.
func (s *Store) PresignDerivedDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.derived),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get %q: %w", key, err)
	}
	return req.URL, nil
}

// HealthCheck verifies both buckets are reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	for _, bucket := range []string{s.original, s.derived} {
		if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
			return fmt.Errorf("head bucket %q: %w", bucket, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
