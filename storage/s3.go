package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/galerly/galerly/config"
)

// S3Storage stores objects in an S3 (or R2) bucket via aws-sdk-go-v2.
type S3Storage struct {
	client *s3.Client
	bucket string
}

// NewS3Storage creates an S3 provider. A custom endpoint switches the client
// to path-style addressing, which covers R2 and other S3-compatible stores.
func NewS3Storage(cfg *config.Config) (*S3Storage, error) {
	endpoint := strings.TrimSpace(cfg.S3Endpoint)
	region := strings.TrimSpace(cfg.S3Region)
	bucket := strings.TrimSpace(cfg.S3Bucket)
	accessKey := strings.TrimSpace(cfg.S3AccessKey)
	secretKey := strings.TrimSpace(cfg.S3SecretKey)

	if bucket == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("s3 config incomplete")
	}
	if region == "" {
		region = "auto"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = &endpoint
		}
	})

	return &S3Storage{
		client: client,
		bucket: bucket,
	}, nil
}

func (s *S3Storage) SaveWithContext(ctx context.Context, key string, file io.Reader) error {
	// PutObject needs a seekable body for signing; buffer non-seekable input.
	body, ok := file.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(file)
		if err != nil {
			return fmt.Errorf("failed to buffer object '%s' for s3 upload: %w", key, err)
		}
		body = bytes.NewReader(data)
	}

	contentType := "application/octet-stream"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        body,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object '%s' to s3: %w", key, err)
	}
	return nil
}

func (s *S3Storage) GetWithContext(ctx context.Context, key string) (io.ReadSeeker, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("file not found in s3: %s", key)
		}
		return nil, fmt.Errorf("failed to get object '%s' from s3: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s' from s3: %w", key, err)
	}
	return bytes.NewReader(data), nil
}

func (s *S3Storage) DeleteWithContext(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete object '%s' from s3: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object '%s' in s3: %w", key, err)
	}
	return true, nil
}

func (s *S3Storage) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket})
	return err
}

func (s *S3Storage) Name() string {
	return "s3"
}
