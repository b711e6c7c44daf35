package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
	GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error)
}

type awsS3Client struct {
	uploader  *manager.Uploader
	presigner *s3.PresignClient
}

// NewS3Client builds a client from the ambient AWS configuration (env vars,
// shared config, instance role).
func NewS3Client(ctx context.Context, region string) (S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &awsS3Client{
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
	}, nil
}

func (c *awsS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *awsS3Client) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign s3://%s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// noopS3Client is used when object storage is disabled in configuration.
type noopS3Client struct{}

func NewNoopS3Client() S3Client {
	return &noopS3Client{}
}

func (c *noopS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	return nil
}

func (c *noopS3Client) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	return "", fmt.Errorf("object storage disabled")
}
