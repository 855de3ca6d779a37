package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/nanostudio/nanostudio-services-uploads/internal/health"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
)

// ObjectMetadata is what the status prober learns about a stored object.
type ObjectMetadata struct {
	Size        int64
	ContentType string
	TimeCreated time.Time
}

// BlobStorage is the blob-store collaborator: signed write URLs, existence and
// metadata probes, and idempotent deletion.
type BlobStorage interface {
	GenerateUploadUrl(ctx context.Context, key string, contentType string, ttl time.Duration) (string, error)
	GenerateDownloadUrl(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	GetMetadata(ctx context.Context, key string) (*ObjectMetadata, error)
	Delete(ctx context.Context, key string) error

	health.ReadinessCheck
}

type S3BlobStorageImpl struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucketName string

	logger logging.Logger
}

func NewS3BlobStorageImpl(client *s3.Client, bucketName string, l logging.Logger) *S3BlobStorageImpl {
	return &S3BlobStorageImpl{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucketName: bucketName,
		logger:     l,
	}
}

func (s *S3BlobStorageImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	return err
}

func (s *S3BlobStorageImpl) Name() string {
	return "BlobStorage[s3]"
}

// GenerateUploadUrl presigns a write-capable PUT for the given key. The URL
// authorizes exactly one content type; the client must send it back verbatim.
func (s *S3BlobStorageImpl) GenerateUploadUrl(ctx context.Context, key string, contentType string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}

	presigned, err := s.presigner.PresignPutObject(
		ctx,
		&s3.PutObjectInput{
			Bucket:      aws.String(s.bucketName),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		s.logger.Error("failed to presign upload url", "key", key, "error", err)
		return "", fmt.Errorf("failed to presign upload url: %w", err)
	}

	return presigned.URL, nil
}

func (s *S3BlobStorageImpl) GenerateDownloadUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigned, err := s.presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", err
	}

	return presigned.URL, nil
}

func (s *S3BlobStorageImpl) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})

	if err == nil {
		return true, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}

	s.logger.Error("failed to check object existence", "key", key, "error", err)
	return false, fmt.Errorf("failed to check object existence: %w", err)
}

func (s *S3BlobStorageImpl) GetMetadata(ctx context.Context, key string) (*ObjectMetadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("failed to get object metadata", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	meta := &ObjectMetadata{}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		meta.TimeCreated = *out.LastModified
	}

	return meta, nil
}

// Delete removes the object at key. Deleting a non-existent object succeeds,
// which makes cancellation idempotent.
func (s *S3BlobStorageImpl) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("failed to delete object", "key", key, "error", err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	s.logger.Debug("deleted object", "key", key)
	return nil
}
