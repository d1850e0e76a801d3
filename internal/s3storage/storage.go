package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pagebound/pagebound/internal/config"
)

// Storage wraps MinIO/S3 interactions for source documents and extracted
// artifacts.
type Storage struct {
	client          *minio.Client
	sourceBucket    string
	artifactsBucket string
	region          string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:          client,
		sourceBucket:    cfg.SourceBucket,
		artifactsBucket: cfg.ArtifactsBucket,
		region:          cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure the source/artifacts buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.sourceBucket, s.artifactsBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// DownloadSource fetches the raw source document bytes.
func (s *Storage) DownloadSource(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.sourceBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get source object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read source object: %w", err)
	}
	return buf, nil
}

// UploadArtifact stores an extracted-text artifact.
func (s *Storage) UploadArtifact(ctx context.Context, objectKey string, data []byte) error {
	reader := bytes.NewReader(data)
	opts := minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"}
	if _, err := s.client.PutObject(ctx, s.artifactsBucket, objectKey, reader, int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	return nil
}

// ExtractedTextKey is the object key the extracted-text artifact of a document
// is stored under.
func ExtractedTextKey(documentID string) string {
	return fmt.Sprintf("extracted/%s.txt", documentID)
}

// PresignArtifactURL returns a signed GET URL for an artifact.
func (s *Storage) PresignArtifactURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.artifactsBucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign artifact: %w", err)
	}
	return u.String(), nil
}
