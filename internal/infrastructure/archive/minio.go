package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"payhook/internal/config"
)

// PayloadArchive stores aged webhook payloads in object storage
// before the retention job purges the database rows.
type PayloadArchive interface {
	Store(ctx context.Context, key string, data []byte) error
}

type minioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinIOArchive connects to the object store and ensures the bucket exists
func NewMinIOArchive(ctx context.Context, cfg config.MinIOConfig) (PayloadArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &minioArchive{client: client, bucket: cfg.Bucket}, nil
}

func (a *minioArchive) Store(ctx context.Context, key string, data []byte) error {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := a.client.PutObject(
		opCtx,
		a.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("failed to archive payload %s: %w", key, err)
	}

	return nil
}
