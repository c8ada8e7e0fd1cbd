package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/xerrors"
)

type minioStorage struct {
	client *minio.Client
	config MinIOConfig
}

type MinIOConfig struct {
	// Endpoint is host:port, without scheme.
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
	// CreateBucket creates the bucket on startup when it does not exist.
	CreateBucket bool
}

func NewMinIOStorage(ctx context.Context, m MinIOConfig) (Storage, error) {
	if m.Bucket == "" {
		return nil, xerrors.New("MinIO bucket is required")
	}

	client, err := minio.New(m.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(m.AccessKey, m.SecretKey, ""),
		Secure: m.UseSSL,
		Region: m.Region,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create minio client: %w", err)
	}

	if m.CreateBucket {
		exists, err := client.BucketExists(ctx, m.Bucket)
		if err != nil {
			return nil, xerrors.Errorf("failed to check bucket: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, m.Bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, xerrors.Errorf("failed to create bucket: %w", err)
			}
		}
	}

	return &minioStorage{
		client: client,
		config: m,
	}, nil
}

func (s *minioStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	if _, err := s.client.PutObject(ctx, s.config.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(key, data),
	}); err != nil {
		return "", xerrors.Errorf("failed to upload to MinIO: %w", err)
	}

	return fmt.Sprintf("minio://%s/%s", s.config.Bucket, key), nil
}

func (s *minioStorage) Get(ctx context.Context, location string) ([]byte, error) {
	key := strings.TrimPrefix(location, fmt.Sprintf("minio://%s/", s.config.Bucket))

	object, err := s.client.GetObject(ctx, s.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, xerrors.Errorf("failed to download from MinIO: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, xerrors.Errorf("failed to read MinIO object: %w", err)
	}
	return data, nil
}
