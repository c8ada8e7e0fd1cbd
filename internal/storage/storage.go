// Package storage persists capture artifacts on the local filesystem, in S3
// or in MinIO.
package storage

import (
	"context"
	"mime"
	"net/http"
	"path"

	"golang.org/x/xerrors"
)

type Storage interface {
	// Put stores data under key and returns the location it can be read back from.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get reads back data from a location returned by Put.
	Get(ctx context.Context, location string) ([]byte, error)
}

type Backend string

const (
	BackendFile  Backend = "file"
	BackendS3    Backend = "s3"
	BackendMinIO Backend = "minio"
)

type Config struct {
	Backend Backend
	File    FileConfig
	S3      S3Config
	MinIO   MinIOConfig
}

func New(ctx context.Context, config Config) (Storage, error) {
	switch config.Backend {
	case BackendFile, "":
		return NewFileStorage(ctx, config.File)
	case BackendS3:
		return NewS3Storage(ctx, config.S3)
	case BackendMinIO:
		return NewMinIOStorage(ctx, config.MinIO)
	default:
		return nil, xerrors.Errorf("unknown storage backend: %s", config.Backend)
	}
}

// contentType guesses from the key extension first, since sniffing reports
// JSON and HAR files as plain text.
func contentType(key string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
