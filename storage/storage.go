package storage

import (
	"context"
	"io"
)

// FileStore is the black-box file-storage surface: put an object, hand out a
// time-limited download URL, delete by key.
type FileStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignDownload(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
