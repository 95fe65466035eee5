// Package storage keeps the raw uploaded files.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

var ErrObjectNotFound = errors.New("object not found")

// Storage is a flat key/value blob store.
type Storage interface {
	// Store writes size bytes from reader under key. size may be -1 when
	// unknown.
	Store(ctx context.Context, reader io.Reader, size int64, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore deletes objects last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// ReadAll fetches a whole object.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
