// Package storage uploads artifacts to S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations used for report artifacts.
type ObjectStorage interface {
	// EnsureBucket creates bucket when it does not exist.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads size bytes from reader. A negative size streams.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, size int64, opts PutOptions) error

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// PutOptions carries object metadata.
type PutOptions struct {
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
