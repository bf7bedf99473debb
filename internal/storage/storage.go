// Package storage holds the files a blur job reads and writes: the uploaded
// source video, the encoded output, and optionally the copy delivered to S3.
package storage

import (
	"context"
	"io"
)

// Storage is the file port used by the job service.
//
// Temp files live in a scratch directory owned by the implementation and are
// removed with CleanupTemp once a job no longer needs them.
type Storage interface {
	// SaveTemp writes data to a new scratch file. name is a filename hint.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CreateTemp reserves an empty scratch file ending in ext for encoders
	// that write to a path themselves.
	CreateTemp(ctx context.Context, name, ext string) (path string, err error)

	// LoadTemp opens a scratch file. The caller closes the reader.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes scratch files. Missing files are not an error.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 stores data under key and returns its URL, or
	// ErrS3NotConfigured when there is no bucket.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
