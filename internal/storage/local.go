package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// DefaultTempDirName is the directory created under os.TempDir when no
// scratch directory is configured.
const DefaultTempDirName = "regionblur"

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage keeps job inputs and encoded outputs in a scratch directory
// on local disk. It cannot deliver to S3; see S3Storage.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the scratch directory if needed.
// An empty dir means os.TempDir()/regionblur.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), DefaultTempDirName)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp directory %s: %w", dir, err)
	}
	return &LocalStorage{dir: dir}, nil
}

// TempDir returns the scratch directory.
func (s *LocalStorage) TempDir() string {
	return s.dir
}

// SaveTemp copies data into a new file named after name and returns its path.
// A partially written file is removed on failure.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(s.dir, pattern(name, ""))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	_, copyErr := io.Copy(f, readerWithContext(ctx, data))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return f.Name(), nil
}

// CreateTemp reserves an empty file named <name>_<random><ext> and returns its path.
func (s *LocalStorage) CreateTemp(ctx context.Context, name, ext string) (string, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(s.dir, pattern(name, ext))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

// LoadTemp opens a file previously returned by SaveTemp or CreateTemp.
// The caller closes the returned reader.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 - paths come from SaveTemp/CreateTemp
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}
	return f, nil
}

// CleanupTemp removes every path, ignoring ones already gone.
// All removal failures are reported together.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctxErr(ctx); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove temp file %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// UploadToS3 always returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(context.Context, string, io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// pattern builds an os.CreateTemp pattern from a caller supplied hint.
// Separators are replaced so the file always lands in the scratch directory.
func pattern(name, ext string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '*' {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "tmp"
	}
	return name + "_*" + ext
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// readerWithContext stops a copy once ctx is done.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
