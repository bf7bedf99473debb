package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 records PutObject requests made against a path-style endpoint.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestS3Storage(t *testing.T, endpoint string) *S3Storage {
	t.Helper()
	s, err := NewS3Storage(context.Background(), filepath.Join(t.TempDir(), "scratch"), S3Config{
		Bucket:          "blurred",
		Region:          "eu-west-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	require.NoError(t, err)
	return s
}

func TestNewS3Storage(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		s := newTestS3Storage(t, "http://localhost:9000/")
		assert.Equal(t, "blurred", s.bucket)
		assert.Equal(t, "eu-west-1", s.region)
		assert.Equal(t, "http://localhost:9000", s.endpoint)
		assert.DirExists(t, s.TempDir())
	})

	t.Run("bucket required", func(t *testing.T) {
		_, err := NewS3Storage(context.Background(), t.TempDir(), S3Config{Region: "eu-west-1"})
		assert.ErrorIs(t, err, ErrS3BucketRequired)
	})
}

func TestS3Storage_UsesLocalScratch(t *testing.T) {
	s := newTestS3Storage(t, "http://localhost:9000")
	ctx := context.Background()

	path, err := s.SaveTemp(ctx, "input", strings.NewReader("video"))
	require.NoError(t, err)
	rc, err := s.LoadTemp(ctx, path)
	require.NoError(t, err)
	content, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "video", string(content))
	require.NoError(t, s.CleanupTemp(ctx, []string{path}))
	assert.NoFileExists(t, path)
}

func TestS3Storage_UploadToS3(t *testing.T) {
	fake, srv := newFakeS3(t)
	s := newTestS3Storage(t, srv.URL)

	// Minimal ISO BMFF header: size + "ftyp" + major brand "isom"
	mp4 := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypisom\x00\x00\x02\x00isomiso2")...)

	url, err := s.UploadToS3(context.Background(), "/videos/job-1.mp4", bytes.NewReader(mp4))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/blurred/videos/job-1.mp4", url)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, mp4, fake.objects["/blurred/videos/job-1.mp4"])
	assert.Equal(t, "video/mp4", fake.types["/blurred/videos/job-1.mp4"])
}

func TestS3Storage_UploadToS3_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	s := newTestS3Storage(t, srv.URL)

	_, err := s.UploadToS3(context.Background(), "videos/x.mp4", bytes.NewReader([]byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket blurred")
}

func TestS3Storage_ObjectURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		key      string
		want     string
	}{
		{"aws virtual hosted", "", "videos/job-1.mp4", "https://blurred.s3.eu-west-1.amazonaws.com/videos/job-1.mp4"},
		{"custom endpoint path style", "http://minio:9000", "videos/job-1.mp4", "http://minio:9000/blurred/videos/job-1.mp4"},
		{"escapes segments", "", "videos/my clip.mp4", "https://blurred.s3.eu-west-1.amazonaws.com/videos/my%20clip.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3Storage{bucket: "blurred", region: "eu-west-1", endpoint: tt.endpoint}
			assert.Equal(t, tt.want, s.objectURL(tt.key))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		key  string
		data io.Reader
		want string
	}{
		{"sniffed png", "frame.bin", bytes.NewReader([]byte("\x89PNG\r\n\x1a\n0000")), "image/png"},
		{"extension fallback for unseekable body", "videos/out.mp4", strings.NewReader("x"), "video/mp4"},
		{"extension fallback for plain bytes", "videos/out.mp4", io.LimitReader(strings.NewReader("plain"), 5), "video/mp4"},
		{"unknown", "blob", io.LimitReader(strings.NewReader("plain"), 5), "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detectContentType(tt.key, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType_RewindsBody(t *testing.T) {
	body := bytes.NewReader([]byte("\x89PNG\r\n\x1a\nrest of the file"))
	_, err := detectContentType("a.png", body)
	require.NoError(t, err)

	content, _ := io.ReadAll(body)
	assert.True(t, strings.HasPrefix(string(content), "\x89PNG"))
}
