package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// Compile-time check that S3Storage implements Storage.
var _ Storage = (*S3Storage)(nil)

// ErrS3BucketRequired is returned by NewS3Storage when no bucket is set.
var ErrS3BucketRequired = errors.New("S3 bucket is required")

// sniffLen is the number of leading bytes inspected to detect content type.
const sniffLen = 3072

// knownContentTypes covers extensions the platform MIME table may lack.
var knownContentTypes = map[string]string{
	".mp4": "video/mp4",
	".png": "image/png",
}

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint targets an S3-compatible service (MinIO, LocalStack) using
	// path-style addressing. Empty means AWS.
	Endpoint string
	// Static credentials. When empty the default AWS credential chain applies.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Storage delivers finished videos to an S3 bucket. Inputs and
// intermediate outputs stay on local disk through the embedded LocalStorage.
type S3Storage struct {
	*LocalStorage
	client   *s3.Client
	bucket   string
	region   string
	endpoint string
}

// NewS3Storage creates the scratch directory and an S3 client for cfg.
func NewS3Storage(ctx context.Context, tempDir string, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, ErrS3BucketRequired
	}

	local, err := NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &S3Storage{
		LocalStorage: local,
		client:       client,
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		endpoint:     strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// UploadToS3 stores data under key and returns the object URL.
func (s *S3Storage) UploadToS3(ctx context.Context, key string, data io.Reader) (string, error) {
	key = strings.TrimPrefix(key, "/")
	contentType, err := detectContentType(key, data)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to bucket %s: %w", key, s.bucket, err)
	}
	return s.objectURL(key), nil
}

// objectURL is path-style for custom endpoints and virtual-hosted for AWS.
func (s *S3Storage) objectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	escaped := strings.Join(segments, "/")

	if s.endpoint != "" {
		return s.endpoint + "/" + url.PathEscape(s.bucket) + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

// detectContentType sniffs the MIME type of data when it can be rewound,
// falling back to the key's extension and finally application/octet-stream.
func detectContentType(key string, data io.Reader) (string, error) {
	if rs, ok := data.(io.ReadSeeker); ok {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return "", fmt.Errorf("seek upload body: %w", err)
		}
		mt, err := mimetype.DetectReader(io.LimitReader(rs, sniffLen))
		if err != nil {
			return "", fmt.Errorf("detect content type: %w", err)
		}
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return "", fmt.Errorf("rewind upload body: %w", err)
		}
		if !mt.Is("application/octet-stream") && !mt.Is("text/plain") {
			return mt.String(), nil
		}
	}
	ext := path.Ext(key)
	if ct, ok := knownContentTypes[ext]; ok {
		return ct, nil
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct, nil
	}
	return "application/octet-stream", nil
}
