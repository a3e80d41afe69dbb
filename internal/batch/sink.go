package batch

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/abd2220/retail-copilot/internal/config"
)

// Sink stores a finished results file.
type Sink interface {
	Put(ctx context.Context, data []byte) error
	String() string
}

// OpenSink returns a MinIO sink for "s3://bucket/key" destinations and a
// local file sink otherwise.
func OpenSink(dest string, cfg config.ObjectStoreConfig) (Sink, error) {
	bucket, key, ok, err := ParseS3URL(dest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return FileSink{Path: dest}, nil
	}
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinIOSink{client: client, bucket: bucket, key: key, region: cfg.Region}, nil
}

// ParseS3URL splits "s3://bucket/key". ok is false for anything else.
func ParseS3URL(dest string) (bucket, key string, ok bool, err error) {
	rest, found := strings.CutPrefix(dest, "s3://")
	if !found {
		return "", "", false, nil
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false, fmt.Errorf("object destination %q needs s3://bucket/key", dest)
	}
	return bucket, key, true, nil
}

type FileSink struct {
	Path string
}

func (f FileSink) Put(_ context.Context, data []byte) error {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return os.WriteFile(f.Path, data, 0o644)
}

func (f FileSink) String() string { return f.Path }

// MinIOSink uploads results to an S3-compatible bucket, creating it if needed.
type MinIOSink struct {
	client *minio.Client
	bucket string
	key    string
	region string
}

func NewMinIOClient(cfg config.ObjectStoreConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store credentials are required")
	}
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func (m *MinIOSink) Put(ctx context.Context, data []byte) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", m.bucket, err)
		}
	}
	_, err = m.client.PutObject(ctx, m.bucket, m.key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", m, err)
	}
	return nil
}

func (m *MinIOSink) String() string { return "s3://" + m.bucket + "/" + m.key }

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
