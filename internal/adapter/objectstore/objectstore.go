// Package objectstore moves run artifacts between the local filesystem
// and an S3-compatible store. Remote runs upload their artifact
// directory under the run ID prefix; the host downloads it afterwards.
package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wardenworks/warden/internal/config"
)

// Store is an artifact store backed by one bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New creates a Store from configuration.
func New(cfg config.ObjectStore) (*Store, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func validate(cfg config.ObjectStore) error {
	switch {
	case cfg.Endpoint == "":
		return fmt.Errorf("objectstore: endpoint is required")
	case cfg.AccessKey == "" || cfg.SecretKey == "":
		return fmt.Errorf("objectstore: credentials are required")
	case cfg.Bucket == "":
		return fmt.Errorf("objectstore: bucket is required")
	}
	return nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("objectstore: bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("objectstore: make bucket: %w", err)
	}
	return nil
}

// UploadRun uploads every file under dir to "<runID>/<relative path>".
func (s *Store) UploadRun(ctx context.Context, runID, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := runID + "/" + filepath.ToSlash(rel)
		if _, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{}); err != nil {
			return fmt.Errorf("objectstore: upload %s: %w", key, err)
		}
		return nil
	})
}

// DownloadRun fetches every object under the run's prefix into destDir,
// preserving relative paths. It returns the number of objects fetched.
func (s *Store) DownloadRun(ctx context.Context, runID, destDir string) (int, error) {
	prefix := runID + "/"
	count := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return count, fmt.Errorf("objectstore: list %s: %w", prefix, obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" || strings.Contains(rel, "..") {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return count, fmt.Errorf("objectstore: mkdir for %s: %w", rel, err)
		}
		if err := s.client.FGetObject(ctx, s.bucket, obj.Key, dest, minio.GetObjectOptions{}); err != nil {
			return count, fmt.Errorf("objectstore: download %s: %w", obj.Key, err)
		}
		count++
	}
	return count, nil
}

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
