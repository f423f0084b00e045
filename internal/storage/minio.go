package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ledger-dashboard/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrArtifactNotFound is returned when an archived artifact does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArchivedArtifact describes one archived fetch artifact
type ArchivedArtifact struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// MinIOArchive keeps a copy of every fetch artifact in an object store bucket
type MinIOArchive struct {
	client *minio.Client
	bucket string
}

// NewMinIOArchive connects to MinIO and ensures the bucket exists
func NewMinIOArchive(ctx context.Context, cfg *config.ArchiveConfig) (*MinIOArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOArchive{client: client, bucket: cfg.Bucket}, nil
}

// objectName keys archived artifacts by import so reruns never overwrite each other
func objectName(prefix, file string) string {
	return prefix + "/" + filepath.Base(file)
}

// Archive uploads the given local artifact files under prefix
func (a *MinIOArchive) Archive(ctx context.Context, prefix string, paths []string) error {
	for _, p := range paths {
		if err := a.upload(ctx, objectName(prefix, p), p); err != nil {
			return err
		}
	}
	return nil
}

func (a *MinIOArchive) upload(ctx context.Context, name, path string) error {
	f, err := os.Open(path) // #nosec G304 - path comes from the import work directory
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact %s: %w", path, err)
	}

	_, err = a.client.PutObject(ctx, a.bucket, name, f, st.Size(), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact '%s': %w", name, err)
	}
	return nil
}

// List returns archived artifacts, newest first
func (a *MinIOArchive) List(ctx context.Context) ([]ArchivedArtifact, error) {
	out := []ArchivedArtifact{}
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", obj.Err)
		}
		out = append(out, ArchivedArtifact{Name: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

// Open streams one archived artifact. The caller closes the reader.
func (a *MinIOArchive) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if _, err := a.client.StatObject(ctx, a.bucket, name, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to stat artifact '%s': %w", name, err)
	}

	obj, err := a.client.GetObject(ctx, a.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact '%s': %w", name, err)
	}
	return obj, nil
}
