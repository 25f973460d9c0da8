package libraries

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// SnapshotStore saves rendered canvas images and reports where they went.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, name string, png []byte) (string, error)
}

// GCSClient uploads snapshots to a Cloud Storage bucket.
type GCSClient struct {
	GCS    *storage.Client
	Bucket string
}

// NewGCSClient builds a storage client from base64 encoded service account
// JSON. Empty credentials fall back to application default credentials.
func NewGCSClient(ctx context.Context, encodedCredentials, bucket string) (*GCSClient, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket not set")
	}
	var opts []option.ClientOption
	if encodedCredentials != "" {
		// decode JSON
		decoded, err := base64.StdEncoding.DecodeString(encodedCredentials)
		if err != nil {
			return nil, fmt.Errorf("failed to decode service account json: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
	}

	gcsClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSClient{GCS: gcsClient, Bucket: bucket}, nil
}

func (c *GCSClient) SaveSnapshot(ctx context.Context, name string, png []byte) (string, error) {
	w := c.GCS.Bucket(c.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = "image/png"
	if _, err := w.Write(png); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", c.Bucket, name), nil
}

func (c *GCSClient) Close() error {
	return c.GCS.Close()
}

// DirSnapshotStore writes snapshots below a local directory.
type DirSnapshotStore struct {
	Dir string
}

func (d DirSnapshotStore) SaveSnapshot(_ context.Context, name string, png []byte) (string, error) {
	path := filepath.Join(d.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
