package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
)

// DiskBackend implements Provider using the local filesystem.
// It uses os.Root for sandboxed file operations, preventing path traversal attacks.
type DiskBackend struct {
	root      *os.Root
	basePath  string
	publicURL string
}

// NewDiskBackend creates a new disk-based provider rooted at basePath, which
// is created if it doesn't exist. publicURL may be empty.
func NewDiskBackend(basePath, publicURL string) (*DiskBackend, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage root: %w", err)
	}

	return &DiskBackend{
		root:      root,
		basePath:  basePath,
		publicURL: publicURL,
	}, nil
}

func (d *DiskBackend) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (UploadResult, error) {
	key := newKey(opts.Folder, opts.OriginalFilename)

	if dir := path.Dir(key); dir != "." {
		if err := d.root.MkdirAll(dir, 0755); err != nil {
			return UploadResult{}, fmt.Errorf("failed to create folder: %w", err)
		}
	}

	file, err := d.root.Create(key)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// Hash while writing using large buffer for better throughput
	hasher := sha256.New()
	writer := io.MultiWriter(file, hasher)
	buf := make([]byte, copyBufferSize)

	size, err := io.CopyBuffer(writer, r, buf)
	if err != nil {
		d.root.Remove(key)
		return UploadResult{}, fmt.Errorf("failed to write file: %w", err)
	}

	res := UploadResult{
		Key:  key,
		Hash: hex.EncodeToString(hasher.Sum(nil)),
		Size: size,
	}
	if d.publicURL != "" {
		res.URL = publicURL(d.publicURL, opts.Kind, key)
	}
	return res, nil
}

func (d *DiskBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	file, err := d.root.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (d *DiskBackend) Destroy(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := d.root.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (d *DiskBackend) URL(ctx context.Context, key string, kind ResourceKind) (string, error) {
	if d.publicURL == "" {
		return "", ErrNoPublicURL
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	return publicURL(d.publicURL, kind, key), nil
}

func (d *DiskBackend) HealthCheck(ctx context.Context) error {
	if _, err := d.root.Stat("."); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}

// Close releases resources held by the backend.
func (d *DiskBackend) Close() error {
	return d.root.Close()
}
