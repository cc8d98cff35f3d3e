package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/liamg/memoryfs"
)

// MemoryBackend implements Provider using an in-memory filesystem.
// Used by tests and single-process demos. Thread-safe for concurrent use.
type MemoryBackend struct {
	fs        *memoryfs.FS
	mu        sync.RWMutex
	publicURL string

	// FailDestroy makes Destroy return this error when set. Tests use it to
	// exercise remote-failure paths.
	FailDestroy error
}

func NewMemoryBackend(publicURL string) *MemoryBackend {
	return &MemoryBackend{
		fs:        memoryfs.New(),
		publicURL: publicURL,
	}
}

func (m *MemoryBackend) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (UploadResult, error) {
	key := newKey(opts.Folder, opts.OriginalFilename)

	// memoryfs.WriteFile requires complete content, so buffer while hashing.
	hasher := sha256.New()
	var buf bytes.Buffer
	copyBuf := make([]byte, copyBufferSize)
	size, err := io.CopyBuffer(io.MultiWriter(&buf, hasher), r, copyBuf)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	if dir := path.Dir(key); dir != "." {
		if err := m.fs.MkdirAll(dir, 0755); err != nil {
			m.mu.Unlock()
			return UploadResult{}, fmt.Errorf("failed to create folder: %w", err)
		}
	}
	err = m.fs.WriteFile(key, buf.Bytes(), 0644)
	m.mu.Unlock()
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to write file: %w", err)
	}

	res := UploadResult{
		Key:  key,
		Hash: hex.EncodeToString(hasher.Sum(nil)),
		Size: size,
	}
	if m.publicURL != "" {
		res.URL = publicURL(m.publicURL, opts.Kind, key)
	}
	return res, nil
}

func (m *MemoryBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	content, err := m.fs.ReadFile(key)
	m.mu.RUnlock()
	if err != nil {
		if isNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *MemoryBackend) Destroy(ctx context.Context, key string) error {
	if m.FailDestroy != nil {
		return m.FailDestroy
	}
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	err := m.fs.Remove(key)
	m.mu.Unlock()
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (m *MemoryBackend) URL(ctx context.Context, key string, kind ResourceKind) (string, error) {
	if m.publicURL == "" {
		return "", ErrNoPublicURL
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	return publicURL(m.publicURL, kind, key), nil
}

// HealthCheck always succeeds; the memory backend has no external dependencies.
func (m *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// Exists reports whether key is currently stored.
func (m *MemoryBackend) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.fs.Stat(key)
	return err == nil
}

// FileCount returns the number of objects currently stored across all folders.
func (m *MemoryBackend) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	_ = fs.WalkDir(m.fs, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

// isNotExist checks if an error indicates the file doesn't exist.
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	// memoryfs wraps errors, so check the error message
	errStr := err.Error()
	return strings.Contains(errStr, "file does not exist") ||
		strings.Contains(errStr, "no such file")
}
