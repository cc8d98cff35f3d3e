package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key does not exist in the provider.
var ErrNotFound = errors.New("object not found")

// ErrNoPublicURL is returned by URL when the provider has no delivery
// endpoint and content must be streamed through the application.
var ErrNoPublicURL = errors.New("provider has no public url")

// ErrInvalidKey is returned for keys that are empty, absolute or escape the store.
var ErrInvalidKey = errors.New("invalid storage key")

// copyBufferSize is the buffer size used for content copies (8MB aligns with S3 multipart upload parts)
const copyBufferSize = 8 * 1024 * 1024

// ResourceKind selects the delivery URL shape for an object.
type ResourceKind string

const (
	KindImage ResourceKind = "image"
	KindVideo ResourceKind = "video"
	KindRaw   ResourceKind = "raw"
)

// UploadOptions describes an object being stored.
type UploadOptions struct {
	Folder           string // Key prefix, e.g. "drive-uploads"
	OriginalFilename string // Used only for its extension
	ContentType      string
	Kind             ResourceKind // Delivery URL shape; empty means raw
}

// UploadResult is returned by a successful Upload.
type UploadResult struct {
	Key  string // Provider identifier, "<folder>/<uuid><ext>"
	URL  string // Delivery URL, empty when the provider streams through the app
	Hash string // SHA-256 hex digest of the content
	Size int64
}

// Provider is the media-storage boundary. Implementations are constructed once
// at startup and are safe for concurrent use.
type Provider interface {
	// Upload stores content under a freshly generated key.
	Upload(ctx context.Context, r io.Reader, opts UploadOptions) (UploadResult, error)

	// Destroy removes an object. Missing objects are not an error.
	Destroy(ctx context.Context, key string) error

	// Open returns a reader for the object. Caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns a delivery URL for the object, or ErrNoPublicURL.
	URL(ctx context.Context, key string, kind ResourceKind) (string, error)

	// HealthCheck verifies the provider is reachable (cheap, safe for frequent polling).
	HealthCheck(ctx context.Context) error
}

// newKey generates "<folder>/<uuid><ext>".
func newKey(folder, originalFilename string) string {
	name := uuid.New().String() + strings.ToLower(path.Ext(originalFilename))
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func validKey(key string) error {
	if key == "" || !fs.ValidPath(key) || key == "." {
		return ErrInvalidKey
	}
	return nil
}

// publicURL builds "<base>/<kind>/upload/<key>".
func publicURL(base string, kind ResourceKind, key string) string {
	if kind == "" {
		kind = KindRaw
	}
	return strings.TrimRight(base, "/") + "/" + string(kind) + "/upload/" + key
}
