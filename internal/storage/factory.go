package storage

import (
	"fmt"
	"strings"

	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/logger"
)

// NewProviderFromConfig builds the object store named by STORAGE_BACKEND
// ("disk" when unset, "memory" or "s3").
func NewProviderFromConfig(cfg *config.Config) (Provider, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if backend == "" {
		backend = "disk"
	}

	var (
		provider Provider
		err      error
	)
	switch backend {
	case "disk":
		provider, err = NewDiskBackend(cfg.StoragePath, cfg.StoragePublicURL)
	case "memory":
		if cfg.IsProduction() {
			logger.Warn("memory storage backend selected in production; uploads are lost on restart")
		}
		provider = NewMemoryBackend(cfg.StoragePublicURL)
	case "s3":
		provider, err = NewS3Backend(S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			PublicURL:    cfg.StoragePublicURL,
			URLExpiry:    cfg.S3URLExpiry,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: disk, memory, s3)", cfg.StorageBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", backend, err)
	}

	logger.Info("storage provider ready",
		"backend", backend,
		"folder", cfg.StorageFolder,
		"public_url", cfg.StoragePublicURL != "",
	)
	return provider, nil
}
