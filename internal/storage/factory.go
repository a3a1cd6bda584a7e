package storage

import (
	"context"
	"fmt"

	"github.com/taskboard/apiserver/config"
)

// NewFromConfig builds the backend selected by cfg.Backend and wraps it.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.StorageLocal, "":
		backend, err = NewLocalClient(cfg.RootDir)
	case config.StorageMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.StorageGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case config.StorageS3:
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.Backend, err)
	}
	return NewStorage(backend), nil
}
