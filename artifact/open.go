package artifact

import (
	"context"
	"fmt"

	"city311-api/config"
)

// OpenStore builds the store selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.StorageLocal:
		return NewLocalStore(cfg.Dir)
	case config.StorageS3:
		return NewS3Store(ctx, S3Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
