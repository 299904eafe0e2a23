// ABOUTME: Builds the asset fetch chain from configuration
// ABOUTME: http, https, file and optional minio/s3 behind a disk cache
package cli

import (
	"fmt"

	"github.com/stemdeck/stemdeck-go/internal/config"
	"github.com/stemdeck/stemdeck-go/pkg/asset"
	"go.uber.org/zap"
)

// buildFetcher routes URLs by scheme. Remote downloads are kept in the
// disk cache when cacheDir is set.
func buildFetcher(cfg *config.Config, useDisk bool, logger *zap.Logger) (asset.Fetcher, error) {
	router := asset.NewRouter(cfg.HTTPTimeout)

	if cfg.HasMinio() {
		mf, err := asset.NewMinioFetcher(asset.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure object storage: %w", err)
		}
		router.Handle("minio", mf)
		router.Handle("s3", mf)
		logger.Debug("object storage enabled", zap.String("endpoint", cfg.MinioEndpoint))
	}

	if !useDisk || cfg.CacheDir == "" {
		return router, nil
	}

	disk, err := asset.NewDiskCache(cfg.CacheDir, router, logger)
	if err != nil {
		return nil, err
	}
	return disk, nil
}
