package storage

import (
	"context"
	"fmt"
	"os"

	fsstore "archivecore/internal/infra/storage/fs"
	memorystore "archivecore/internal/infra/storage/memory"
	s3store "archivecore/internal/infra/storage/s3"
)

// NewFilesystem constructs a filesystem-backed Store rooted at the provided
// path.
func NewFilesystem(root string) (Store, error) {
	return fsstore.New(root)
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// S3Config re-exports the infra S3 configuration type.
type S3Config = s3store.Config

// NewS3 constructs an S3-backed Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3store.New(ctx, cfg)
}

// Open selects a Store implementation using environment variables.
//
//	ARCHIVECORE_STORAGE_DRIVER: fs|s3|memory (default fs)
//	ARCHIVECORE_STORAGE_FS_ROOT: directory root when driver=fs (default ./filedata)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("ARCHIVECORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("ARCHIVECORE_STORAGE_FS_ROOT"))
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
