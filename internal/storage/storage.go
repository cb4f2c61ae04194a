// Package storage re-exports the core storage abstractions for physical data
// files and hosts the backend registry and factory. Datasets reference files
// by (storage driver identifier, key); the checksum validator reads file
// bytes through this layer. The shared types live in the core sub-package so
// that backend implementations can depend on them without importing this
// package back.
package storage

import (
	"archivecore/internal/storage/core"
)

type (
	// Driver identifies a concrete storage backend implementation.
	Driver = core.Driver
	// PutOptions specifies optional parameters for Put.
	PutOptions = core.PutOptions
	// Info describes a stored object.
	Info = core.Info
	// Store is the interface for storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem implementation.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is an S3 / MinIO compatible implementation.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory implementation used in tests.
	DriverMemory = core.DriverMemory
)
