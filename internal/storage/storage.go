// Package storage defines the object-store interface used by the audit archive.
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.AuditArchiveConfig) (storage.Storage, error) {
//	        return New(&cfg.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports each backend so its init() runs.
package storage

import (
	"context"
	"io"
)

// MetadataChecksumKey is the object metadata key holding the hex SHA-256 of the object body.
const MetadataChecksumKey = "sha256"

// Storage is a write-mostly object store for archived audit batches.
type Storage interface {
	// Upload stores the object and records its SHA-256 in object metadata.
	// Writing to an existing path replaces the object.
	Upload(ctx context.Context, path string, reader io.Reader) (*UploadResult, error)

	// Exists reports whether an object is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// UploadResult describes a stored object
type UploadResult struct {
	Path     string
	Size     int64
	Checksum string
}
