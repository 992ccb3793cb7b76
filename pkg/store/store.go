// Package store abstracts durable keyed-blob storage for the phone index.
//
// A store holds one container per database. Inside a container live
// partition blobs, keyed by the 3-digit phone prefix, plus named blobs
// for anything else a layer above needs to persist (the metadata catalog
// uses one). Three adapters satisfy the interface: a filesystem tree, a
// flat-namespace S3 bucket, and an embedded bbolt file. Ingestion and
// search never know which one they run on.
package store

import "context"

// Store is the partition storage capability.
//
// WritePartition is a full replace of the blob; callers that accumulate
// a prefix across flushes read, merge, and write back. All reads of an
// absent partition fail with ErrPrefixNotFound, reads of an absent named
// blob with ErrBlobNotFound.
type Store interface {
	// CreateContainer establishes the container for a database. Idempotent.
	CreateContainer(ctx context.Context, databaseID string) error

	// Exists reports whether the database container exists.
	Exists(ctx context.Context, databaseID string) (bool, error)

	// ExistsPrefix reports whether the partition blob for prefix exists.
	ExistsPrefix(ctx context.Context, databaseID, prefix string) (bool, error)

	// ReadPartition returns the full content of one partition blob.
	ReadPartition(ctx context.Context, databaseID, prefix string) (Partition, error)

	// WritePartition replaces the partition blob with p.
	WritePartition(ctx context.Context, databaseID, prefix string, p Partition) error

	// ListPrefixes returns every partition prefix present in the container.
	ListPrefixes(ctx context.Context, databaseID string) ([]string, error)

	// ListContainers returns the ids of all database containers.
	ListContainers(ctx context.Context) ([]string, error)

	// ReadBlob returns the named (non-partition) blob from a container.
	ReadBlob(ctx context.Context, databaseID, name string) ([]byte, error)

	// WriteBlob replaces the named blob in a container.
	WriteBlob(ctx context.Context, databaseID, name string, data []byte) error
}

// isPrefixName reports whether a stored blob name is a partition prefix
// (all digits). Named blobs like the catalog's metadata never collide
// with prefixes because prefixes are purely numeric.
func isPrefixName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}
