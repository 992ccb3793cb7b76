// Package catalog maintains the per-database summary records. It is a
// thin typed layer over the store: metadata lives as a named blob inside
// each database container, and the database listing is derived from the
// store's containers.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eunmann/phonedb/pkg/store"
)

// metadataBlob is the blob name metadata is stored under. It is not a
// valid partition prefix, so it never shadows one.
const metadataBlob = "meta"

// Metadata is the summary record of one ingested database. It is written
// once, by the ingestion run that created the database, and read-only
// afterward.
type Metadata struct {
	ID               string `json:"id"`
	OriginalFileName string `json:"originalFileName"`
	TotalRecords     int64  `json:"totalRecords"`
	// PartitionsCount is the advisory ceil(totalRecords/partitionSize)
	// figure. Actual partitioning is keyed by phone prefix; Stats reports
	// the ground truth from the store.
	PartitionsCount int       `json:"partitionsCount"`
	PartitionSize   int64     `json:"partitionSize"`
	CreatedAt       time.Time `json:"createdAt"`
	PhoneColumn     string    `json:"phoneColumn"`
}

// Stats is the live view of a database, combining stored metadata with
// what the store actually holds.
type Stats struct {
	TotalRecords int64
	// AdvisoryPartitions is PartitionsCount from metadata.
	AdvisoryPartitions int
	// ActualPartitionCount is the number of partition blobs in the store.
	ActualPartitionCount int
	// Diverged flags advisory/actual disagreement. The store is ground
	// truth; the advisory figure is derived from a size hint unrelated to
	// prefix bucketing, so divergence is expected rather than alarming.
	Diverged  bool
	Prefixes  []string
	CreatedAt time.Time
}

// Catalog reads and writes database metadata through a store.
type Catalog struct {
	store store.Store
}

// New creates a catalog over s.
func New(s store.Store) *Catalog {
	return &Catalog{store: s}
}

// Save replaces the metadata record for md.ID.
func (c *Catalog) Save(ctx context.Context, md Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata %s: %w", md.ID, err)
	}
	if err := c.store.WriteBlob(ctx, md.ID, metadataBlob, data); err != nil {
		return fmt.Errorf("save metadata %s: %w", md.ID, err)
	}
	return nil
}

// Load returns the metadata for a database, or store.ErrDatabaseNotFound
// if the database or its metadata is absent.
func (c *Catalog) Load(ctx context.Context, databaseID string) (Metadata, error) {
	data, err := c.store.ReadBlob(ctx, databaseID, metadataBlob)
	if err != nil {
		if errors.Is(err, store.ErrBlobNotFound) || errors.Is(err, store.ErrDatabaseNotFound) {
			return Metadata{}, fmt.Errorf("metadata %s: %w", databaseID, store.ErrDatabaseNotFound)
		}
		return Metadata{}, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata %s: %w", databaseID, err)
	}
	return md, nil
}

// ListDatabases returns the ids of all database containers in the store.
func (c *Catalog) ListDatabases(ctx context.Context) ([]string, error) {
	ids, err := c.store.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return ids, nil
}

// Stats returns the live stats of a database.
func (c *Catalog) Stats(ctx context.Context, databaseID string) (Stats, error) {
	md, err := c.Load(ctx, databaseID)
	if err != nil {
		return Stats{}, err
	}
	prefixes, err := c.store.ListPrefixes(ctx, databaseID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalRecords:         md.TotalRecords,
		AdvisoryPartitions:   md.PartitionsCount,
		ActualPartitionCount: len(prefixes),
		Diverged:             md.PartitionsCount != len(prefixes),
		Prefixes:             prefixes,
		CreatedAt:            md.CreatedAt,
	}, nil
}
