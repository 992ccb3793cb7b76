// Package config loads the phonedb configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names a partition-store adapter.
type Backend string

const (
	// BackendFS stores partitions as a directory tree.
	BackendFS Backend = "fs"
	// BackendS3 stores partitions in a flat-namespace S3 bucket.
	BackendS3 Backend = "s3"
	// BackendBolt stores partitions in a single embedded bbolt file.
	BackendBolt Backend = "bolt"
)

// Config is the complete phonedb configuration.
type Config struct {
	// Store selects and configures the partition store backend.
	Store StoreConfig `yaml:"store"`

	// Ingest configures the ingestion pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Search configures the search engine.
	Search SearchConfig `yaml:"search"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	// Backend is one of fs, s3, bolt.
	Backend Backend `yaml:"backend"`

	// DataDir is the root directory for the fs backend.
	DataDir string `yaml:"data_dir"`

	// Bucket is the bucket name for the s3 backend.
	Bucket string `yaml:"bucket"`

	// Path is the database file for the bolt backend.
	Path string `yaml:"path"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// ChunkSize is the buffered-record count that triggers a flush.
	ChunkSize int `yaml:"chunk_size"`

	// PartitionSize is the advisory partition-size hint recorded in
	// metadata.
	PartitionSize int64 `yaml:"partition_size"`

	// ProgressInterval is the period between progress snapshots.
	// Format: "5s", "1m".
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// SearchConfig configures the search engine.
type SearchConfig struct {
	// BatchWidth bounds federated-search concurrency.
	BatchWidth int `yaml:"batch_width"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: BackendFS,
			DataDir: "data",
		},
		Ingest: IngestConfig{
			ChunkSize:        50000,
			PartitionSize:    50000,
			ProgressInterval: 5 * time.Second,
		},
		Search: SearchConfig{
			BatchWidth: 3,
		},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendFS:
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir required for fs backend")
		}
	case BackendS3:
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket required for s3 backend")
		}
	case BackendBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for bolt backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if c.Ingest.PartitionSize <= 0 {
		return fmt.Errorf("ingest.partition_size must be positive")
	}
	if c.Search.BatchWidth <= 0 {
		return fmt.Errorf("search.batch_width must be positive")
	}
	return nil
}
