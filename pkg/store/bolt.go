package store

import (
	"context"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// Bolt is the embedded single-file adapter: one bbolt bucket per
// database, one key per partition blob. Useful when the index and its
// consumer ship as a single process with no external storage.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the bbolt file at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying file.
func (s *Bolt) Close() error {
	return s.db.Close()
}

// CreateContainer implements Store.
func (s *Bolt) CreateContainer(_ context.Context, databaseID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(databaseID))
		return err
	})
	if err != nil {
		return fmt.Errorf("create container %s: %w", databaseID, err)
	}
	return nil
}

// Exists implements Store.
func (s *Bolt) Exists(_ context.Context, databaseID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(databaseID)) != nil
		return nil
	})
	return found, err
}

// ExistsPrefix implements Store.
func (s *Bolt) ExistsPrefix(_ context.Context, databaseID, prefix string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(databaseID))
		if b == nil {
			return nil
		}
		found = b.Get([]byte(prefix)) != nil
		return nil
	})
	return found, err
}

// ReadPartition implements Store.
func (s *Bolt) ReadPartition(ctx context.Context, databaseID, prefix string) (Partition, error) {
	data, err := s.get(databaseID, prefix)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("partition %s/%s: %w", databaseID, prefix, ErrPrefixNotFound)
	}
	return decodePartition(data)
}

// WritePartition implements Store.
func (s *Bolt) WritePartition(ctx context.Context, databaseID, prefix string, p Partition) error {
	data, err := encodePartition(p)
	if err != nil {
		return err
	}
	return s.put(databaseID, prefix, data)
}

// ListPrefixes implements Store.
func (s *Bolt) ListPrefixes(_ context.Context, databaseID string) ([]string, error) {
	var prefixes []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(databaseID))
		if b == nil {
			return fmt.Errorf("container %s: %w", databaseID, ErrDatabaseNotFound)
		}
		return b.ForEach(func(k, _ []byte) error {
			if isPrefixName(string(k)) {
				prefixes = append(prefixes, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// ListContainers implements Store.
func (s *Bolt) ListContainers(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			ids = append(ids, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadBlob implements Store.
func (s *Bolt) ReadBlob(_ context.Context, databaseID, name string) ([]byte, error) {
	data, err := s.get(databaseID, name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("blob %s/%s: %w", databaseID, name, ErrBlobNotFound)
	}
	return data, nil
}

// WriteBlob implements Store.
func (s *Bolt) WriteBlob(_ context.Context, databaseID, name string, data []byte) error {
	return s.put(databaseID, name, data)
}

func (s *Bolt) get(databaseID, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(databaseID))
		if b == nil {
			return fmt.Errorf("container %s: %w", databaseID, ErrDatabaseNotFound)
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...) // valid only inside the tx
		}
		return nil
	})
	return out, err
}

func (s *Bolt) put(databaseID, key string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(databaseID))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", databaseID, key, err)
	}
	return nil
}
