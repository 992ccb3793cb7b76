package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS is the filesystem adapter: one directory per database under a root,
// one JSON file per partition. Writes go through a temp file and rename
// so a crashed write never leaves a truncated blob behind.
type FS struct {
	root string
}

// NewFS creates a filesystem store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FS{root: dir}, nil
}

func (s *FS) containerDir(databaseID string) string {
	return filepath.Join(s.root, databaseID)
}

func (s *FS) blobPath(databaseID, name string) string {
	return filepath.Join(s.containerDir(databaseID), name+".json")
}

// CreateContainer implements Store.
func (s *FS) CreateContainer(_ context.Context, databaseID string) error {
	if err := os.MkdirAll(s.containerDir(databaseID), 0o755); err != nil {
		return fmt.Errorf("create container %s: %w", databaseID, err)
	}
	return nil
}

// Exists implements Store.
func (s *FS) Exists(_ context.Context, databaseID string) (bool, error) {
	info, err := os.Stat(s.containerDir(databaseID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat container %s: %w", databaseID, err)
	}
	return info.IsDir(), nil
}

// ExistsPrefix implements Store.
func (s *FS) ExistsPrefix(_ context.Context, databaseID, prefix string) (bool, error) {
	_, err := os.Stat(s.blobPath(databaseID, prefix))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat partition %s/%s: %w", databaseID, prefix, err)
	}
	return true, nil
}

// ReadPartition implements Store.
func (s *FS) ReadPartition(ctx context.Context, databaseID, prefix string) (Partition, error) {
	data, err := s.readBlob(databaseID, prefix)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("partition %s/%s: %w", databaseID, prefix, ErrPrefixNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodePartition(data)
}

// WritePartition implements Store.
func (s *FS) WritePartition(ctx context.Context, databaseID, prefix string, p Partition) error {
	data, err := encodePartition(p)
	if err != nil {
		return err
	}
	return s.writeBlob(databaseID, prefix, data)
}

// ListPrefixes implements Store.
func (s *FS) ListPrefixes(_ context.Context, databaseID string) ([]string, error) {
	entries, err := os.ReadDir(s.containerDir(databaseID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("container %s: %w", databaseID, ErrDatabaseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("list container %s: %w", databaseID, err)
	}

	var prefixes []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if e.IsDir() || name == e.Name() || !isPrefixName(name) {
			continue
		}
		prefixes = append(prefixes, name)
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// ListContainers implements Store.
func (s *FS) ListContainers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list store root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadBlob implements Store.
func (s *FS) ReadBlob(_ context.Context, databaseID, name string) ([]byte, error) {
	data, err := s.readBlob(databaseID, name)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %s/%s: %w", databaseID, name, ErrBlobNotFound)
	}
	return data, err
}

// WriteBlob implements Store.
func (s *FS) WriteBlob(_ context.Context, databaseID, name string, data []byte) error {
	return s.writeBlob(databaseID, name, data)
}

func (s *FS) readBlob(databaseID, name string) ([]byte, error) {
	data, err := os.ReadFile(s.blobPath(databaseID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("read blob %s/%s: %w", databaseID, name, err)
	}
	return data, nil
}

// writeBlob writes atomically: temp file in the container dir, then rename.
func (s *FS) writeBlob(databaseID, name string, data []byte) error {
	dir := s.containerDir(databaseID)
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob %s/%s: %w", databaseID, name, err)
	}
	tmpPath := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpPath)
		if werr != nil {
			return fmt.Errorf("write blob %s/%s: %w", databaseID, name, werr)
		}
		return fmt.Errorf("close blob %s/%s: %w", databaseID, name, cerr)
	}

	if err := os.Rename(tmpPath, s.blobPath(databaseID, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename blob %s/%s: %w", databaseID, name, err)
	}
	return nil
}
