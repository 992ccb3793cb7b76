package catalog

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/eunmann/phonedb/pkg/store"
)

func newTestCatalog(t *testing.T) (*Catalog, store.Store) {
	t.Helper()
	s, err := store.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return New(s), s
}

func TestSaveLoad(t *testing.T) {
	c, s := newTestCatalog(t)
	ctx := context.Background()

	if err := s.CreateContainer(ctx, "db1"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	md := Metadata{
		ID:               "db1",
		OriginalFileName: "extract_2024.csv",
		TotalRecords:     3,
		PartitionsCount:  1,
		PartitionSize:    50000,
		CreatedAt:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		PhoneColumn:      "phone",
	}
	if err := c.Save(ctx, md); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := c.Load(ctx, "db1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, md) {
		t.Errorf("Load = %+v, want %+v", got, md)
	}
}

func TestLoadMissing(t *testing.T) {
	c, s := newTestCatalog(t)
	ctx := context.Background()

	// Absent container.
	if _, err := c.Load(ctx, "ghost"); !errors.Is(err, store.ErrDatabaseNotFound) {
		t.Errorf("Load(missing container) error = %v, want ErrDatabaseNotFound", err)
	}

	// Container present, metadata blob absent (aborted ingestion).
	if err := s.CreateContainer(ctx, "halfway"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if _, err := c.Load(ctx, "halfway"); !errors.Is(err, store.ErrDatabaseNotFound) {
		t.Errorf("Load(no metadata) error = %v, want ErrDatabaseNotFound", err)
	}
}

func TestListDatabases(t *testing.T) {
	c, s := newTestCatalog(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		if err := s.CreateContainer(ctx, id); err != nil {
			t.Fatalf("CreateContainer: %v", err)
		}
	}
	ids, err := c.ListDatabases(ctx)
	if err != nil {
		t.Fatalf("ListDatabases: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Errorf("ListDatabases = %v, want [a b]", ids)
	}
}

func TestStatsDivergence(t *testing.T) {
	c, s := newTestCatalog(t)
	ctx := context.Background()

	if err := s.CreateContainer(ctx, "db1"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	// Advisory count says 5 partitions; the store actually holds 2.
	md := Metadata{ID: "db1", TotalRecords: 4, PartitionsCount: 5, PartitionSize: 1}
	if err := c.Save(ctx, md); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, prefix := range []string{"799", "712"} {
		part := store.Partition{"7" + prefix[1:] + "00000000": {Phone: "79900000000"}}
		if err := s.WritePartition(ctx, "db1", prefix, part); err != nil {
			t.Fatalf("WritePartition: %v", err)
		}
	}

	stats, err := c.Stats(ctx, "db1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ActualPartitionCount != 2 {
		t.Errorf("ActualPartitionCount = %d, want 2", stats.ActualPartitionCount)
	}
	if stats.AdvisoryPartitions != 5 {
		t.Errorf("AdvisoryPartitions = %d, want 5", stats.AdvisoryPartitions)
	}
	if !stats.Diverged {
		t.Error("Diverged = false, want true")
	}
	if !reflect.DeepEqual(stats.Prefixes, []string{"712", "799"}) {
		t.Errorf("Prefixes = %v, want [712 799]", stats.Prefixes)
	}
}
