package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

// conformance runs the adapter contract against any Store implementation.
func conformance(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("missing container", func(t *testing.T) {
		ok, err := s.Exists(ctx, "nope")
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if ok {
			t.Error("Exists(missing) = true")
		}
		if _, err := s.ListPrefixes(ctx, "nope"); !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("ListPrefixes(missing) error = %v, want ErrDatabaseNotFound", err)
		}
	})

	t.Run("create container idempotent", func(t *testing.T) {
		if err := s.CreateContainer(ctx, "db1"); err != nil {
			t.Fatalf("CreateContainer: %v", err)
		}
		if err := s.CreateContainer(ctx, "db1"); err != nil {
			t.Fatalf("CreateContainer again: %v", err)
		}
		ok, err := s.Exists(ctx, "db1")
		if err != nil || !ok {
			t.Fatalf("Exists(db1) = %v, %v; want true", ok, err)
		}
	})

	t.Run("partition roundtrip", func(t *testing.T) {
		part := Partition{
			"79991234567": {
				Phone:          "79991234567",
				FormattedPhone: "+7 (999) 123-45-67",
				Fields:         map[string]string{"last_name": "Иванов"},
			},
			"79991234568": {
				Phone:          "79991234568",
				FormattedPhone: "+7 (999) 123-45-68",
			},
		}
		if err := s.WritePartition(ctx, "db1", "799", part); err != nil {
			t.Fatalf("WritePartition: %v", err)
		}

		ok, err := s.ExistsPrefix(ctx, "db1", "799")
		if err != nil || !ok {
			t.Fatalf("ExistsPrefix = %v, %v; want true", ok, err)
		}

		got, err := s.ReadPartition(ctx, "db1", "799")
		if err != nil {
			t.Fatalf("ReadPartition: %v", err)
		}
		if !reflect.DeepEqual(got, part) {
			t.Errorf("ReadPartition = %+v, want %+v", got, part)
		}
	})

	t.Run("missing prefix", func(t *testing.T) {
		ok, err := s.ExistsPrefix(ctx, "db1", "123")
		if err != nil {
			t.Fatalf("ExistsPrefix: %v", err)
		}
		if ok {
			t.Error("ExistsPrefix(missing) = true")
		}
		if _, err := s.ReadPartition(ctx, "db1", "123"); !errors.Is(err, ErrPrefixNotFound) {
			t.Errorf("ReadPartition(missing) error = %v, want ErrPrefixNotFound", err)
		}
	})

	t.Run("write replaces", func(t *testing.T) {
		small := Partition{"79990000000": {Phone: "79990000000", FormattedPhone: "+7 (999) 000-00-00"}}
		if err := s.WritePartition(ctx, "db1", "799", small); err != nil {
			t.Fatalf("WritePartition: %v", err)
		}
		got, err := s.ReadPartition(ctx, "db1", "799")
		if err != nil {
			t.Fatalf("ReadPartition: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("partition has %d records after replace, want 1", len(got))
		}
	})

	t.Run("named blobs excluded from prefixes", func(t *testing.T) {
		if err := s.WriteBlob(ctx, "db1", "meta", []byte(`{"id":"db1"}`)); err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		seed := Partition{"77001234567": {Phone: "77001234567", FormattedPhone: "+7 (700) 123-45-67"}}
		if err := s.WritePartition(ctx, "db1", "700", seed); err != nil {
			t.Fatalf("WritePartition: %v", err)
		}
		prefixes, err := s.ListPrefixes(ctx, "db1")
		if err != nil {
			t.Fatalf("ListPrefixes: %v", err)
		}
		want := []string{"700", "799"}
		if !reflect.DeepEqual(prefixes, want) {
			t.Errorf("ListPrefixes = %v, want %v", prefixes, want)
		}

		data, err := s.ReadBlob(ctx, "db1", "meta")
		if err != nil {
			t.Fatalf("ReadBlob: %v", err)
		}
		if string(data) != `{"id":"db1"}` {
			t.Errorf("ReadBlob = %q", data)
		}
	})

	t.Run("blob not found", func(t *testing.T) {
		if _, err := s.ReadBlob(ctx, "db1", "nothing"); !errors.Is(err, ErrBlobNotFound) {
			t.Errorf("ReadBlob(missing) error = %v, want ErrBlobNotFound", err)
		}
	})

	t.Run("list containers", func(t *testing.T) {
		if err := s.CreateContainer(ctx, "db2"); err != nil {
			t.Fatalf("CreateContainer: %v", err)
		}
		ids, err := s.ListContainers(ctx)
		if err != nil {
			t.Fatalf("ListContainers: %v", err)
		}
		if !reflect.DeepEqual(ids, []string{"db1", "db2"}) {
			t.Errorf("ListContainers = %v, want [db1 db2]", ids)
		}
	})
}

func TestFSConformance(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	conformance(t, s)
}

func TestBoltConformance(t *testing.T) {
	s, err := NewBolt(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewBolt: %v", err)
	}
	defer s.Close()
	conformance(t, s)
}

func TestS3Conformance(t *testing.T) {
	conformance(t, NewS3(newFakeS3(), "test-bucket"))
}
