package ingest

import (
	"errors"
	"testing"
)

func TestSupervisorSingleSlot(t *testing.T) {
	sup := NewSupervisor()

	if err := sup.Acquire("db1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := sup.Acquire("db2"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire error = %v, want ErrBusy", err)
	}

	info, active := sup.Current()
	if !active || info.DatabaseID != "db1" {
		t.Errorf("Current = %+v, %v; want active db1", info, active)
	}

	sup.Release()
	if _, active := sup.Current(); active {
		t.Error("still active after Release")
	}
	if err := sup.Acquire("db2"); err != nil {
		t.Errorf("Acquire after Release: %v", err)
	}
}
