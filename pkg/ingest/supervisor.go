package ingest

import (
	"sync"
	"time"
)

// RunInfo describes the currently active ingestion run.
type RunInfo struct {
	DatabaseID string
	StartedAt  time.Time
}

// Supervisor owns the single ingestion job slot of a process. Ingestion
// is globally exclusive: a second acquire while a run is active fails
// with ErrBusy. Searches never touch the supervisor.
type Supervisor struct {
	mu      sync.Mutex
	active  bool
	current RunInfo
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Acquire claims the job slot for a run, or fails with ErrBusy.
func (s *Supervisor) Acquire(databaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ErrBusy
	}
	s.active = true
	s.current = RunInfo{DatabaseID: databaseID, StartedAt: time.Now()}
	return nil
}

// Release frees the job slot. Safe to call on an idle supervisor.
func (s *Supervisor) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.current = RunInfo{}
}

// Current returns the active run, if any.
func (s *Supervisor) Current() (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.active
}
