package ingest

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is one progress report of an ingestion run. Snapshots are
// pushed at a fixed interval while the run is active, plus a final one
// when it ends.
type Snapshot struct {
	// Percent is bytes processed over total source size, clamped to 100.
	Percent float64
	// LinesPerSec is the throughput over the last reporting interval.
	LinesPerSec float64
	// ETA is the estimated time remaining, from overall byte throughput.
	ETA time.Duration
	// Elapsed is the time since the run started.
	Elapsed time.Duration

	ProcessedLines int64
	ProcessedBytes int64
	IndexedRecords int64
	SkippedLines   int64
	// Prefixes is the count of distinct partition prefixes seen so far.
	Prefixes int
	// Final marks the run-end snapshot.
	Final bool
}

// ProgressFunc receives pushed snapshots. It is called from the run's
// reporting goroutine and must not block for long.
type ProgressFunc func(Snapshot)

// tracker owns the run-scoped counters and the push loop.
type tracker struct {
	totalBytes int64
	startTime  time.Time
	onProgress ProgressFunc

	lines    atomic.Int64
	bytes    atomic.Int64
	indexed  atomic.Int64
	skipped  atomic.Int64
	prefixes atomic.Int64

	// Interval-local state for recent-throughput calculation; touched
	// only by the emit loop and the final emit, after the loop stopped.
	lastEmit  time.Time
	lastLines int64

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newTracker(totalBytes int64, onProgress ProgressFunc) *tracker {
	now := time.Now()
	return &tracker{
		totalBytes: totalBytes,
		startTime:  now,
		onProgress: onProgress,
		lastEmit:   now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// run emits a snapshot every interval until stopped.
func (t *tracker) run(interval time.Duration) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.emit(false)
		case <-t.stop:
			return
		}
	}
}

// finish stops the emit loop and pushes the mandatory final snapshot.
func (t *tracker) finish() {
	t.once.Do(func() {
		close(t.stop)
		<-t.done
		t.emit(true)
	})
}

func (t *tracker) emit(final bool) {
	if t.onProgress == nil {
		return
	}

	now := time.Now()
	lines := t.lines.Load()
	bytes := t.bytes.Load()

	snap := Snapshot{
		Elapsed:        now.Sub(t.startTime),
		ProcessedLines: lines,
		ProcessedBytes: bytes,
		IndexedRecords: t.indexed.Load(),
		SkippedLines:   t.skipped.Load(),
		Prefixes:       int(t.prefixes.Load()),
		Final:          final,
	}

	if t.totalBytes > 0 {
		snap.Percent = float64(bytes) * 100.0 / float64(t.totalBytes)
		if snap.Percent > 100 {
			snap.Percent = 100
		}
	}

	if dt := now.Sub(t.lastEmit).Seconds(); dt > 0 {
		snap.LinesPerSec = float64(lines-t.lastLines) / dt
	}
	t.lastEmit = now
	t.lastLines = lines

	// ETA from overall byte throughput.
	if elapsed := snap.Elapsed.Seconds(); elapsed > 0 && bytes > 0 && !final {
		rate := float64(bytes) / elapsed
		remaining := float64(t.totalBytes - bytes)
		if remaining > 0 {
			snap.ETA = time.Duration(remaining / rate * float64(time.Second))
		}
	}

	t.onProgress(snap)
}
