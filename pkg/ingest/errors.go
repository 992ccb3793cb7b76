package ingest

import "errors"

var (
	// ErrBusy indicates another ingestion run is active in this process.
	ErrBusy = errors.New("ingestion already running")
	// ErrSourceUnreadable indicates the source is missing or its size
	// cannot be determined.
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrStoreWriteFailure indicates a partition flush failed; the run is
	// aborted and no metadata is written.
	ErrStoreWriteFailure = errors.New("partition write failed")
)
