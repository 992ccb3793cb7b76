// Package search answers phone lookups against the partition store:
// point lookups in one database, batched-concurrent federated lookups
// across all of them, and sequential progressive lookups that push
// per-database progress events.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/phonedb/internal/logctx"
	"github.com/eunmann/phonedb/pkg/catalog"
	"github.com/eunmann/phonedb/pkg/phone"
	"github.com/eunmann/phonedb/pkg/store"
)

// ErrRecordNotFound indicates no record matches the phone, either in one
// database (point lookup) or in any of them (federated).
var ErrRecordNotFound = errors.New("record not found")

// DefaultBatchWidth is the federated-search concurrency bound.
const DefaultBatchWidth = 3

// Engine performs lookups over a store and catalog. Read-only; safe for
// concurrent use.
type Engine struct {
	store      store.Store
	catalog    *catalog.Catalog
	batchWidth int
}

// New creates an Engine. batchWidth <= 0 selects DefaultBatchWidth.
func New(s store.Store, c *catalog.Catalog, batchWidth int) *Engine {
	if batchWidth <= 0 {
		batchWidth = DefaultBatchWidth
	}
	return &Engine{store: s, catalog: c, batchWidth: batchWidth}
}

// Lookup finds rawPhone in one database. Failures are distinguishable:
// phone.ErrInvalidPhone, store.ErrDatabaseNotFound, store.ErrPrefixNotFound,
// ErrRecordNotFound.
func (e *Engine) Lookup(ctx context.Context, databaseID, rawPhone string) (store.Record, error) {
	canonical, err := phone.Normalize(rawPhone)
	if err != nil {
		return store.Record{}, err
	}
	return e.lookupCanonical(ctx, databaseID, canonical)
}

func (e *Engine) lookupCanonical(ctx context.Context, databaseID, canonical string) (store.Record, error) {
	exists, err := e.store.Exists(ctx, databaseID)
	if err != nil {
		return store.Record{}, fmt.Errorf("check database %s: %w", databaseID, err)
	}
	if !exists {
		return store.Record{}, fmt.Errorf("database %s: %w", databaseID, store.ErrDatabaseNotFound)
	}

	part, err := e.store.ReadPartition(ctx, databaseID, phone.Prefix(canonical))
	if err != nil {
		return store.Record{}, err
	}
	rec, ok := part[canonical]
	if !ok {
		return store.Record{}, fmt.Errorf("%s in %s: %w", canonical, databaseID, ErrRecordNotFound)
	}
	return rec, nil
}

// Federated finds rawPhone across every database. Databases are probed
// in listing order, batchWidth at a time; within a batch lookups run
// concurrently and the first match in batch order wins. Batches after
// the matching one are never probed. Returns the record and the id of
// the database that held it.
func (e *Engine) Federated(ctx context.Context, rawPhone string) (store.Record, string, error) {
	canonical, err := phone.Normalize(rawPhone)
	if err != nil {
		return store.Record{}, "", err
	}
	log := logctx.FromContext(ctx)

	dbs, err := e.catalog.ListDatabases(ctx)
	if err != nil {
		return store.Record{}, "", err
	}

	for start := 0; start < len(dbs); start += e.batchWidth {
		end := start + e.batchWidth
		if end > len(dbs) {
			end = len(dbs)
		}
		batch := dbs[start:end]

		results := make([]*store.Record, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, databaseID := range batch {
			g.Go(func() error {
				rec, err := e.lookupCanonical(gctx, databaseID, canonical)
				switch {
				case err == nil:
					results[i] = &rec
				case errors.Is(err, store.ErrPrefixNotFound), errors.Is(err, ErrRecordNotFound):
					// A clean miss, not an anomaly.
				default:
					// Absent containers and storage failures are logged but
					// never abort the batch.
					log.Warn().Err(err).Str("database_id", databaseID).Msg("federated lookup error")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return store.Record{}, "", err
		}

		// Batch order is the tie-break when several databases match.
		for i, rec := range results {
			if rec != nil {
				return *rec, batch[i], nil
			}
		}
	}

	return store.Record{}, "", fmt.Errorf("%s: %w", canonical, ErrRecordNotFound)
}

// Event is one progressive-search progress report.
type Event struct {
	CurrentDatabase      string        `json:"currentDatabase,omitempty"`
	Progress             int           `json:"progress"`
	Searching            bool          `json:"searching"`
	Found                bool          `json:"found"`
	Result               *store.Record `json:"result,omitempty"`
	IsComplete           bool          `json:"isComplete"`
	TotalDatabases       int           `json:"totalDatabases"`
	CurrentDatabaseIndex int           `json:"currentDatabaseIndex"`
	Error                string        `json:"error,omitempty"`
}

// EventSink consumes progressive-search events in order.
type EventSink func(Event)

// Progressive performs the federated search one database at a time,
// pushing an event before and after each probe. Exactly one event
// carries IsComplete=true and it is always the last: a match, an
// exhausted scan, or a cancellation observed between databases.
func (e *Engine) Progressive(ctx context.Context, rawPhone string, sink EventSink) error {
	canonical, err := phone.Normalize(rawPhone)
	if err != nil {
		return err
	}
	log := logctx.FromContext(ctx)

	dbs, err := e.catalog.ListDatabases(ctx)
	if err != nil {
		return err
	}
	total := len(dbs)

	if total == 0 {
		sink(Event{Progress: 100, IsComplete: true})
		return fmt.Errorf("%s: %w", canonical, ErrRecordNotFound)
	}

	for i, databaseID := range dbs {
		if err := ctx.Err(); err != nil {
			sink(Event{
				Progress:             pct(i, total),
				IsComplete:           true,
				TotalDatabases:       total,
				CurrentDatabaseIndex: i,
				Error:                err.Error(),
			})
			return err
		}

		sink(Event{
			CurrentDatabase:      databaseID,
			Progress:             pct(i, total),
			Searching:            true,
			TotalDatabases:       total,
			CurrentDatabaseIndex: i,
		})

		rec, err := e.lookupCanonical(ctx, databaseID, canonical)
		if err == nil {
			sink(Event{
				CurrentDatabase:      databaseID,
				Progress:             100,
				Found:                true,
				Result:               &rec,
				IsComplete:           true,
				TotalDatabases:       total,
				CurrentDatabaseIndex: i,
			})
			return nil
		}

		after := Event{
			CurrentDatabase:      databaseID,
			Progress:             pct(i+1, total),
			TotalDatabases:       total,
			CurrentDatabaseIndex: i,
		}
		if !errors.Is(err, store.ErrPrefixNotFound) && !errors.Is(err, ErrRecordNotFound) {
			log.Warn().Err(err).Str("database_id", databaseID).Msg("progressive lookup error")
			after.Error = err.Error()
		}
		sink(after)
	}

	sink(Event{Progress: 100, IsComplete: true, TotalDatabases: total, CurrentDatabaseIndex: total - 1})
	return fmt.Errorf("%s: %w", canonical, ErrRecordNotFound)
}

func pct(index, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(index) / float64(total) * 100))
}
