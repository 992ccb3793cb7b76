// Package ingest implements the streaming ingestion pipeline: decode,
// split, parse, normalize, bucket by phone prefix, and flush to the
// partition store in bounded-memory chunks. One run is active per
// process at a time; per-line problems are counted and skipped, stream
// and store failures abort the run.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eunmann/phonedb/internal/logctx"
	"github.com/eunmann/phonedb/pkg/catalog"
	"github.com/eunmann/phonedb/pkg/phone"
	"github.com/eunmann/phonedb/pkg/store"
	"github.com/eunmann/phonedb/pkg/textenc"
)

// Defaults for optional ingestion settings.
const (
	DefaultChunkSize        = 50000
	DefaultPartitionSize    = 50000
	DefaultProgressInterval = 5 * time.Second
	defaultFlushConcurrency = 4
)

// Options configures one ingestion run.
type Options struct {
	// DatabaseID identifies the database to create. Generated when empty.
	DatabaseID string
	// OriginalFileName is recorded in metadata for provenance.
	OriginalFileName string
	// PhoneColumn locates the phone field: a column name (the source then
	// has a header row) or a decimal index (fixed layout).
	PhoneColumn string
	// PartitionSize is the advisory chunk-size hint stored in metadata.
	PartitionSize int64
	// Encoding selects the source decoding; Auto sniffs from the stream.
	Encoding textenc.Encoding
	// Delimiter overrides field-delimiter detection when non-zero.
	Delimiter rune
	// ChunkSize is the buffered-record count that triggers a flush.
	ChunkSize int
	// ProgressInterval is the wall-clock period between snapshots.
	ProgressInterval time.Duration
	// OnProgress receives pushed snapshots; nil disables reporting.
	OnProgress ProgressFunc
}

func (o *Options) applyDefaults() {
	if o.DatabaseID == "" {
		o.DatabaseID = uuid.NewString()
	}
	if o.PartitionSize <= 0 {
		o.PartitionSize = DefaultPartitionSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.Encoding == "" {
		o.Encoding = textenc.Auto
	}
}

// Result is what a completed run reports back.
type Result struct {
	Metadata catalog.Metadata
	// ProcessedLines counts every source line, indexed or skipped.
	ProcessedLines int64
	// IndexedRecords counts lines that produced a stored record.
	IndexedRecords int64
	// Skipped breaks down skipped lines by reason.
	Skipped map[SkipReason]int64
	// Partitions is the count of distinct prefixes written.
	Partitions int
	// Flushes is the number of chunk flushes performed.
	Flushes int
}

// Ingestor runs ingestion against a store and catalog.
type Ingestor struct {
	store   store.Store
	catalog *catalog.Catalog
	sup     *Supervisor
}

// New creates an Ingestor. The supervisor may be shared with other
// Ingestors to keep the one-run-per-process guarantee.
func New(s store.Store, c *catalog.Catalog, sup *Supervisor) *Ingestor {
	if sup == nil {
		sup = NewSupervisor()
	}
	return &Ingestor{store: s, catalog: c, sup: sup}
}

// OpenFile opens a source file for ingestion, returning the stream and
// its size. Missing files and files whose size cannot be determined fail
// with ErrSourceUnreadable before any side effect.
func OpenFile(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open %s: %v", ErrSourceUnreadable, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: stat %s: %v", ErrSourceUnreadable, path, err)
	}
	return f, info.Size(), nil
}

// Run ingests one source stream into a new database. totalSize is the
// source size in bytes (for progress percent and ETA); it must be known.
// On success the written metadata is returned inside the Result. On
// abort no metadata is written, though partitions flushed before the
// failure remain in the store.
func (ing *Ingestor) Run(ctx context.Context, src io.Reader, totalSize int64, opts Options) (*Result, error) {
	opts.applyDefaults()

	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: source size unknown", ErrSourceUnreadable)
	}
	if err := ing.sup.Acquire(opts.DatabaseID); err != nil {
		return nil, err
	}
	defer ing.sup.Release()

	log := logctx.FromContext(ctx).With().
		Str("phase", "ingest").
		Str("database_id", opts.DatabaseID).
		Logger()
	ctx = logctx.WithLogger(ctx, log)

	counted := &countingReader{r: src}
	decoded, enc, err := textenc.NewReader(counted, opts.Encoding)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("encoding", string(enc)).
		Str("phone_column", opts.PhoneColumn).
		Int64("source_bytes", totalSize).
		Msg("ingestion started")

	if err := ing.store.CreateContainer(ctx, opts.DatabaseID); err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	run := &runState{
		ing:     ing,
		opts:    opts,
		tracker: newTracker(totalSize, opts.OnProgress),
		counted: counted,
		buffers: make(map[string]store.Partition),
		seen:    make(map[string]struct{}),
		skipped: make(map[SkipReason]int64),
		parser:  newLineParser(opts.PhoneColumn, opts.Delimiter),
	}
	if run.flushLatency, err = ddsketch.NewDefaultDDSketch(0.01); err != nil {
		return nil, fmt.Errorf("create latency sketch: %w", err)
	}

	go run.tracker.run(opts.ProgressInterval)
	defer run.tracker.finish()

	if err := run.consume(ctx, decoded); err != nil {
		log.Error().Err(err).
			Int64("lines", run.tracker.lines.Load()).
			Msg("ingestion aborted")
		return nil, err
	}

	md, err := run.finalize(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ingestion aborted at finalize")
		return nil, err
	}

	res := &Result{
		Metadata:       md,
		ProcessedLines: run.tracker.lines.Load(),
		IndexedRecords: run.tracker.indexed.Load(),
		Skipped:        run.skipped,
		Partitions:     len(run.seen),
		Flushes:        run.flushes,
	}
	run.tracker.bytes.Store(counted.n.Load())
	run.tracker.finish()
	run.logSummary(log, res)
	return res, nil
}

// runState carries the mutable state of one ingestion run.
type runState struct {
	ing  *Ingestor
	opts Options

	tracker *tracker
	counted *countingReader

	buffers  map[string]store.Partition
	buffered int
	seen     map[string]struct{}
	skipped  map[SkipReason]int64
	parser   *lineParser

	flushes      int
	flushLatency *ddsketch.DDSketch
}

// consume reads the decoded stream line by line, buffering records and
// flushing full chunks. Mid-stream read errors abort the run.
func (r *runState) consume(ctx context.Context, decoded io.Reader) error {
	br := bufio.NewReaderSize(decoded, 256*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, rerr := br.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return fmt.Errorf("read source: %w", rerr)
		}
		if line != "" {
			r.tracker.lines.Add(1)
			r.tracker.bytes.Store(r.counted.n.Load())
			if err := r.processLine(ctx, line); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
	}
	return r.flush(ctx)
}

func (r *runState) processLine(ctx context.Context, line string) error {
	rec, reason, header, err := r.parser.Parse(line)
	if err != nil {
		return fmt.Errorf("parse source: %w", err)
	}
	if header {
		return nil
	}
	if reason != skipNone {
		r.skipped[reason]++
		r.tracker.skipped.Add(1)
		log := logctx.FromContext(ctx)
		log.Debug().
			Str("reason", reason.String()).
			Int64("line", r.tracker.lines.Load()).
			Msg("line skipped")
		return nil
	}

	prefix := phone.Prefix(rec.Phone)
	part, ok := r.buffers[prefix]
	if !ok {
		part = store.Partition{}
		r.buffers[prefix] = part
	}
	if _, ok := r.seen[prefix]; !ok {
		r.seen[prefix] = struct{}{}
		r.tracker.prefixes.Add(1)
	}
	part[rec.Phone] = rec
	r.buffered++
	r.tracker.indexed.Add(1)

	if r.buffered >= r.opts.ChunkSize {
		return r.flush(ctx)
	}
	return nil
}

// flush writes every buffered prefix and clears the buffers. Each prefix
// is merged into any blob written by an earlier flush of this run, so a
// prefix spanning chunks accumulates instead of being overwritten.
func (r *runState) flush(ctx context.Context) error {
	if r.buffered == 0 {
		return nil
	}
	start := time.Now()
	log := logctx.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultFlushConcurrency)
	for prefix, part := range r.buffers {
		g.Go(func() error {
			existing, err := r.ing.store.ReadPartition(gctx, r.opts.DatabaseID, prefix)
			if err != nil && !errors.Is(err, store.ErrPrefixNotFound) {
				return fmt.Errorf("%w: read back prefix %s: %v", ErrStoreWriteFailure, prefix, err)
			}
			if existing != nil {
				existing.Merge(part)
				part = existing
			}
			if err := r.ing.store.WritePartition(gctx, r.opts.DatabaseID, prefix, part); err != nil {
				return fmt.Errorf("%w: prefix %s: %v", ErrStoreWriteFailure, prefix, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	_ = r.flushLatency.Add(elapsed.Seconds())
	r.flushes++
	log.Debug().
		Int("records", r.buffered).
		Int("prefixes", len(r.buffers)).
		Dur("duration", elapsed).
		Msg("chunk flushed")

	r.buffers = make(map[string]store.Partition)
	r.buffered = 0
	return nil
}

// finalize writes the metadata record. Reached only after a complete
// pass over the source.
func (r *runState) finalize(ctx context.Context) (catalog.Metadata, error) {
	total := r.tracker.indexed.Load()
	md := catalog.Metadata{
		ID:               r.opts.DatabaseID,
		OriginalFileName: r.opts.OriginalFileName,
		TotalRecords:     total,
		PartitionsCount:  int(math.Ceil(float64(total) / float64(r.opts.PartitionSize))),
		PartitionSize:    r.opts.PartitionSize,
		CreatedAt:        time.Now().UTC(),
		PhoneColumn:      r.opts.PhoneColumn,
	}
	if err := r.ing.catalog.Save(ctx, md); err != nil {
		return catalog.Metadata{}, fmt.Errorf("save metadata: %w", err)
	}
	return md, nil
}

func (r *runState) logSummary(log zerolog.Logger, res *Result) {
	elapsed := time.Since(r.tracker.startTime)
	ev := log.Info().
		Int64("total_records", res.IndexedRecords).
		Int64("processed_lines", res.ProcessedLines).
		Int("partitions", len(r.seen)).
		Int("flushes", res.Flushes).
		Dur("elapsed", elapsed)
	for reason, n := range res.Skipped {
		ev = ev.Int64("skipped_"+reason.String(), n)
	}
	if res.Flushes > 0 {
		if qs, err := r.flushLatency.GetValuesAtQuantiles([]float64{0.5, 0.95, 0.99}); err == nil {
			ev = ev.
				Float64("flush_p50_s", qs[0]).
				Float64("flush_p95_s", qs[1]).
				Float64("flush_p99_s", qs[2])
		}
	}
	if sec := elapsed.Seconds(); sec > 0 {
		ev = ev.Float64("records_per_sec", float64(res.IndexedRecords)/sec)
	}
	ev.Msg("ingestion completed")
}

// countingReader counts raw source bytes as they are consumed, before
// any decoding. Progress percent is measured against the raw size.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
