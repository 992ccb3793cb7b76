// Package cli implements the command-line interface for phonedb.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/eunmann/phonedb/internal/config"
	"github.com/eunmann/phonedb/pkg/catalog"
	"github.com/eunmann/phonedb/pkg/ingest"
	"github.com/eunmann/phonedb/pkg/logging"
	"github.com/eunmann/phonedb/pkg/search"
	"github.com/eunmann/phonedb/pkg/store"
	"github.com/eunmann/phonedb/pkg/textenc"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: phonedb <command> [options]\ncommands: ingest, lookup, search, scan, stats, list")
	}

	switch args[0] {
	case "ingest":
		return runIngest(args[1:])
	case "lookup":
		return runLookup(args[1:])
	case "search":
		return runSearch(args[1:])
	case "scan":
		return runScan(args[1:])
	case "stats":
		return runStats(args[1:])
	case "list":
		return runList(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath *string
	debug      *bool
	human      *bool
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "path to YAML config file"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
		human:      fs.Bool("human", false, "human-friendly log output"),
	}
}

// setup loads the config, initializes logging, and opens the store.
// The returned closer releases backend resources.
func (cf commonFlags) setup(ctx context.Context) (config.Config, store.Store, func() error, error) {
	logging.Init(*cf.debug, *cf.human)

	cfg := config.Default()
	if *cf.configPath != "" {
		var err error
		cfg, err = config.Load(*cf.configPath)
		if err != nil {
			return config.Config{}, nil, nil, err
		}
	}

	s, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, s, closer, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendFS:
		s, err := store.NewFS(cfg.DataDir)
		return s, noop, err
	case config.BackendS3:
		s, err := store.NewS3FromConfig(ctx, cfg.Bucket)
		return s, noop, err
	case config.BackendBolt:
		s, err := store.NewBolt(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// signalContext cancels on SIGINT/SIGTERM so long scans stop cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	cf := registerCommon(fs)
	db := fs.String("db", "", "database id (generated when empty)")
	phoneColumn := fs.String("phone-column", "", "phone field locator: column name or index")
	partitionSize := fs.Int64("partition-size", 0, "advisory partition size hint")
	chunkSize := fs.Int("chunk-size", 0, "records buffered before a flush")
	encodingName := fs.String("encoding", "auto", "source encoding: auto|utf8|windows1251|koi8r|iso88595")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phoneColumn == "" {
		return errors.New("--phone-column is required")
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one source file is required")
	}
	sourcePath := fs.Arg(0)

	enc, err := textenc.Parse(*encodingName)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	cfg, s, closer, err := cf.setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	src, size, err := ingest.OpenFile(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	if *chunkSize == 0 {
		*chunkSize = cfg.Ingest.ChunkSize
	}
	if *partitionSize == 0 {
		*partitionSize = cfg.Ingest.PartitionSize
	}

	log := logging.WithPhase("ingest")
	ing := ingest.New(s, catalog.New(s), ingest.NewSupervisor())
	res, err := ing.Run(ctx, src, size, ingest.Options{
		DatabaseID:       *db,
		OriginalFileName: filepath.Base(sourcePath),
		PhoneColumn:      *phoneColumn,
		PartitionSize:    *partitionSize,
		ChunkSize:        *chunkSize,
		Encoding:         enc,
		ProgressInterval: cfg.Ingest.ProgressInterval,
		OnProgress: func(snap ingest.Snapshot) {
			log.Info().
				Float64("percent", snap.Percent).
				Float64("lines_per_sec", snap.LinesPerSec).
				Dur("eta", snap.ETA).
				Dur("elapsed", snap.Elapsed).
				Int64("indexed", snap.IndexedRecords).
				Int64("skipped", snap.SkippedLines).
				Int("prefixes", snap.Prefixes).
				Msg("ingest progress")
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("database %s: %s records indexed, %s lines processed, %d partitions\n",
		res.Metadata.ID,
		humanize.Comma(res.IndexedRecords),
		humanize.Comma(res.ProcessedLines),
		res.Partitions)
	return nil
}

func runLookup(args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	cf := registerCommon(fs)
	db := fs.String("db", "", "database id")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return errors.New("--db is required")
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one phone number is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	cfg, s, closer, err := cf.setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	eng := search.New(s, catalog.New(s), cfg.Search.BatchWidth)
	rec, err := eng.Lookup(ctx, *db, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	cf := registerCommon(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one phone number is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	cfg, s, closer, err := cf.setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	eng := search.New(s, catalog.New(s), cfg.Search.BatchWidth)
	rec, dbID, err := eng.Federated(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("found in database %s\n", dbID)
	return printJSON(rec)
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	cf := registerCommon(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one phone number is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	cfg, s, closer, err := cf.setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	eng := search.New(s, catalog.New(s), cfg.Search.BatchWidth)
	err = eng.Progressive(ctx, fs.Arg(0), func(ev search.Event) {
		switch {
		case ev.IsComplete && ev.Found:
			fmt.Printf("[100%%] found in %s\n", ev.CurrentDatabase)
			printJSON(*ev.Result)
		case ev.IsComplete:
			fmt.Printf("[100%%] scan complete, no match\n")
		case ev.Searching:
			fmt.Printf("[%3d%%] searching %s (%d/%d)\n",
				ev.Progress, ev.CurrentDatabase, ev.CurrentDatabaseIndex+1, ev.TotalDatabases)
		case ev.Error != "":
			fmt.Printf("[%3d%%] %s: %s\n", ev.Progress, ev.CurrentDatabase, ev.Error)
		}
	})
	if errors.Is(err, search.ErrRecordNotFound) {
		return nil
	}
	return err
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	cf := registerCommon(fs)
	db := fs.String("db", "", "database id")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return errors.New("--db is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, s, closer, err := cf.setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	stats, err := catalog.New(s).Stats(ctx, *db)
	if err != nil {
		return err
	}

	fmt.Printf("records:    %s\n", humanize.Comma(stats.TotalRecords))
	fmt.Printf("partitions: %d (advisory %d)\n", stats.ActualPartitionCount, stats.AdvisoryPartitions)
	if stats.Diverged {
		fmt.Printf("            advisory count diverges; the store is ground truth\n")
	}
	fmt.Printf("created:    %s\n", stats.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	cf := registerCommon(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, s, closer, err := cf.setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	c := catalog.New(s)
	ids, err := c.ListDatabases(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		md, err := c.Load(ctx, id)
		if err != nil {
			fmt.Printf("%s\t(no metadata)\n", id)
			continue
		}
		fmt.Printf("%s\t%s records\t%s\n", id, humanize.Comma(md.TotalRecords), md.OriginalFileName)
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("format output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
