// Command sweep runs every requested strategy and fill combination over one
// input and writes a CSV summary, optionally recording each run in the
// sqlite ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/banshee-data/inverseflow/internal/config"
	"github.com/banshee-data/inverseflow/internal/db"
	"github.com/banshee-data/inverseflow/internal/flow/inverse"
	"github.com/banshee-data/inverseflow/internal/fsutil"
	"github.com/banshee-data/inverseflow/internal/monitoring"
	"github.com/banshee-data/inverseflow/internal/sweep"
	"github.com/banshee-data/inverseflow/internal/version"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, fsutil.OSFileSystem{}); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("sweep: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, fsys fsutil.FileSystem) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	var (
		flowPath    = fs.String("flow", "", "forward flow (.flo), required")
		img1Path    = fs.String("img1", "", "first frame; enables the image strategies")
		img2Path    = fs.String("img2", "", "second frame")
		gray        = fs.Bool("gray", false, "compare images on luma only")
		refPath     = fs.String("ref", "", "reference backward flow (.flo) for endpoint error")
		configPath  = fs.String("config", "", "inversion config JSON for the shared parameters")
		strategies  = fs.String("strategies", "", "comma-separated strategies (default all usable)")
		fills       = fs.String("fills", "", "comma-separated fills (default all)")
		concurrency = fs.Int("concurrency", 2, "combinations run at once")
		workers     = fs.Int("workers", 0, "workers per inversion, 0 = GOMAXPROCS")
		dbPath      = fs.String("db", "", "record every run in this sqlite ledger")
		label       = fs.String("label", "", "label for recorded runs (defaults to sweep-<timestamp>)")
		output      = fs.String("output", "-", "summary CSV path, - for stdout")
		verbose     = fs.Bool("v", false, "log per-combination details")
		showVer     = fs.Bool("version", false, "print version and exit")
	)
	fs.SetOutput(stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVer {
		fmt.Fprintln(stdout, version.String("sweep"))
		return nil
	}
	if *flowPath == "" {
		fs.Usage()
		return fmt.Errorf("%w: -flow is required", errUsage)
	}
	monitoring.SetVerbose(*verbose)

	cfg := config.DefaultInversionConfig()
	if *configPath != "" {
		loaded, err := config.LoadInversionConfig(*configPath)
		if err != nil {
			return err
		}
		cfg.Override(loaded)
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			cfg.SetWorkers(*workers)
		}
	})
	base, err := inverse.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	strats, err := sweep.ParseStrategies(*strategies)
	if err != nil {
		return err
	}
	fillList, err := sweep.ParseFills(*fills)
	if err != nil {
		return err
	}

	in, err := sweep.LoadInput(fsys, sweep.Paths{
		Flow: *flowPath, Img1: *img1Path, Img2: *img2Path, Reference: *refPath, Gray: *gray,
	})
	if err != nil {
		return err
	}
	combos := sweep.Combinations(strats, fillList, in.HaveImages())
	if len(combos) == 0 {
		return fmt.Errorf("%w: no usable combinations (image strategies need -img1 and -img2)", errUsage)
	}
	monitoring.Logf("Sweeping %d combinations over %s (%dx%d)",
		len(combos), in.SourcePath, in.Forward.Width, in.Forward.Height)

	runner := sweep.NewRunner(base)
	runner.Concurrency = *concurrency
	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()
		runner.Store = database.Runs()
		runner.Label = *label
		if runner.Label == "" {
			runner.Label = "sweep-" + time.Now().Format("20060102-150405")
		}
	}

	results, err := runner.Run(ctx, in, combos)
	if err != nil {
		return err
	}

	summary := stdout
	if *output != "-" {
		f, err := fsys.Create(*output)
		if err != nil {
			return fmt.Errorf("could not create output file %s: %w", *output, err)
		}
		defer f.Close()
		summary = f
	}
	if err := sweep.NewCSVWriter(summary).WriteResults(results); err != nil {
		return err
	}

	sweep.LogSummary(results)
	if best := sweep.Best(results); best >= 0 {
		monitoring.Logf("Best: %s", results[best].Combo)
		if id := results[best].RunID; id != "" {
			monitoring.Logf("Best run: %s (label %s)", id, runner.Label)
		}
	} else {
		return errors.New("every combination failed")
	}
	return nil
}
