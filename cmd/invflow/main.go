// Command invflow inverts a forward optical-flow field into a backward field
// and a validity mask.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/inverseflow/internal/config"
	"github.com/banshee-data/inverseflow/internal/db"
	"github.com/banshee-data/inverseflow/internal/evaluate"
	"github.com/banshee-data/inverseflow/internal/floio"
	"github.com/banshee-data/inverseflow/internal/flow/inverse"
	"github.com/banshee-data/inverseflow/internal/fsutil"
	"github.com/banshee-data/inverseflow/internal/imageio"
	"github.com/banshee-data/inverseflow/internal/monitoring"
	"github.com/banshee-data/inverseflow/internal/sweep"
	"github.com/banshee-data/inverseflow/internal/version"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, fsutil.OSFileSystem{}); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("invflow: %v", err)
	}
}

func run(args []string, stdout io.Writer, fsys fsutil.FileSystem) error {
	fs := flag.NewFlagSet("invflow", flag.ContinueOnError)
	var (
		flowPath   = fs.String("flow", "", "forward flow (.flo), required")
		img1Path   = fs.String("img1", "", "first frame, needed by max_image/avg_image")
		img2Path   = fs.String("img2", "", "second frame, needed by max_image/avg_image")
		gray       = fs.Bool("gray", false, "compare images on luma only")
		strategy   = fs.String("strategy", "", "max_flow, avg_flow, max_image or avg_image (overrides config)")
		fillName   = fs.String("fill", "", "min, avg, oriented or none (overrides config)")
		configPath = fs.String("config", "", "inversion config JSON")
		workers    = fs.Int("workers", 0, "parallel workers, 0 = GOMAXPROCS (overrides config)")
		outPath    = fs.String("out", "", "write backward flow (.flo)")
		maskPath   = fs.String("mask", "", "write validity mask (.png)")
		refPath    = fs.String("ref", "", "reference backward flow (.flo) for endpoint error")
		dbPath     = fs.String("db", "", "record the run in this sqlite ledger")
		verbose    = fs.Bool("v", false, "log stage timings")
		showVer    = fs.Bool("version", false, "print version and exit")
	)
	fs.SetOutput(stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVer {
		fmt.Fprintln(stdout, version.String("invflow"))
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
	overrides := config.EmptyInversionConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "strategy":
			overrides.SetStrategy(*strategy)
		case "fill":
			overrides.SetFill(*fillName)
		case "workers":
			overrides.SetWorkers(*workers)
		}
	})
	cfg.Override(overrides)
	opts, err := inverse.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	in, err := sweep.LoadInput(fsys, sweep.Paths{
		Flow: *flowPath, Img1: *img1Path, Img2: *img2Path, Reference: *refPath, Gray: *gray,
	})
	if err != nil {
		return err
	}

	res, err := inverse.Run(in.Forward, in.Img1, in.Img2, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%dx%d %s: candidates=%d valid=%.4f elapsed=%v\n",
		res.Stats.Width, res.Stats.Height, opts, res.Stats.Candidates,
		res.Stats.ValidFraction(), res.Stats.Elapsed())

	rec := &db.Run{
		SourcePath:     in.SourcePath,
		Width:          res.Stats.Width,
		Height:         res.Stats.Height,
		Strategy:       string(opts.Strategy),
		Fill:           string(opts.Fill),
		ValidFraction:  res.Stats.ValidFraction(),
		CandidateTotal: res.Stats.Candidates,
		DurationNs:     res.Stats.Elapsed().Nanoseconds(),
	}

	consistency, err := evaluate.ForwardBackwardConsistency(in.Forward, res.Backward)
	if err != nil {
		return err
	}
	rec.Consistency = &consistency
	fmt.Fprintf(stdout, "consistency=%.6f\n", consistency)

	if in.Reference != nil {
		m, err := evaluate.EndpointError(res.Backward, in.Reference, res.Mask)
		if err != nil {
			return err
		}
		rec.MeanEPE = &m.All.Mean
		fmt.Fprintf(stdout, "epe mean=%.6f median=%.6f p95=%.6f (valid cells: mean=%.6f)\n",
			m.All.Mean, m.All.Median, m.All.P95, m.Valid.Mean)
	}
	if in.HaveImages() {
		p, err := evaluate.PhotometricError(res.Backward, in.Img1, in.Img2)
		if err != nil {
			return err
		}
		rec.PhotometricError = &p
		fmt.Fprintf(stdout, "photometric=%.6f\n", p)
	}

	if *outPath != "" {
		if err := floio.WriteFile(fsys, *outPath, res.Backward); err != nil {
			return err
		}
	}
	if *maskPath != "" {
		if err := imageio.WriteMask(fsys, *maskPath, res.Mask); err != nil {
			return err
		}
	}

	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()

		params, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		rec.ParamsJSON = params
		rec.FlowBlob = db.EncodeField(res.Backward)
		rec.MaskBlob = db.EncodeMask(res.Mask)
		if err := database.Runs().Insert(rec); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "recorded run %s\n", rec.RunID)
	}
	return nil
}
