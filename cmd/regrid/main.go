package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/io/csvio"
	"github.com/wdm0006/regrid/pkg/io/jsonlio"
	"github.com/wdm0006/regrid/pkg/io/parquetio"
	"github.com/wdm0006/regrid/pkg/profile"
	"github.com/wdm0006/regrid/pkg/regrid"
)

var (
	version = "0.1.0-dev"
)

type flags struct {
	config, input, output, grids string
	logLevel, profile            string
	workers                      int
	skipFailed                   bool
}

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	var f flags
	flag.StringVar(&f.config, "config", "", "Path to regrid config (.json, .toml, .yaml)")
	flag.StringVar(&f.input, "input", "-", "Input observation (.jsonl[.gz] or .parquet; - for stdin)")
	flag.StringVar(&f.output, "output", "-", "Output observation (.jsonl[.gz] or .parquet; - for stdout)")
	flag.StringVar(&f.grids, "grids", "", "Write the output channel grids to this CSV file")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.profile, "profile", "", "Print a profile of the output: text or json")
	flag.IntVar(&f.workers, "workers", 1, "Goroutines per regridded cube")
	flag.BoolVar(&f.skipFailed, "skip-failed", false, "Keep going past partitions whose grid cannot be solved (by default the first such failure aborts the run)")
	flag.Parse()

	if *showVersion {
		fmt.Println("regrid", version)
		return
	}
	if f.config == "" {
		fmt.Fprintln(os.Stderr, "no config provided; nothing to do. try --config <file> or --version")
		os.Exit(2)
	}
	logger, err := newLogger(os.Stderr, f.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, f, logger); err != nil {
		logger.Error().Err(err).Msg("regrid failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, logger zerolog.Logger) error {
	if f.profile != "" && f.profile != "text" && f.profile != "json" {
		return fmt.Errorf("unknown profile format %q", f.profile)
	}
	rc, err := loadRunConfig(f.config)
	if err != nil {
		return err
	}
	opts, err := rc.options()
	if err != nil {
		return err
	}
	opts = append(opts, regrid.WithLogger(logger), regrid.WithWorkers(f.workers))

	src, err := openInput(f.input)
	if err != nil {
		return fmt.Errorf("input %s: %w", f.input, err)
	}
	p, err := regrid.New(src, rc.Config, opts...)
	if err != nil {
		return err
	}
	sink, err := createOutput(f.output, p)
	if err != nil {
		return fmt.Errorf("output %s: %w", f.output, err)
	}
	var collector *profile.Collector
	if f.profile != "" {
		collector = profile.NewCollector(sink)
		sink = collector
	}

	logger.Info().Str("input", f.input).Str("output", f.output).Str("pipeline", p.ID()).Msg("regridding")
	var drainOpts []regrid.DrainOption
	if f.skipFailed {
		drainOpts = append(drainOpts, regrid.SkipFailedPartitions())
	}
	skipped := regrid.Drain(ctx, p, sink, drainOpts...)
	if skipped != nil && !f.skipFailed {
		return skipped
	}
	var merr *multierror.Error
	if skipped != nil && !errors.As(skipped, &merr) {
		return skipped
	}
	if merr != nil {
		for _, err := range merr.Errors {
			logger.Warn().Err(err).Int("partition", errs.Partition(err)).Msg("partition skipped")
		}
	}
	states := p.States()
	logger.Info().Int("partitions", len(states)).Msg("done")

	if f.grids != "" {
		if err := csvio.WriteGrids(f.grids, states, csvio.WriterOptions{}); err != nil {
			return fmt.Errorf("grids %s: %w", f.grids, err)
		}
	}
	if collector != nil {
		if err := report(collector, f.profile); err != nil {
			return err
		}
	}
	return skipped
}

func isParquet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".parquet")
}

func openInput(path string) (regrid.Source, error) {
	if isParquet(path) {
		return parquetio.Open(path)
	}
	return jsonlio.Open(path)
}

func createOutput(path string, p *regrid.Pipeline) (regrid.Sink, error) {
	if isParquet(path) {
		return parquetio.Create(path, p)
	}
	return jsonlio.Create(path, p)
}

func report(c *profile.Collector, format string) error {
	switch format {
	case "json":
		b, err := json.MarshalIndent(c.ReportJSON(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, string(b))
	default:
		fmt.Fprint(os.Stderr, c.ReportText())
	}
	return nil
}
