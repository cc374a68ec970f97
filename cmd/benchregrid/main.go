package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/wdm0006/regrid/dataio"
	"github.com/wdm0006/regrid/pkg/kernel"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// blackholeSink touches every regridded quantity and discards it.
type blackholeSink struct{ rows int }

func (b *blackholeSink) Write(buf regrid.Buffer) error {
	if _, err := buf.Visibilities(regrid.Observed); err != nil {
		return err
	}
	if _, err := buf.Flags(); err != nil {
		return err
	}
	if _, err := buf.WeightSpectrum(); err != nil {
		return err
	}
	if _, err := buf.SigmaSpectrum(); err != nil {
		return err
	}
	b.rows += buf.Meta().NRow
	return nil
}

func (b *blackholeSink) Close() error { return nil }

func main() {
	var (
		partitions = flag.Int("spw", 4, "spectral windows")
		channels   = flag.Int("channels", 1024, "channels per spectral window")
		pols       = flag.Int("pols", 4, "polarizations")
		rows       = flag.Int("rows", 500, "rows per buffer")
		buffers    = flag.Int("buffers", 20, "buffers per chunk")
		chunks     = flag.Int("chunks", 5, "chunks")
		kernelName = flag.String("interpolation", "linear", "nearest, linear, cubic, spline or fftshift")
		nchan      = flag.Int("nchan", 0, "output channels (0 = all)")
		workers    = flag.Int("workers", runtime.GOMAXPROCS(0), "goroutines per cube")
		flagp      = flag.Float64("flagged", 0.01, "probability a sample is flagged")
		jsonOut    = flag.Bool("json", false, "emit JSON summary")
		seed       = flag.Int64("seed", 42, "random seed")
	)
	flag.Parse()

	opts := dataio.DefaultSyntheticOptions()
	opts.Partitions, opts.Channels, opts.Pols = *partitions, *channels, *pols
	opts.Rows, opts.Buffers, opts.Chunks = *rows, *buffers, *chunks
	opts.FlagProb, opts.Seed = *flagp, *seed
	src := dataio.NewSynthetic(opts)

	cfg := regrid.Config{Mode: "channel", NChan: regrid.ChannelCount(*nchan), Start: "1", Interpolation: *kernelName}
	if sel, err := kernel.Parse(*kernelName); err == nil && sel == kernel.FFTShift {
		// fftshift keeps the channel count
		cfg.NChan, cfg.Start = regrid.AllChannels, ""
	}
	p, err := regrid.New(src, cfg, regrid.WithWorkers(*workers))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sink := &blackholeSink{}

	// Warm up
	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	var msBefore, msAfter runtime.MemStats
	runtime.ReadMemStats(&msBefore)
	start := time.Now()
	if err := regrid.Drain(context.Background(), p, sink); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	elapsed := time.Since(start)
	runtime.ReadMemStats(&msAfter)

	samples := int64(sink.rows) * int64(*pols) * int64(*channels)
	samplesPerSec := float64(samples) / elapsed.Seconds()
	summary := map[string]any{
		"rows":                  sink.rows,
		"samples":               samples,
		"elapsed_ms":            elapsed.Milliseconds(),
		"samples_per_sec":       samplesPerSec,
		"mem_alloc_bytes":       msAfter.Alloc,
		"mem_total_alloc_bytes": msAfter.TotalAlloc - msBefore.TotalAlloc,
		"gc_num":                msAfter.NumGC - msBefore.NumGC,
		"interpolation":         *kernelName,
		"workers":               *workers,
	}

	if *jsonOut {
		b, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("Rows: %d\n", sink.rows)
	fmt.Printf("Elapsed: %s\n", elapsed)
	fmt.Printf("Throughput: %.0f samples/s\n", samplesPerSec)
	fmt.Printf("Current Alloc: %d MB\n", msAfter.Alloc/1024/1024)
	fmt.Printf("Total Alloc (delta): %d MB\n", (msAfter.TotalAlloc-msBefore.TotalAlloc)/1024/1024)
	fmt.Printf("GC cycles (delta): %d\n", msAfter.NumGC-msBefore.NumGC)
}
