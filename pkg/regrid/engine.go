package regrid

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wdm0006/regrid/pkg/kernel"
)

// Lines is a data cube with its optional flag cube. Either may be nil, but
// not both; a nil flag cube reads as all false and a nil data cube as all
// zero.
type Lines struct {
	Data  *Cube[complex128]
	Flags *Cube[bool]
}

func (l Lines) shape() (nPol, nChan, nRow int, err error) {
	switch {
	case l.Data != nil:
		nPol, nChan, nRow = l.Data.NPol, l.Data.NChan, l.Data.NRow
	case l.Flags != nil:
		nPol, nChan, nRow = l.Flags.NPol, l.Flags.NChan, l.Flags.NRow
	default:
		return 0, 0, 0, fmt.Errorf("engine: no input cube")
	}
	if l.Data != nil && l.Flags != nil && (l.Flags.NPol != nPol || l.Flags.NChan != nChan || l.Flags.NRow != nRow) {
		return 0, 0, 0, fmt.Errorf("engine: flag cube %dx%dx%d does not match data %dx%dx%d",
			l.Flags.NPol, l.Flags.NChan, l.Flags.NRow, nPol, nChan, nRow)
	}
	return nPol, nChan, nRow, nil
}

// Engine applies a kernel to every (pol, row) line of a cube.
type Engine struct {
	workers int
}

// NewEngine returns an engine spreading lines over workers goroutines.
// workers <= 1 processes lines on the calling goroutine.
func NewEngine(workers int) *Engine {
	return &Engine{workers: workers}
}

// Apply resamples every line of in onto outChannels channels. Output cubes
// are allocated before any line is processed and in is never written. An
// output data cube is produced only when in has one.
func (e *Engine) Apply(ctx context.Context, k kernel.Kernel, ax kernel.Axis, in Lines, outChannels int) (Lines, error) {
	nPol, nChan, nRow, err := in.shape()
	if err != nil {
		return Lines{}, err
	}
	if nChan != len(ax.In) {
		return Lines{}, fmt.Errorf("engine: cube has %d channels, input grid has %d", nChan, len(ax.In))
	}
	out := Lines{Flags: NewCube[bool](nPol, outChannels, nRow)}
	if in.Data != nil {
		out.Data = NewCube[complex128](nPol, outChannels, nRow)
	}
	nLines := nPol * nRow
	if nLines == 0 {
		return out, nil
	}

	run := func(ctx context.Context, from, to int) error {
		src := make([]complex128, nChan)
		srcFlags := make([]bool, nChan)
		dst := make([]complex128, outChannels)
		dstFlags := make([]bool, outChannels)
		for l := from; l < to; l++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, r := l%nPol, l/nPol
			if in.Data != nil {
				src = in.Data.Line(p, r, src)
			}
			if in.Flags != nil {
				srcFlags = in.Flags.Line(p, r, srcFlags)
			}
			if err := k.Transform(ax, src, srcFlags, dst, dstFlags); err != nil {
				return fmt.Errorf("engine: pol %d row %d: %w", p, r, err)
			}
			if out.Data != nil {
				out.Data.SetLine(p, r, dst)
			}
			out.Flags.SetLine(p, r, dstFlags)
		}
		return nil
	}

	workers := e.workers
	if workers > nLines {
		workers = nLines
	}
	if workers <= 1 {
		if err := run(ctx, 0, nLines); err != nil {
			return Lines{}, err
		}
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	per := (nLines + workers - 1) / workers
	for from := 0; from < nLines; from += per {
		from, to := from, min(from+per, nLines)
		g.Go(func() error { return run(gctx, from, to) })
	}
	if err := g.Wait(); err != nil {
		return Lines{}, err
	}
	return out, nil
}

// ApplyFloat is Apply for a real-valued cube.
func (e *Engine) ApplyFloat(ctx context.Context, k kernel.Kernel, ax kernel.Axis, data *Cube[float64], flags *Cube[bool], outChannels int) (*Cube[float64], *Cube[bool], error) {
	out, err := e.Apply(ctx, k, ax, Lines{Data: lift(data), Flags: flags}, outChannels)
	if err != nil {
		return nil, nil, err
	}
	return lower(out.Data), out.Flags, nil
}

func lift(c *Cube[float64]) *Cube[complex128] {
	out := NewCube[complex128](c.NPol, c.NChan, c.NRow)
	for i, v := range c.Data {
		out.Data[i] = complex(v, 0)
	}
	return out
}

func lower(c *Cube[complex128]) *Cube[float64] {
	out := NewCube[float64](c.NPol, c.NChan, c.NRow)
	for i, v := range c.Data {
		out.Data[i] = real(v)
	}
	return out
}
