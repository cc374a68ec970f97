// Package regrid resamples the channel axis of streamed observation buffers.
//
// A Pipeline wraps any Source and is itself a Source. Positioning is
// delegated upstream; on every positioned buffer the pipeline resolves the
// partition's TransformState (solved once per partition) and the row's
// frame-adjusted grid before handing out a view whose cubes are regridded
// on first access.
package regrid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/kernel"
)

// minRadialVelocity is the magnitude (m/s) at or below which a source
// radial velocity is ignored.
const minRadialVelocity = 1e-3

type position int

const (
	uninitialized position = iota
	chunkPositioned
	subchunkPositioned
)

// Pipeline regrids every buffer pulled from an upstream Source.
type Pipeline struct {
	id  string
	up  Source
	set settings

	kern   kernel.Kernel
	solver Solver
	conv   FrameConverter
	eph    Ephemeris
	fields FieldTable
	pos    frames.Position
	engine *Engine
	log    zerolog.Logger

	grids *memo[int, TransformState]
	rows  slot[RowKey, RowContext]

	at  position
	cur *view
	err error
}

// New validates cfg and wraps up. Every configuration problem is reported
// here, before any buffer is pulled.
func New(up Source, cfg Config, opts ...Option) (*Pipeline, error) {
	if up == nil {
		return nil, errors.New("regrid: nil upstream source")
	}
	set, err := cfg.settings()
	if err != nil {
		return nil, err
	}
	k, err := kernel.New(set.selection)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		id:     uuid.NewString(),
		up:     up,
		set:    set,
		kern:   k,
		engine: NewEngine(1),
		log:    zerolog.Nop(),
		grids:  newMemo[int, TransformState](),
	}
	for _, opt := range opts {
		opt(p)
	}
	if set.field >= 0 && p.fields == nil {
		return nil, errs.Configuration("phaseCenter", strconv.Itoa(set.field), "a field id needs a field table")
	}
	if set.outFrame != frames.Native && p.conv == nil {
		return nil, errs.Configuration("outframe", string(set.outFrame), "an output frame needs a frame converter")
	}
	if p.solver == nil {
		p.solver = frames.NewGridSolver(p.conv)
	}
	p.log = p.log.With().Str("pipeline", p.id).Str("kernel", k.Name()).Logger()
	p.log.Debug().
		Str("mode", string(set.spec.Mode)).
		Str("outframe", set.outFrame.String()).
		Msg("pipeline configured")
	return p, nil
}

// ID identifies the pipeline in logs.
func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) OriginChunk() error {
	if err := p.up.OriginChunk(); err != nil {
		return err
	}
	p.at, p.cur, p.err = chunkPositioned, nil, nil
	return nil
}

func (p *Pipeline) MoreChunks() bool { return p.up.MoreChunks() }

func (p *Pipeline) NextChunk() error {
	if p.at == uninitialized {
		return errs.ErrNotPositioned
	}
	if err := p.up.NextChunk(); err != nil {
		return err
	}
	p.at, p.cur, p.err = chunkPositioned, nil, nil
	return nil
}

// Origin positions on the first buffer of the chunk and resolves its
// partition state and row context.
func (p *Pipeline) Origin() error {
	if p.at == uninitialized {
		return errs.ErrNotPositioned
	}
	if err := p.up.Origin(); err != nil {
		return err
	}
	p.at = subchunkPositioned
	return p.position()
}

func (p *Pipeline) More() bool { return p.at == subchunkPositioned && p.up.More() }

// Next advances to the next buffer. Buffers of a partition that already
// failed are skipped.
func (p *Pipeline) Next() error {
	if p.at != subchunkPositioned {
		return errs.ErrNotPositioned
	}
	if err := p.up.Next(); err != nil {
		return err
	}
	return p.position()
}

// CurrentBuffer returns the regridded view of the current buffer, or the
// error that positioning on it produced.
func (p *Pipeline) CurrentBuffer() (Buffer, error) {
	if p.at != subchunkPositioned {
		return nil, errs.ErrNotPositioned
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.cur == nil {
		return nil, errs.ErrNotPositioned
	}
	return p.cur, nil
}

// NativeFrame is the configured output frame, or upstream's when none is
// configured.
func (p *Pipeline) NativeFrame() frames.Frame {
	if p.set.outFrame != frames.Native {
		return p.set.outFrame
	}
	return p.up.NativeFrame()
}

// FrequenciesFor returns the output grid of a partition, converted to f
// when f is not the pipeline's frame. The partition must already have been
// resolved by positioning on one of its buffers; otherwise the error wraps
// errs.ErrNotPositioned. A partition that failed returns its error.
func (p *Pipeline) FrequenciesFor(t time.Time, f frames.Frame, partition int) (frames.Grid, error) {
	e, ok := p.grids.lookup(partition)
	if !ok {
		return frames.Grid{}, fmt.Errorf("partition %d has no output grid yet: %w", partition, errs.ErrNotPositioned)
	}
	if e.err != nil {
		return frames.Grid{}, e.err
	}
	st := e.val
	native := p.NativeFrame()
	if f == frames.Native || f == native {
		return st.Output.Clone(), nil
	}
	if p.conv == nil {
		return frames.Grid{}, errs.FrameConversion(string(f), "no frame converter configured").At(partition, errs.NoPartition)
	}
	var meta Meta
	if p.cur != nil && p.cur.meta.Partition == partition {
		meta = p.cur.meta
	}
	dir, err := p.direction(meta)
	if err != nil {
		return frames.Grid{}, err
	}
	from := native.Geometric()
	if from == frames.Native {
		from = frames.TOPO
	}
	g, err := p.conv.ConvertFrame(st.Output, from, f, t, dir, p.pos)
	if err != nil {
		return frames.Grid{}, errs.InPartition(err, partition)
	}
	return g, nil
}

// State returns the resolved state of a partition.
func (p *Pipeline) State(partition int) (TransformState, bool) {
	e, ok := p.grids.lookup(partition)
	if !ok || e.err != nil {
		return TransformState{}, false
	}
	return e.val, true
}

// States returns every successfully resolved partition state.
func (p *Pipeline) States() map[int]TransformState {
	out := map[int]TransformState{}
	p.grids.each(func(k int, st TransformState) { out[k] = st })
	return out
}

func (p *Pipeline) position() error {
	p.cur, p.err = nil, nil
	for p.up.More() {
		buf, err := p.up.CurrentBuffer()
		if err != nil {
			p.err = err
			return err
		}
		meta := buf.Meta()
		if e, ok := p.grids.lookup(meta.Partition); ok && e.err != nil {
			p.log.Debug().Int("partition", meta.Partition).Msg("skipping buffer of failed partition")
			if err := p.up.Next(); err != nil {
				p.err = err
				return err
			}
			continue
		}
		v, err := p.prepare(buf, meta)
		if err != nil {
			p.err = err
			return err
		}
		p.cur = v
		return nil
	}
	return nil
}

func (p *Pipeline) prepare(buf Buffer, meta Meta) (*view, error) {
	dir, err := p.direction(meta)
	if err != nil {
		return nil, err
	}
	st, err := p.resolveState(meta.Partition, meta.Time, dir)
	if err != nil {
		return nil, err
	}
	if meta.NChan != st.Input.Len() {
		return nil, errs.Computation(meta.Partition,
			fmt.Sprintf("buffer has %d channels but the partition grid has %d", meta.NChan, st.Input.Len()), nil)
	}
	row, err := p.rowContext(meta, st, dir)
	if err != nil {
		return nil, err
	}
	return newView(p, buf, meta, st, row), nil
}

func (p *Pipeline) inFrame() frames.Frame {
	if f := p.up.NativeFrame(); f != frames.Native {
		return f
	}
	return frames.TOPO
}

// direction is the configured phase center, or the buffer's field
// direction when none is configured.
func (p *Pipeline) direction(meta Meta) (frames.Direction, error) {
	switch {
	case p.set.hasDirection:
		return p.set.direction, nil
	case p.set.field >= 0:
		d, err := p.fields.Direction(p.set.field)
		if err != nil {
			return frames.Direction{}, errs.Configuration("phaseCenter", strconv.Itoa(p.set.field), "unknown field").WithCause(err)
		}
		return d, nil
	}
	return meta.PhaseCenter, nil
}

func (p *Pipeline) resolveState(partition int, t time.Time, dir frames.Direction) (TransformState, error) {
	st, fresh, err := p.grids.resolve(partition, func() (TransformState, error) {
		return p.solve(partition, t, dir)
	})
	if err != nil && fresh {
		p.log.Error().Err(err).Int("partition", partition).Msg("partition failed")
	}
	return st, err
}

func (p *Pipeline) solve(partition int, t time.Time, dir frames.Direction) (TransformState, error) {
	in, err := p.up.FrequenciesFor(t, frames.Native, partition)
	if err != nil {
		return TransformState{}, fmt.Errorf("partition %d: input grid: %w", partition, err)
	}
	spec := p.set.spec
	spec.InFrame = p.inFrame()
	out, wf, err := p.solver.SolveGrid(spec, in, dir, t, p.pos)
	if err != nil {
		return TransformState{}, errs.InPartition(err, partition)
	}
	if err := out.Validate(); err != nil {
		return TransformState{}, errs.Computation(partition, "output grid is invalid", err)
	}
	if !(wf > 0) || math.IsInf(wf, 0) {
		return TransformState{}, errs.Computation(partition, fmt.Sprintf("weight scale %g is not a positive number", wf), nil)
	}
	n, err := p.kern.Channels(in.Freq, out.Freq)
	if err != nil {
		return TransformState{}, errs.InPartition(err, partition)
	}
	st := TransformState{
		Input:          in,
		Output:         out,
		WeightFactor:   wf,
		SigmaFactor:    sigmaFactor(wf),
		OutputChannels: n,
	}
	p.log.Debug().
		Int("partition", partition).
		Int("in_channels", in.Len()).
		Int("out_channels", n).
		Float64("weight_factor", wf).
		Msg("partition grid solved")
	return st, nil
}

func (p *Pipeline) rowContext(meta Meta, st TransformState, dir frames.Direction) (RowContext, error) {
	key := NewRowKey(meta.Partition, meta.Field, meta.Time)
	return p.rows.resolve(key, func() (RowContext, error) {
		adj, err := p.adjust(meta, st.Input, dir)
		if err != nil {
			return RowContext{}, err
		}
		return RowContext{Key: key, Adjusted: adj, Shift: fftShift(adj, st.Output)}, nil
	})
}

// adjust expresses the input grid in the output frame for one row.
func (p *Pipeline) adjust(meta Meta, in frames.Grid, dir frames.Direction) (frames.Grid, error) {
	out := p.set.outFrame
	if out == frames.Native {
		return in, nil
	}
	g, err := p.conv.ConvertFrame(in, p.inFrame(), out.Geometric(), meta.Time, dir, p.pos)
	if err != nil {
		return frames.Grid{}, frameError(err, meta)
	}
	if out != frames.SOURCE {
		return g, nil
	}
	if p.eph == nil {
		return frames.Grid{}, errs.FrameConversion(string(frames.SOURCE), "no ephemeris for the radial-velocity correction").At(meta.Partition, meta.Field)
	}
	rv, ok, err := p.eph.RadialVelocity(meta.Field, meta.Time)
	if err != nil {
		return frames.Grid{}, errs.FrameConversion(string(frames.SOURCE), "ephemeris lookup failed").WithCause(err).At(meta.Partition, meta.Field)
	}
	if !ok {
		return frames.Grid{}, errs.FrameConversion(string(frames.SOURCE), "field has no radial-velocity measure").At(meta.Partition, meta.Field)
	}
	if math.Abs(rv.Value) <= minRadialVelocity {
		return g, nil
	}
	if g, err = p.conv.ApplyRadialVelocity(g, rv); err != nil {
		return frames.Grid{}, frameError(err, meta)
	}
	return g, nil
}

func frameError(err error, meta Meta) error {
	return errs.InField(err, meta.Partition, meta.Field)
}
