package regrid_test

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

const ghz = 1e9

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func grid4(start float64) frames.Grid {
	return frames.Grid{
		Freq:  []float64{start, start + ghz, start + 2*ghz, start + 3*ghz},
		Width: []float64{ghz, ghz, ghz, ghz},
	}
}

// lineScale makes every (pol, row) line distinct.
func lineScale(p, r int) float64 { return float64(1 + p + 2*r) }

func buffer(partition, field int, t time.Time) *regrid.MemoryBuffer {
	const nPol, nChan, nRow = 2, 4, 3
	b := &regrid.MemoryBuffer{
		Info:      regrid.Meta{Partition: partition, Field: field, Time: t, Rows: []int{0, 1, 2}, NPol: nPol, NChan: nChan, NRow: nRow},
		FlagCube:  regrid.NewCube[bool](nPol, nChan, nRow),
		RowFlags:  []bool{false, true, false},
		Observed:  regrid.NewCube[complex128](nPol, nChan, nRow),
		WeightSpc: regrid.NewCube[float64](nPol, nChan, nRow),
		SigmaSpc:  regrid.NewCube[float64](nPol, nChan, nRow),
		Weights:   regrid.NewMatrix(nPol, nRow),
		Sigmas:    regrid.NewMatrix(nPol, nRow),
	}
	for r := 0; r < nRow; r++ {
		for p := 0; p < nPol; p++ {
			s := lineScale(p, r)
			for c := 0; c < nChan; c++ {
				b.Observed.Set(p, c, r, complex(10*float64(c+1)*s, -s))
				b.WeightSpc.Set(p, c, r, 1)
				b.SigmaSpc.Set(p, c, r, 1)
			}
			b.Weights.Data[p+nPol*r] = 4
			b.Sigmas.Data[p+nPol*r] = 0.5
		}
	}
	return b
}

// countingSolver counts SolveGrid calls per input grid and fails for the
// grids listed in fail.
type countingSolver struct {
	inner regrid.Solver
	fail  map[float64]bool
	mu    sync.Mutex
	calls map[float64]int
	dirs  map[float64]frames.Direction
}

func newCountingSolver(fail ...float64) *countingSolver {
	s := &countingSolver{inner: frames.NewGridSolver(nil), fail: map[float64]bool{}, calls: map[float64]int{}, dirs: map[float64]frames.Direction{}}
	for _, f := range fail {
		s.fail[f] = true
	}
	return s
}

func (s *countingSolver) SolveGrid(spec frames.GridSpec, in frames.Grid, dir frames.Direction, t time.Time, pos frames.Position) (frames.Grid, float64, error) {
	s.mu.Lock()
	s.calls[in.Freq[0]]++
	s.dirs[in.Freq[0]] = dir
	s.mu.Unlock()
	if s.fail[in.Freq[0]] {
		return frames.Grid{}, 0, errs.Computation(errs.NoPartition, "solver produced an empty grid", nil)
	}
	return s.inner.SolveGrid(spec, in, dir, t, pos)
}

func (s *countingSolver) count(start float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[start]
}

func scenarioA() regrid.Config {
	return regrid.Config{Mode: "channel", NChan: 2, Start: "0", Width: "2", Interpolation: "linear"}
}

func TestScenarioAChannelAveraging(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 0, t0)})
	solver := newCountingSolver()
	p, err := regrid.New(src, scenarioA(), regrid.WithSolver(solver))
	require.NoError(t, err)

	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	require.True(t, p.More())

	st, ok := p.State(0)
	require.True(t, ok)
	assert.Equal(t, []float64{1.5 * ghz, 3.5 * ghz}, st.Output.Freq)
	assert.InDelta(t, 2.0, st.WeightFactor, 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, st.SigmaFactor, 1e-12)
	assert.Equal(t, 2, st.OutputChannels)

	buf, err := p.CurrentBuffer()
	require.NoError(t, err)
	meta := buf.Meta()
	assert.Equal(t, 2, meta.NPol)
	assert.Equal(t, 3, meta.NRow)
	assert.Equal(t, 2, meta.NChan)

	data, err := buf.Visibilities(regrid.Observed)
	require.NoError(t, err)
	require.Equal(t, 2, data.NChan)
	for r := 0; r < 3; r++ {
		for pol := 0; pol < 2; pol++ {
			s := lineScale(pol, r)
			assert.InDelta(t, 15*s, real(data.At(pol, 0, r)), 1e-9)
			assert.InDelta(t, 35*s, real(data.At(pol, 1, r)), 1e-9)
			assert.InDelta(t, -s, imag(data.At(pol, 1, r)), 1e-9)
		}
	}

	flags, err := buf.Flags()
	require.NoError(t, err)
	assert.Equal(t, make([]bool, 2*2*3), flags.Data)

	ws, err := buf.WeightSpectrum()
	require.NoError(t, err)
	for _, w := range ws.Data {
		assert.InDelta(t, 2.0, w, 1e-12)
	}
	ss, err := buf.SigmaSpectrum()
	require.NoError(t, err)
	for _, s := range ss.Data {
		assert.InDelta(t, 1/math.Sqrt2, s, 1e-12)
	}
	w, err := buf.Weight()
	require.NoError(t, err)
	for _, v := range w.Data {
		assert.InDelta(t, 8.0, v, 1e-12)
	}
	sg, err := buf.Sigma()
	require.NoError(t, err)
	for _, v := range sg.Data {
		assert.InDelta(t, 0.5/math.Sqrt2, v, 1e-12)
	}

	rows, err := buf.FlagRow()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, rows)

	_, err = buf.FloatData()
	assert.ErrorIs(t, err, errs.ErrQuantityMissing)
	_, err = buf.Visibilities(regrid.Model)
	assert.ErrorIs(t, err, errs.ErrQuantityMissing)
	assert.Equal(t, 1, solver.count(ghz))
}

func TestScenarioBUnknownInterpolation(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 0, t0)})
	cfg := scenarioA()
	cfg.Interpolation = "bogus"
	p, err := regrid.New(src, cfg)
	require.Nil(t, p)
	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce), err)
	assert.Equal(t, "interpolation", ce.Parameter)
	assert.Equal(t, "bogus", ce.Value)
	assert.False(t, src.MoreChunks(), "source must not be touched")
}

func TestScenarioCSolverRunsOncePerPartition(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO,
		map[int]frames.Grid{0: grid4(ghz), 1: grid4(10 * ghz)},
		[]regrid.Buffer{buffer(0, 0, t0), buffer(0, 0, t0.Add(time.Second))},
		[]regrid.Buffer{buffer(1, 0, t0), buffer(0, 1, t0)},
	)
	solver := newCountingSolver()
	p, err := regrid.New(src, scenarioA(), regrid.WithSolver(solver))
	require.NoError(t, err)

	n := 0
	require.NoError(t, p.OriginChunk())
	for p.MoreChunks() {
		require.NoError(t, p.Origin())
		for p.More() {
			buf, err := p.CurrentBuffer()
			require.NoError(t, err)
			_, err = buf.Visibilities(regrid.Observed)
			require.NoError(t, err)
			n++
			require.NoError(t, p.Next())
		}
		require.NoError(t, p.NextChunk())
	}
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, solver.count(ghz))
	assert.Equal(t, 1, solver.count(10*ghz))
	assert.Len(t, p.States(), 2)

	// asking for the grid again does not solve again
	g, err := p.FrequenciesFor(t0, frames.Native, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10.5 * ghz, 12.5 * ghz}, g.Freq)
	assert.Equal(t, 1, solver.count(10*ghz))
}

func TestScenarioDSourceFrameWithoutRadialVelocity(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 7, t0)})
	cfg := regrid.Config{Mode: "channel", Interpolation: "linear", OutFrame: "SOURCE"}
	p, err := regrid.New(src, cfg,
		regrid.WithFrameConverter(frames.NewConverter(frames.VelocityTable{frames.GEO: 0})),
		regrid.WithEphemeris(frames.EphemerisTable{3: {Ref: frames.GEO, Samples: []frames.VelocitySample{{Time: t0, Value: 1e4}}}}),
	)
	require.NoError(t, err)
	require.NoError(t, p.OriginChunk())
	err = p.Origin()
	var fe *errs.FrameConversionError
	require.True(t, errors.As(err, &fe), err)
	assert.Equal(t, "SOURCE", fe.Frame)
	assert.Equal(t, 0, fe.Partition)
	assert.Equal(t, 7, fe.Field)

	_, err = p.CurrentBuffer()
	assert.True(t, errors.As(err, &fe))
}

func TestSourceFrameAppliesRadialVelocity(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 3, t0)})
	cfg := regrid.Config{Mode: "channel", Interpolation: "linear", OutFrame: "source"}
	p, err := regrid.New(src, cfg,
		regrid.WithFrameConverter(frames.NewConverter(frames.VelocityTable{frames.GEO: 0})),
		regrid.WithEphemeris(frames.EphemerisTable{3: {Ref: frames.GEO, Samples: []frames.VelocitySample{{Time: t0, Value: 3e4}}}}),
	)
	require.NoError(t, err)
	assert.Equal(t, frames.SOURCE, p.NativeFrame())
	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	buf, err := p.CurrentBuffer()
	require.NoError(t, err)

	flags, err := buf.Flags()
	require.NoError(t, err)
	// the adjusted grid moved up, so the first output channel left the hull
	for pol := 0; pol < 2; pol++ {
		assert.True(t, flags.At(pol, 0, 0))
		assert.False(t, flags.At(pol, 1, 0))
		assert.False(t, flags.At(pol, 3, 0))
	}
	data, err := buf.Visibilities(regrid.Observed)
	require.NoError(t, err)
	assert.Less(t, real(data.At(0, 1, 0)), 20.0)
}

func TestFailedPartitionIsReportedOnceAndSkipped(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO,
		map[int]frames.Grid{0: grid4(ghz), 1: grid4(10 * ghz)},
		[]regrid.Buffer{buffer(0, 0, t0), buffer(1, 0, t0), buffer(1, 0, t0.Add(time.Second)), buffer(0, 0, t0.Add(time.Second))},
	)
	solver := newCountingSolver(10 * ghz)
	p, err := regrid.New(src, scenarioA(), regrid.WithSolver(solver))
	require.NoError(t, err)

	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	first, err := p.CurrentBuffer()
	require.NoError(t, err)
	assert.Equal(t, 0, first.Meta().Partition)

	err = p.Next()
	var ce *errs.ComputationError
	require.True(t, errors.As(err, &ce), err)
	assert.Equal(t, 1, ce.Partition)
	_, err = p.CurrentBuffer()
	require.True(t, errors.As(err, &ce))

	require.NoError(t, p.Next())
	require.True(t, p.More())
	last, err := p.CurrentBuffer()
	require.NoError(t, err)
	assert.Equal(t, 0, last.Meta().Partition)
	assert.Equal(t, t0.Add(time.Second), last.Meta().Time)

	require.NoError(t, p.Next())
	assert.False(t, p.More())
	assert.Equal(t, 1, solver.count(10*ghz))
	_, ok := p.State(1)
	assert.False(t, ok)
}

func TestAccessorsAreMemoized(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 0, t0)})
	p, err := regrid.New(src, scenarioA())
	require.NoError(t, err)
	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	buf, err := p.CurrentBuffer()
	require.NoError(t, err)

	w1, err := buf.WeightSpectrum()
	require.NoError(t, err)
	d1, err := buf.Visibilities(regrid.Observed)
	require.NoError(t, err)
	d2, err := buf.Visibilities(regrid.Observed)
	require.NoError(t, err)
	w2, err := buf.WeightSpectrum()
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Same(t, w1, w2)
	// weights are scaled exactly once
	assert.InDelta(t, 2.0, w2.Data[0], 1e-12)
}

func TestMissingFlagsAndDataColumns(t *testing.T) {
	b := buffer(0, 0, t0)
	b.FlagCube = nil
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{b})
	cfg := regrid.Config{Mode: "frequency", Start: "0.5GHz", Width: "1GHz", NChan: 5, Interpolation: "nearest", DataColumns: []string{"observed"}}
	p, err := regrid.New(src, cfg)
	require.NoError(t, err)
	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	buf, err := p.CurrentBuffer()
	require.NoError(t, err)

	flags, err := buf.Flags()
	require.NoError(t, err)
	require.Equal(t, 5, flags.NChan)
	// 0.5 GHz lies below the input hull
	assert.True(t, flags.At(0, 0, 0))
	assert.False(t, flags.At(0, 1, 0))

	_, err = buf.Visibilities(regrid.Observed)
	assert.NoError(t, err)
	_, err = buf.WeightSpectrum()
	assert.ErrorIs(t, err, errs.ErrQuantityMissing)
	_, err = buf.Weight()
	assert.ErrorIs(t, err, errs.ErrQuantityMissing)
}

func TestFFTShiftPipeline(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 0, t0)})
	p, err := regrid.New(src, regrid.Config{Interpolation: "fftshift"})
	require.NoError(t, err)
	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	buf, err := p.CurrentBuffer()
	require.NoError(t, err)
	data, err := buf.Visibilities(regrid.Observed)
	require.NoError(t, err)
	in, _ := buffer(0, 0, t0).Visibilities(regrid.Observed)
	for i := range in.Data {
		assert.InDelta(t, real(in.Data[i]), real(data.Data[i]), 1e-6)
		assert.InDelta(t, imag(in.Data[i]), imag(data.Data[i]), 1e-6)
	}
}

// channelUp moves every grid up by one channel width.
type channelUp struct{}

func (channelUp) ConvertFrame(g frames.Grid, _, _ frames.Frame, _ time.Time, _ frames.Direction, _ frames.Position) (frames.Grid, error) {
	out := g.Clone()
	for i := range out.Freq {
		out.Freq[i] += math.Abs(out.Width[i])
	}
	return out, nil
}

func (channelUp) ApplyRadialVelocity(g frames.Grid, _ frames.RadialVelocity) (frames.Grid, error) {
	return g, nil
}

type solverFunc func(frames.Grid) (frames.Grid, float64, error)

func (f solverFunc) SolveGrid(_ frames.GridSpec, in frames.Grid, _ frames.Direction, _ time.Time, _ frames.Position) (frames.Grid, float64, error) {
	return f(in)
}

func keepGrid(in frames.Grid) (frames.Grid, float64, error) { return in.Clone(), 1, nil }

// phasor is one row of one polarization holding a full turn of phase
// across the band.
func phasor(nChan int) *regrid.MemoryBuffer {
	b := &regrid.MemoryBuffer{
		Info:      regrid.Meta{Partition: 0, Field: 0, Time: t0, Rows: []int{0}, NPol: 1, NChan: nChan, NRow: 1},
		FlagCube:  regrid.NewCube[bool](1, nChan, 1),
		RowFlags:  []bool{false},
		Observed:  regrid.NewCube[complex128](1, nChan, 1),
		WeightSpc: regrid.NewCube[float64](1, nChan, 1),
		SigmaSpc:  regrid.NewCube[float64](1, nChan, 1),
		Weights:   regrid.NewMatrix(1, 1),
		Sigmas:    regrid.NewMatrix(1, 1),
	}
	for c := 0; c < nChan; c++ {
		b.Observed.Set(0, c, 0, cmplx.Exp(complex(0, 2*math.Pi*float64(c)/float64(nChan))))
		b.WeightSpc.Set(0, c, 0, 1)
		b.SigmaSpc.Set(0, c, 0, 1)
	}
	b.Weights.Data[0] = 1
	b.Sigmas.Data[0] = 1
	return b
}

func regridToLSRK(t *testing.T, interpolation string, g frames.Grid) ([]complex128, []bool) {
	t.Helper()
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: g}, []regrid.Buffer{phasor(g.Len())})
	cfg := regrid.Config{Interpolation: interpolation, OutFrame: "LSRK"}
	p, err := regrid.New(src, cfg, regrid.WithFrameConverter(channelUp{}), regrid.WithSolver(solverFunc(keepGrid)))
	require.NoError(t, err)
	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	buf, err := p.CurrentBuffer()
	require.NoError(t, err)
	data, err := buf.Visibilities(regrid.Observed)
	require.NoError(t, err)
	flags, err := buf.Flags()
	require.NoError(t, err)
	vals, fl := make([]complex128, g.Len()), make([]bool, g.Len())
	for c := range vals {
		vals[c] = data.At(0, c, 0)
		fl[c] = flags.At(0, c, 0)
	}
	return vals, fl
}

func TestFFTShiftMatchesLinearAfterFrameShift(t *testing.T) {
	const n = 16
	up := frames.Grid{Freq: make([]float64, n), Width: make([]float64, n)}
	down := frames.Grid{Freq: make([]float64, n), Width: make([]float64, n)}
	for i := 0; i < n; i++ {
		up.Freq[i], up.Width[i] = float64(i+1)*ghz, ghz
		down.Freq[i], down.Width[i] = float64(n-i)*ghz, ghz
	}
	in := phasor(n).Observed

	for _, tc := range []struct {
		name    string
		grid    frames.Grid
		from    int
		flagged int
	}{
		{"ascending", up, -1, 0},
		{"descending", down, 1, n - 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			lin, linFlags := regridToLSRK(t, "linear", tc.grid)
			fft, fftFlags := regridToLSRK(t, "fftshift", tc.grid)
			assert.Equal(t, linFlags, fftFlags)
			assert.True(t, fftFlags[tc.flagged])
			for c := 0; c < n; c++ {
				if fftFlags[c] {
					continue
				}
				want := in.At(0, c+tc.from, 0)
				assert.InDelta(t, 0, cmplx.Abs(lin[c]-want), 1e-9, "linear channel %d", c)
				assert.InDelta(t, 0, cmplx.Abs(fft[c]-want), 1e-9, "fftshift channel %d", c)
			}
		})
	}
}

func TestFrequenciesForBeforeFirstBuffer(t *testing.T) {
	b := buffer(0, 0, t0)
	b.Info.PhaseCenter = frames.Direction{Ref: "J2000", Lon: 1.2, Lat: -0.4}
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{b})
	solver := newCountingSolver()
	p, err := regrid.New(src, scenarioA(), regrid.WithSolver(solver))
	require.NoError(t, err)

	_, err = p.FrequenciesFor(t0, frames.Native, 0)
	assert.ErrorIs(t, err, errs.ErrNotPositioned)
	assert.Zero(t, solver.count(ghz))
	_, ok := p.State(0)
	assert.False(t, ok)

	require.NoError(t, p.OriginChunk())
	require.NoError(t, p.Origin())
	g, err := p.FrequenciesFor(t0, frames.Native, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5 * ghz, 3.5 * ghz}, g.Freq)
	assert.Equal(t, 1, solver.count(ghz))
	solver.mu.Lock()
	assert.Equal(t, b.Info.PhaseCenter, solver.dirs[ghz])
	solver.mu.Unlock()
}

func TestSharedSolverErrorIsAttributedPerPartition(t *testing.T) {
	shared := errs.Computation(errs.NoPartition, "solver gave up", nil)
	src := regrid.NewMemorySource(frames.TOPO,
		map[int]frames.Grid{0: grid4(ghz), 1: grid4(10 * ghz)},
		[]regrid.Buffer{buffer(0, 0, t0), buffer(1, 0, t0)},
	)
	fail := solverFunc(func(frames.Grid) (frames.Grid, float64, error) { return frames.Grid{}, 0, shared })
	p, err := regrid.New(src, scenarioA(), regrid.WithSolver(fail))
	require.NoError(t, err)
	require.NoError(t, p.OriginChunk())

	assert.Equal(t, 0, errs.Partition(p.Origin()))
	assert.Equal(t, 1, errs.Partition(p.Next()))
	_, err = p.FrequenciesFor(t0, frames.Native, 0)
	assert.Equal(t, 0, errs.Partition(err))
	assert.Equal(t, errs.NoPartition, shared.Partition)
}

func TestFFTShiftRejectsChannelCountChange(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 0, t0)})
	cfg := scenarioA()
	cfg.Interpolation = "fftshift"
	p, err := regrid.New(src, cfg)
	require.NoError(t, err)
	require.NoError(t, p.OriginChunk())
	err = p.Origin()
	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce), err)
	assert.Equal(t, 0, ce.Partition)
}

func TestPipelinesStack(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 0, t0)})
	inner, err := regrid.New(src, scenarioA())
	require.NoError(t, err)
	outer, err := regrid.New(inner, regrid.Config{Mode: "frequency", Start: "2.5GHz", NChan: 1, Interpolation: "linear"})
	require.NoError(t, err)

	var sink collectSink
	require.NoError(t, regrid.Drain(testContext(t), outer, &sink))
	require.Len(t, sink.bufs, 1)
	assert.True(t, sink.closed)

	data, err := sink.bufs[0].Visibilities(regrid.Observed)
	require.NoError(t, err)
	require.Equal(t, 1, data.NChan)
	// halfway between the averaged channels 15 and 35
	assert.InDelta(t, 25, real(data.At(0, 0, 0)), 1e-9)
	w, err := sink.bufs[0].WeightSpectrum()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, w.Data[0], 1e-12)
}

func failingPartitionSource() regrid.Source {
	return regrid.NewMemorySource(frames.TOPO,
		map[int]frames.Grid{0: grid4(ghz), 1: grid4(10 * ghz)},
		[]regrid.Buffer{buffer(1, 0, t0), buffer(0, 0, t0)},
		[]regrid.Buffer{buffer(0, 0, t0.Add(time.Second)), buffer(1, 0, t0.Add(time.Second))},
	)
}

func TestDrainStopsAtPartitionFailure(t *testing.T) {
	p, err := regrid.New(failingPartitionSource(), scenarioA(), regrid.WithSolver(newCountingSolver(10*ghz)))
	require.NoError(t, err)

	var sink collectSink
	err = regrid.Drain(testContext(t), p, &sink)
	assert.Equal(t, 1, errs.Partition(err))
	assert.Empty(t, sink.bufs)
	assert.True(t, sink.closed)
}

func TestDrainSkipsFailedPartitions(t *testing.T) {
	solver := newCountingSolver(10 * ghz)
	p, err := regrid.New(failingPartitionSource(), scenarioA(), regrid.WithSolver(solver))
	require.NoError(t, err)

	var sink collectSink
	err = regrid.Drain(testContext(t), p, &sink, regrid.SkipFailedPartitions())
	var ce *errs.ComputationError
	require.True(t, errors.As(err, &ce), err)
	assert.Equal(t, 1, ce.Partition)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	// reported when positioned on it, then its later buffers are dropped
	assert.Len(t, merr.Errors, 1)

	require.Len(t, sink.bufs, 2)
	for i, want := range []time.Time{t0, t0.Add(time.Second)} {
		assert.Equal(t, 0, sink.bufs[i].Meta().Partition)
		assert.Equal(t, want, sink.bufs[i].Meta().Time)
	}
	assert.True(t, sink.closed)
	assert.Equal(t, 1, solver.count(10*ghz))
}

func TestNotPositioned(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, map[int]frames.Grid{0: grid4(ghz)}, []regrid.Buffer{buffer(0, 0, t0)})
	p, err := regrid.New(src, scenarioA())
	require.NoError(t, err)
	_, err = p.CurrentBuffer()
	assert.ErrorIs(t, err, errs.ErrNotPositioned)
	assert.ErrorIs(t, p.Origin(), errs.ErrNotPositioned)
	assert.ErrorIs(t, p.Next(), errs.ErrNotPositioned)
	assert.False(t, p.More())
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	src := regrid.NewMemorySource(frames.TOPO, nil)
	_, err := regrid.New(src, regrid.Config{OutFrame: "LSRK"})
	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "outframe", ce.Parameter)

	_, err = regrid.New(src, regrid.Config{PhaseCenter: "2"})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "phaseCenter", ce.Parameter)
}

type collectSink struct {
	bufs   []regrid.Buffer
	closed bool
}

func (s *collectSink) Write(b regrid.Buffer) error {
	s.bufs = append(s.bufs, b)
	return nil
}

func (s *collectSink) Close() error {
	s.closed = true
	return nil
}

// testContext stands in for testing.T.Context (Go 1.24+): the context is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
