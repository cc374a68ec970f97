// Package dataio generates synthetic observation streams for tests and
// benchmarks.
package dataio

import (
	"math"
	"math/rand"
	"time"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// SyntheticOptions shapes a synthetic stream.
type SyntheticOptions struct {
	Partitions int     // spectral windows, cycled through buffer by buffer
	Channels   int     // channels per spectral window
	Pols       int     // polarizations
	Rows       int     // rows per buffer
	Buffers    int     // buffers per chunk
	Chunks     int     // chunks in the stream
	StartFreq  float64 // Hz, first channel of window 0
	Width      float64 // Hz, channel width
	FlagProb   float64 // probability a sample is flagged
	Seed       int64
	Frame      frames.Frame
}

// DefaultSyntheticOptions is a small stream of 64-channel windows at 1.4 GHz.
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Partitions: 2,
		Channels:   64,
		Pols:       2,
		Rows:       100,
		Buffers:    4,
		Chunks:     2,
		StartFreq:  1.4e9,
		Width:      1e6,
		FlagProb:   0.01,
		Seed:       42,
		Frame:      frames.TOPO,
	}
}

// Synthetic is a regrid.Source producing seeded buffers on demand. The same
// position always yields the same buffer.
type Synthetic struct {
	opts    SyntheticOptions
	epoch   time.Time
	started bool
	chunk   int
	sub     int
	cur     *regrid.MemoryBuffer
}

// NewSynthetic returns a synthetic source.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.Partitions < 1 {
		opts.Partitions = 1
	}
	return &Synthetic{opts: opts, epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Grid returns the channelization of a partition.
func (s *Synthetic) Grid(partition int) frames.Grid {
	span := float64(s.opts.Channels) * s.opts.Width
	start := s.opts.StartFreq + float64(partition)*1.5*span
	return frames.UniformGrid(start, s.opts.Width, s.opts.Channels)
}

func (s *Synthetic) OriginChunk() error {
	s.started, s.chunk, s.sub, s.cur = true, 0, 0, nil
	return nil
}

func (s *Synthetic) MoreChunks() bool { return s.started && s.chunk < s.opts.Chunks }

func (s *Synthetic) NextChunk() error {
	if !s.started {
		return errs.ErrNotPositioned
	}
	s.chunk++
	s.sub, s.cur = 0, nil
	return nil
}

func (s *Synthetic) Origin() error {
	if !s.started {
		return errs.ErrNotPositioned
	}
	s.sub, s.cur = 0, nil
	return nil
}

func (s *Synthetic) More() bool { return s.MoreChunks() && s.sub < s.opts.Buffers }

func (s *Synthetic) Next() error {
	if !s.More() {
		return errs.ErrNotPositioned
	}
	s.sub++
	s.cur = nil
	return nil
}

func (s *Synthetic) CurrentBuffer() (regrid.Buffer, error) {
	if !s.More() {
		return nil, errs.ErrNotPositioned
	}
	if s.cur == nil {
		s.cur = s.generate(s.chunk*s.opts.Buffers + s.sub)
	}
	return s.cur, nil
}

func (s *Synthetic) NativeFrame() frames.Frame { return s.opts.Frame }

func (s *Synthetic) FrequenciesFor(_ time.Time, f frames.Frame, partition int) (frames.Grid, error) {
	if f != frames.Native && f != s.opts.Frame {
		return frames.Grid{}, errs.FrameConversion(string(f), "synthetic source only serves its own frame").At(partition, errs.NoPartition)
	}
	return s.Grid(partition), nil
}

// generate builds buffer number n of the stream.
func (s *Synthetic) generate(n int) *regrid.MemoryBuffer {
	o := s.opts
	rnd := rand.New(rand.NewSource(o.Seed + int64(n)))
	partition := n % o.Partitions
	rows := make([]int, o.Rows)
	for i := range rows {
		rows[i] = n*o.Rows + i
	}
	b := &regrid.MemoryBuffer{
		Info: regrid.Meta{
			Partition:   partition,
			Field:       0,
			Time:        s.epoch.Add(time.Duration(n) * 10 * time.Second),
			Rows:        rows,
			PhaseCenter: frames.Direction{Ref: "J2000", Lon: 1.2, Lat: -0.4},
			NPol:        o.Pols,
			NChan:       o.Channels,
			NRow:        o.Rows,
		},
		FlagCube:  regrid.NewCube[bool](o.Pols, o.Channels, o.Rows),
		RowFlags:  make([]bool, o.Rows),
		Observed:  regrid.NewCube[complex128](o.Pols, o.Channels, o.Rows),
		WeightSpc: regrid.NewCube[float64](o.Pols, o.Channels, o.Rows),
		SigmaSpc:  regrid.NewCube[float64](o.Pols, o.Channels, o.Rows),
		Weights:   regrid.NewMatrix(o.Pols, o.Rows),
		Sigmas:    regrid.NewMatrix(o.Pols, o.Rows),
	}
	mid, sigma := float64(o.Channels)/2, math.Max(float64(o.Channels)/16, 1)
	for r := 0; r < o.Rows; r++ {
		for p := 0; p < o.Pols; p++ {
			for c := 0; c < o.Channels; c++ {
				line := math.Exp(-0.5 * math.Pow((float64(c)-mid)/sigma, 2))
				v := complex(1+line+0.05*rnd.NormFloat64(), 0.05*rnd.NormFloat64())
				b.Observed.Set(p, c, r, v)
				b.FlagCube.Set(p, c, r, rnd.Float64() < o.FlagProb)
				b.WeightSpc.Set(p, c, r, 1)
				b.SigmaSpc.Set(p, c, r, 1)
			}
			b.Weights.Data[p+o.Pols*r] = float64(o.Channels)
			b.Sigmas.Data[p+o.Pols*r] = 1 / math.Sqrt(float64(o.Channels))
		}
	}
	return b
}
