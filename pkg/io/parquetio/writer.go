package parquetio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	parquet "github.com/segmentio/parquet-go"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// GridLookup resolves the channel grid stored with each spectrum.
type GridLookup interface {
	NativeFrame() frames.Frame
	FrequenciesFor(t time.Time, f frames.Frame, partition int) (frames.Grid, error)
}

// Sink writes buffers to a Parquet file. It implements regrid.ChunkSink.
type Sink struct {
	file   *os.File
	writer *parquet.GenericWriter[Spectrum]
	grids  GridLookup
	cache  map[int]frames.Grid
	chunk  int32
	batch  []Spectrum
}

// Create writes zstd-compressed Parquet to path.
func Create(path string, grids GridLookup) (*Sink, error) {
	if grids == nil {
		return nil, errors.New("parquet sink needs a grid lookup")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewSink(f, grids)
	s.file = f
	return s, nil
}

// NewSink writes to w. Close flushes the Parquet footer but does not close w.
func NewSink(w io.Writer, grids GridLookup) *Sink {
	return &Sink{
		writer: parquet.NewGenericWriter[Spectrum](w, parquet.Compression(&parquet.Zstd)),
		grids:  grids,
		cache:  map[int]frames.Grid{},
	}
}

func (s *Sink) BeginChunk(n int) error {
	s.chunk = int32(n)
	return nil
}

func (s *Sink) grid(meta regrid.Meta) (frames.Grid, error) {
	if g, ok := s.cache[meta.Partition]; ok {
		return g, nil
	}
	g, err := s.grids.FrequenciesFor(meta.Time, frames.Native, meta.Partition)
	if err != nil {
		return frames.Grid{}, err
	}
	s.cache[meta.Partition] = g
	return g, nil
}

func (s *Sink) Write(buf regrid.Buffer) error {
	meta := buf.Meta()
	g, err := s.grid(meta)
	if err != nil {
		return err
	}
	q, err := collect(buf)
	if err != nil {
		return err
	}
	frame := ""
	if f := s.grids.NativeFrame(); f != frames.Native {
		frame = string(f)
	}

	s.batch = s.batch[:0]
	for r := 0; r < meta.NRow; r++ {
		row := int32(r)
		if r < len(meta.Rows) {
			row = int32(meta.Rows[r])
		}
		for p := 0; p < meta.NPol; p++ {
			sp := Spectrum{
				Chunk:          s.chunk,
				SPW:            int32(meta.Partition),
				Field:          int32(meta.Field),
				TimeUnixNano:   meta.Time.UnixNano(),
				Row:            row,
				Pol:            int32(p),
				Frame:          frame,
				Freq:           g.Freq,
				Width:          g.Width,
				Float:          line(q.float, p, r),
				Flag:           line(q.flags, p, r),
				WeightSpectrum: line(q.wspec, p, r),
				SigmaSpectrum:  line(q.sspec, p, r),
				Weight:         cell(q.weight, p, r),
				Sigma:          cell(q.sigma, p, r),
			}
			sp.DataRe, sp.DataIm = split(q.vis[regrid.Observed], p, r)
			sp.ModelRe, sp.ModelIm = split(q.vis[regrid.Model], p, r)
			sp.CorrectedRe, sp.CorrectedIm = split(q.vis[regrid.Corrected], p, r)
			if q.flagRow != nil {
				sp.FlagRow = q.flagRow[r]
			}
			s.batch = append(s.batch, sp)
		}
	}
	if _, err := s.writer.Write(s.batch); err != nil {
		return fmt.Errorf("parquet write partition %d: %w", meta.Partition, err)
	}
	return nil
}

func (s *Sink) Close() error {
	err := s.writer.Close()
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	return err
}

// quantities holds every accessor result of a buffer; nil means missing.
type quantities struct {
	flagRow       []bool
	flags         *regrid.Cube[bool]
	vis           map[regrid.DataKind]*regrid.Cube[complex128]
	float         *regrid.Cube[float64]
	wspec, sspec  *regrid.Cube[float64]
	weight, sigma *regrid.Matrix
}

func collect(buf regrid.Buffer) (quantities, error) {
	q := quantities{vis: map[regrid.DataKind]*regrid.Cube[complex128]{}}
	var err error
	keep := func(e error) bool {
		if e != nil && !errors.Is(e, errs.ErrQuantityMissing) {
			err = e
		}
		return err == nil
	}
	if rows, e := buf.FlagRow(); keep(e) {
		q.flagRow = rows
	}
	if c, e := buf.Flags(); keep(e) {
		q.flags = c
	}
	for _, kind := range []regrid.DataKind{regrid.Observed, regrid.Model, regrid.Corrected} {
		if c, e := buf.Visibilities(kind); keep(e) {
			q.vis[kind] = c
		}
	}
	if c, e := buf.FloatData(); keep(e) {
		q.float = c
	}
	if c, e := buf.WeightSpectrum(); keep(e) {
		q.wspec = c
	}
	if c, e := buf.SigmaSpectrum(); keep(e) {
		q.sspec = c
	}
	if m, e := buf.Weight(); keep(e) {
		q.weight = m
	}
	if m, e := buf.Sigma(); keep(e) {
		q.sigma = m
	}
	return q, err
}

func line[T any](c *regrid.Cube[T], p, r int) []T {
	if c == nil {
		return nil
	}
	return c.Line(p, r, nil)
}

func split(c *regrid.Cube[complex128], p, r int) (re, im []float64) {
	if c == nil {
		return nil, nil
	}
	re, im = make([]float64, c.NChan), make([]float64, c.NChan)
	for ch := range re {
		v := c.At(p, ch, r)
		re[ch], im[ch] = real(v), imag(v)
	}
	return re, im
}

func cell(m *regrid.Matrix, p, r int) *float64 {
	if m == nil {
		return nil
	}
	v := m.At(p, r)
	return &v
}
