package jsonlio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	iox "github.com/wdm0006/regrid/pkg/io/ioutils"
	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// GridLookup provides the channel grid written in spw records. Pipelines and
// sources both satisfy it.
type GridLookup interface {
	NativeFrame() frames.Frame
	FrequenciesFor(t time.Time, f frames.Frame, partition int) (frames.Grid, error)
}

// Sink writes buffers as JSONL records. It implements regrid.ChunkSink.
type Sink struct {
	close func() error
	enc   *json.Encoder
	grids GridLookup
	seen  map[int]bool
	chunk int
	rows  int
}

// Create opens path for writing (gzip compressed when it ends in .gz).
// grids may be nil, in which case no spw records are written.
func Create(path string, grids GridLookup) (*Sink, error) {
	wc, err := iox.CreateMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	s := NewSink(wc, grids)
	s.close = wc.Close
	return s, nil
}

// NewSink writes to w. Closing the sink does not close w.
func NewSink(w io.Writer, grids GridLookup) *Sink {
	return &Sink{enc: json.NewEncoder(w), grids: grids, seen: map[int]bool{}}
}

// Rows is the number of row records written so far.
func (s *Sink) Rows() int { return s.rows }

func (s *Sink) BeginChunk(n int) error {
	s.chunk = n
	return nil
}

func (s *Sink) Write(buf regrid.Buffer) error {
	meta := buf.Meta()
	if err := s.writeSPW(meta); err != nil {
		return err
	}

	flagRow, err := optional(buf.FlagRow())
	if err != nil {
		return err
	}
	flags, err := optional(buf.Flags())
	if err != nil {
		return err
	}
	var vis [3]*regrid.Cube[complex128]
	for i, kind := range []regrid.DataKind{regrid.Observed, regrid.Model, regrid.Corrected} {
		if vis[i], err = optional(buf.Visibilities(kind)); err != nil {
			return err
		}
	}
	float, err := optional(buf.FloatData())
	if err != nil {
		return err
	}
	wspec, err := optional(buf.WeightSpectrum())
	if err != nil {
		return err
	}
	sspec, err := optional(buf.SigmaSpectrum())
	if err != nil {
		return err
	}
	weight, err := optional(buf.Weight())
	if err != nil {
		return err
	}
	sigma, err := optional(buf.Sigma())
	if err != nil {
		return err
	}

	for r := 0; r < meta.NRow; r++ {
		rec := RowRecord{
			Type:           typeRow,
			Chunk:          s.chunk,
			SPW:            meta.Partition,
			Field:          meta.Field,
			Time:           meta.Time,
			Row:            r,
			Data:           lines(vis[0], r, fromComplex),
			Model:          lines(vis[1], r, fromComplex),
			Corrected:      lines(vis[2], r, fromComplex),
			Float:          lines(float, r, same[float64]),
			Flag:           lines(flags, r, same[bool]),
			WeightSpectrum: lines(wspec, r, same[float64]),
			SigmaSpectrum:  lines(sspec, r, same[float64]),
			Weight:         rowOf(weight, r),
			Sigma:          rowOf(sigma, r),
		}
		if r < len(meta.Rows) {
			rec.Row = meta.Rows[r]
		}
		if flagRow != nil {
			rec.FlagRow = flagRow[r]
		}
		if err := s.enc.Encode(rec); err != nil {
			return fmt.Errorf("write row %d: %w", rec.Row, err)
		}
		s.rows++
	}
	return nil
}

func (s *Sink) writeSPW(meta regrid.Meta) error {
	if s.grids == nil || s.seen[meta.Partition] {
		return nil
	}
	g, err := s.grids.FrequenciesFor(meta.Time, frames.Native, meta.Partition)
	if err != nil {
		return err
	}
	rec := SPWRecord{Type: typeSPW, SPW: meta.Partition, Freq: g.Freq, Width: g.Width}
	if f := s.grids.NativeFrame(); f != frames.Native {
		rec.Frame = string(f)
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("write spw %d: %w", meta.Partition, err)
	}
	s.seen[meta.Partition] = true
	return nil
}

func (s *Sink) Close() error {
	if s.close == nil {
		return nil
	}
	closeFn := s.close
	s.close = nil
	return closeFn()
}

// optional turns a missing quantity into a nil value.
func optional[T any](v T, err error) (T, error) {
	if errors.Is(err, errs.ErrQuantityMissing) {
		var zero T
		return zero, nil
	}
	return v, err
}

func lines[T, V any](c *regrid.Cube[T], r int, conv func(T) V) [][]V {
	if c == nil {
		return nil
	}
	out := make([][]V, c.NPol)
	for p := range out {
		out[p] = make([]V, c.NChan)
		for ch := range out[p] {
			out[p][ch] = conv(c.At(p, ch, r))
		}
	}
	return out
}

func rowOf(m *regrid.Matrix, r int) []float64 {
	if m == nil {
		return nil
	}
	return append([]float64(nil), m.Data[r*m.NPol:(r+1)*m.NPol]...)
}
