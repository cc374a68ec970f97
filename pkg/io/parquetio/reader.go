package parquetio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	parquet "github.com/segmentio/parquet-go"

	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

const readBatch = 1024

// Open reads a file written by Sink back into an in-memory source.
func Open(path string) (*regrid.MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read decodes every spectrum from r. Consecutive spectra sharing chunk,
// spectral window, field and time form one buffer.
func Read(r io.ReaderAt) (*regrid.MemorySource, error) {
	pr := parquet.NewGenericReader[Spectrum](r)
	defer func() { _ = pr.Close() }()

	src := regrid.NewMemorySource(frames.Native, map[int]frames.Grid{})
	var (
		pending   []Spectrum
		lastChunk int32
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		b, err := assemble(pending, src)
		if err != nil {
			return err
		}
		if len(src.Chunks) == 0 || pending[0].Chunk != lastChunk {
			src.Chunks = append(src.Chunks, nil)
			lastChunk = pending[0].Chunk
		}
		last := len(src.Chunks) - 1
		src.Chunks[last] = append(src.Chunks[last], b)
		pending = nil
		return nil
	}
	for {
		// fresh batch: pending spectra keep referencing the previous one
		buf := make([]Spectrum, readBatch)
		n, err := pr.Read(buf)
		for i := 0; i < n; i++ {
			sp := buf[i]
			if len(pending) > 0 && !sp.sameBuffer(&pending[0]) {
				if ferr := flush(); ferr != nil {
					return nil, ferr
				}
			}
			pending = append(pending, sp)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if src.Frame == frames.Native {
		src.Frame = frames.TOPO
	}
	return src, nil
}

func assemble(spectra []Spectrum, src *regrid.MemorySource) (*regrid.MemoryBuffer, error) {
	first := &spectra[0]
	spw := int(first.SPW)
	if err := registerGrid(src, first); err != nil {
		return nil, err
	}
	nChan := src.Grids[spw].Len()

	rowIndex := map[int32]int{}
	var rows []int
	nPol := 0
	for i := range spectra {
		sp := &spectra[i]
		if _, ok := rowIndex[sp.Row]; !ok {
			rowIndex[sp.Row] = len(rows)
			rows = append(rows, int(sp.Row))
		}
		if int(sp.Pol)+1 > nPol {
			nPol = int(sp.Pol) + 1
		}
	}
	nRow := len(rows)
	if len(spectra) != nPol*nRow {
		return nil, fmt.Errorf("spw %d: %d spectra do not fill %d rows of %d polarizations", spw, len(spectra), nRow, nPol)
	}

	b := &regrid.MemoryBuffer{
		Info: regrid.Meta{
			Partition: spw,
			Field:     int(first.Field),
			Time:      time.Unix(0, first.TimeUnixNano).UTC(),
			Rows:      rows,
			NPol:      nPol,
			NChan:     nChan,
			NRow:      nRow,
		},
		RowFlags:  make([]bool, nRow),
		Observed:  alloc[complex128](len(first.DataRe) > 0, nPol, nChan, nRow),
		Model:     alloc[complex128](len(first.ModelRe) > 0, nPol, nChan, nRow),
		Corrected: alloc[complex128](len(first.CorrectedRe) > 0, nPol, nChan, nRow),
		Float:     alloc[float64](len(first.Float) > 0, nPol, nChan, nRow),
		FlagCube:  alloc[bool](len(first.Flag) > 0, nPol, nChan, nRow),
		WeightSpc: alloc[float64](len(first.WeightSpectrum) > 0, nPol, nChan, nRow),
		SigmaSpc:  alloc[float64](len(first.SigmaSpectrum) > 0, nPol, nChan, nRow),
	}
	if first.Weight != nil {
		b.Weights = regrid.NewMatrix(nPol, nRow)
	}
	if first.Sigma != nil {
		b.Sigmas = regrid.NewMatrix(nPol, nRow)
	}

	for i := range spectra {
		sp := &spectra[i]
		p, r := int(sp.Pol), rowIndex[sp.Row]
		b.RowFlags[r] = b.RowFlags[r] || sp.FlagRow
		for _, err := range []error{
			putComplex(b.Observed, p, r, sp.DataRe, sp.DataIm),
			putComplex(b.Model, p, r, sp.ModelRe, sp.ModelIm),
			putComplex(b.Corrected, p, r, sp.CorrectedRe, sp.CorrectedIm),
			put(b.Float, p, r, sp.Float),
			put(b.FlagCube, p, r, sp.Flag),
			put(b.WeightSpc, p, r, sp.WeightSpectrum),
			put(b.SigmaSpc, p, r, sp.SigmaSpectrum),
			putCell(b.Weights, p, r, sp.Weight),
			putCell(b.Sigmas, p, r, sp.Sigma),
		} {
			if err != nil {
				return nil, fmt.Errorf("spw %d row %d pol %d: %w", spw, sp.Row, sp.Pol, err)
			}
		}
	}
	return b, nil
}

func registerGrid(src *regrid.MemorySource, sp *Spectrum) error {
	spw := int(sp.SPW)
	if _, ok := src.Grids[spw]; ok {
		return nil
	}
	f, err := frames.ParseFrame(sp.Frame)
	if err != nil {
		return err
	}
	if f != frames.Native {
		if src.Frame != frames.Native && src.Frame != f {
			return fmt.Errorf("spw %d is in %s but earlier windows are in %s", spw, f, src.Frame)
		}
		src.Frame = f
	}
	g := frames.NewGrid(sp.Freq, sp.Width)
	if err := g.Validate(); err != nil {
		return fmt.Errorf("spw %d: %w", spw, err)
	}
	src.Grids[spw] = g
	return nil
}

func alloc[T any](present bool, nPol, nChan, nRow int) *regrid.Cube[T] {
	if !present {
		return nil
	}
	return regrid.NewCube[T](nPol, nChan, nRow)
}

func put[T any](c *regrid.Cube[T], p, r int, vals []T) error {
	if c == nil {
		if len(vals) > 0 {
			return errors.New("quantity missing from the first spectrum of the buffer")
		}
		return nil
	}
	if len(vals) != c.NChan {
		return fmt.Errorf("%d channels, want %d", len(vals), c.NChan)
	}
	c.SetLine(p, r, vals)
	return nil
}

func putComplex(c *regrid.Cube[complex128], p, r int, re, im []float64) error {
	if c == nil {
		return put[float64](nil, p, r, re)
	}
	if len(re) != c.NChan || len(im) != c.NChan {
		return fmt.Errorf("%d/%d real/imaginary channels, want %d", len(re), len(im), c.NChan)
	}
	for ch := range re {
		c.Set(p, ch, r, complex(re[ch], im[ch]))
	}
	return nil
}

func putCell(m *regrid.Matrix, p, r int, v *float64) error {
	if m == nil {
		if v != nil {
			return errors.New("per-row value missing from the first spectrum of the buffer")
		}
		return nil
	}
	if v != nil {
		m.Data[p+m.NPol*r] = *v
	}
	return nil
}
