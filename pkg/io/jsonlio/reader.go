package jsonlio

import (
	"encoding/json"
	"fmt"
	"io"

	iox "github.com/wdm0006/regrid/pkg/io/ioutils"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// Open reads a JSONL observation file, gzip compressed or not, into an
// in-memory source. "-" reads stdin.
func Open(path string) (*regrid.MemorySource, error) {
	rc, err := iox.OpenMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return Read(rc)
}

// Read decodes JSONL records from r. Every row must follow the spw record of
// its spectral window.
func Read(r io.Reader) (*regrid.MemorySource, error) {
	dec := json.NewDecoder(r)
	src := regrid.NewMemorySource(frames.Native, map[int]frames.Grid{})
	asm := assembler{grids: src.Grids}
	for n := 1; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("jsonl record %d: %w", n, err)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("jsonl record %d: %w", n, err)
		}
		switch head.Type {
		case typeSPW:
			var rec SPWRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("jsonl record %d: %w", n, err)
			}
			if err := addSPW(src, rec); err != nil {
				return nil, fmt.Errorf("jsonl record %d: %w", n, err)
			}
		case typeRow, "":
			var rec RowRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("jsonl record %d: %w", n, err)
			}
			if err := asm.add(rec); err != nil {
				return nil, fmt.Errorf("jsonl record %d: %w", n, err)
			}
		default:
			return nil, fmt.Errorf("jsonl record %d: unknown record type %q", n, head.Type)
		}
	}
	if err := asm.flush(); err != nil {
		return nil, err
	}
	src.Chunks = asm.chunks
	if src.Frame == frames.Native {
		src.Frame = frames.TOPO
	}
	return src, nil
}

func addSPW(src *regrid.MemorySource, rec SPWRecord) error {
	if _, dup := src.Grids[rec.SPW]; dup {
		return fmt.Errorf("spw %d defined twice", rec.SPW)
	}
	f, err := frames.ParseFrame(rec.Frame)
	if err != nil {
		return err
	}
	if f != frames.Native {
		if src.Frame != frames.Native && src.Frame != f {
			return fmt.Errorf("spw %d is in %s but earlier windows are in %s", rec.SPW, f, src.Frame)
		}
		src.Frame = f
	}
	g := frames.NewGrid(rec.Freq, rec.Width)
	if err := g.Validate(); err != nil {
		return fmt.Errorf("spw %d: %w", rec.SPW, err)
	}
	src.Grids[rec.SPW] = g
	return nil
}

// assembler groups consecutive rows into buffers and buffers into chunks.
type assembler struct {
	grids     map[int]frames.Grid
	chunks    [][]regrid.Buffer
	lastChunk int
	pending   []RowRecord
}

func (a *assembler) add(rec RowRecord) error {
	if _, ok := a.grids[rec.SPW]; !ok {
		return fmt.Errorf("row %d refers to undefined spw %d", rec.Row, rec.SPW)
	}
	if len(a.pending) > 0 && !rec.sameBuffer(a.pending[0]) {
		if err := a.flush(); err != nil {
			return err
		}
	}
	a.pending = append(a.pending, rec)
	return nil
}

func (a *assembler) flush() error {
	if len(a.pending) == 0 {
		return nil
	}
	rows := a.pending
	a.pending = nil
	buf, err := assemble(rows, a.grids[rows[0].SPW].Len())
	if err != nil {
		return err
	}
	if len(a.chunks) == 0 || rows[0].Chunk != a.lastChunk {
		a.chunks = append(a.chunks, nil)
		a.lastChunk = rows[0].Chunk
	}
	last := len(a.chunks) - 1
	a.chunks[last] = append(a.chunks[last], buf)
	return nil
}

func assemble(rows []RowRecord, nChan int) (*regrid.MemoryBuffer, error) {
	first := rows[0]
	nPol, nRow := first.nPol(), len(rows)
	b := &regrid.MemoryBuffer{
		Info: regrid.Meta{
			Partition: first.SPW,
			Field:     first.Field,
			Time:      first.Time,
			Rows:      make([]int, nRow),
			NPol:      nPol,
			NChan:     nChan,
			NRow:      nRow,
		},
		RowFlags:  make([]bool, nRow),
		Observed:  alloc[complex128](first.Data != nil, nPol, nChan, nRow),
		Model:     alloc[complex128](first.Model != nil, nPol, nChan, nRow),
		Corrected: alloc[complex128](first.Corrected != nil, nPol, nChan, nRow),
		Float:     alloc[float64](first.Float != nil, nPol, nChan, nRow),
		FlagCube:  alloc[bool](first.Flag != nil, nPol, nChan, nRow),
		WeightSpc: alloc[float64](first.WeightSpectrum != nil, nPol, nChan, nRow),
		SigmaSpc:  alloc[float64](first.SigmaSpectrum != nil, nPol, nChan, nRow),
	}
	if first.Weight != nil {
		b.Weights = regrid.NewMatrix(nPol, nRow)
	}
	if first.Sigma != nil {
		b.Sigmas = regrid.NewMatrix(nPol, nRow)
	}
	for r, rec := range rows {
		b.Info.Rows[r] = rec.Row
		b.RowFlags[r] = rec.FlagRow
		for _, err := range []error{
			put(b.Observed, r, rec.Data, toComplex, "data"),
			put(b.Model, r, rec.Model, toComplex, "model"),
			put(b.Corrected, r, rec.Corrected, toComplex, "corrected"),
			put(b.Float, r, rec.Float, same[float64], "float_data"),
			put(b.FlagCube, r, rec.Flag, same[bool], "flag"),
			put(b.WeightSpc, r, rec.WeightSpectrum, same[float64], "weight_spectrum"),
			put(b.SigmaSpc, r, rec.SigmaSpectrum, same[float64], "sigma_spectrum"),
			putRow(b.Weights, r, rec.Weight, "weight"),
			putRow(b.Sigmas, r, rec.Sigma, "sigma"),
		} {
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", rec.Row, err)
			}
		}
	}
	return b, nil
}

func alloc[T any](present bool, nPol, nChan, nRow int) *regrid.Cube[T] {
	if !present {
		return nil
	}
	return regrid.NewCube[T](nPol, nChan, nRow)
}

func put[T, V any](c *regrid.Cube[T], r int, vals [][]V, conv func(V) T, name string) error {
	if c == nil {
		if vals != nil {
			return fmt.Errorf("%s is missing from the first row of the buffer", name)
		}
		return nil
	}
	if len(vals) != c.NPol {
		return fmt.Errorf("%s has %d polarizations, want %d", name, len(vals), c.NPol)
	}
	for p, line := range vals {
		if len(line) != c.NChan {
			return fmt.Errorf("%s pol %d has %d channels, want %d", name, p, len(line), c.NChan)
		}
		for ch, v := range line {
			c.Set(p, ch, r, conv(v))
		}
	}
	return nil
}

func putRow(m *regrid.Matrix, r int, vals []float64, name string) error {
	if m == nil {
		if vals != nil {
			return fmt.Errorf("%s is missing from the first row of the buffer", name)
		}
		return nil
	}
	if len(vals) != m.NPol {
		return fmt.Errorf("%s has %d polarizations, want %d", name, len(vals), m.NPol)
	}
	copy(m.Data[r*m.NPol:(r+1)*m.NPol], vals)
	return nil
}
