package regrid

import (
	"fmt"
	"time"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
)

// DataKind selects one of the visibility data columns.
type DataKind int

const (
	Observed DataKind = iota
	Model
	Corrected
)

var dataKindNames = [...]string{"observed", "model", "corrected"}

func (k DataKind) String() string {
	if k >= 0 && int(k) < len(dataKindNames) {
		return dataKindNames[k]
	}
	return fmt.Sprintf("DataKind(%d)", int(k))
}

// Cube is a dense (pol, chan, row) array. Element (p, c, r) lives at
// p + NPol*(c + NChan*r).
type Cube[T any] struct {
	NPol, NChan, NRow int
	Data              []T
}

// NewCube allocates a zeroed cube.
func NewCube[T any](nPol, nChan, nRow int) *Cube[T] {
	return &Cube[T]{NPol: nPol, NChan: nChan, NRow: nRow, Data: make([]T, nPol*nChan*nRow)}
}

func (c *Cube[T]) index(p, ch, r int) int { return p + c.NPol*(ch+c.NChan*r) }

// At returns element (p, ch, r).
func (c *Cube[T]) At(p, ch, r int) T { return c.Data[c.index(p, ch, r)] }

// Set stores element (p, ch, r).
func (c *Cube[T]) Set(p, ch, r int, v T) { c.Data[c.index(p, ch, r)] = v }

// Line copies the channel vector of (p, r) into dst, growing it if needed.
func (c *Cube[T]) Line(p, r int, dst []T) []T {
	if cap(dst) < c.NChan {
		dst = make([]T, c.NChan)
	}
	dst = dst[:c.NChan]
	for ch := range dst {
		dst[ch] = c.Data[c.index(p, ch, r)]
	}
	return dst
}

// SetLine writes the channel vector of (p, r).
func (c *Cube[T]) SetLine(p, r int, src []T) {
	for ch := 0; ch < c.NChan && ch < len(src); ch++ {
		c.Data[c.index(p, ch, r)] = src[ch]
	}
}

// Clone returns a deep copy.
func (c *Cube[T]) Clone() *Cube[T] {
	out := &Cube[T]{NPol: c.NPol, NChan: c.NChan, NRow: c.NRow, Data: make([]T, len(c.Data))}
	copy(out.Data, c.Data)
	return out
}

// Matrix is a dense (pol, row) array for per-row weights and sigmas.
type Matrix struct {
	NPol, NRow int
	Data       []float64
}

// NewMatrix allocates a zeroed matrix.
func NewMatrix(nPol, nRow int) *Matrix {
	return &Matrix{NPol: nPol, NRow: nRow, Data: make([]float64, nPol*nRow)}
}

// At returns element (p, r).
func (m *Matrix) At(p, r int) float64 { return m.Data[p+m.NPol*r] }

// Meta describes one buffer of rows sharing a partition.
type Meta struct {
	Partition int
	Field     int
	Time      time.Time
	Rows      []int
	// PhaseCenter is the field direction of the rows.
	PhaseCenter frames.Direction
	NPol        int
	NChan       int
	NRow        int
}

// Buffer is one batch of rows. Cubes returned by a Buffer are owned by it
// and must not be modified. Quantities the buffer does not carry return
// errs.ErrQuantityMissing.
type Buffer interface {
	Meta() Meta
	Flags() (*Cube[bool], error)
	FlagRow() ([]bool, error)
	Visibilities(kind DataKind) (*Cube[complex128], error)
	FloatData() (*Cube[float64], error)
	WeightSpectrum() (*Cube[float64], error)
	SigmaSpectrum() (*Cube[float64], error)
	Weight() (*Matrix, error)
	Sigma() (*Matrix, error)
}

// MemoryBuffer is a Buffer held in plain fields. Nil fields are missing
// quantities.
type MemoryBuffer struct {
	Info      Meta
	FlagCube  *Cube[bool]
	RowFlags  []bool
	Observed  *Cube[complex128]
	Model     *Cube[complex128]
	Corrected *Cube[complex128]
	Float     *Cube[float64]
	WeightSpc *Cube[float64]
	SigmaSpc  *Cube[float64]
	Weights   *Matrix
	Sigmas    *Matrix
}

func present[T any](v *T) (*T, error) {
	if v == nil {
		return nil, errs.ErrQuantityMissing
	}
	return v, nil
}

func (b *MemoryBuffer) Meta() Meta                              { return b.Info }
func (b *MemoryBuffer) Flags() (*Cube[bool], error)             { return present(b.FlagCube) }
func (b *MemoryBuffer) FloatData() (*Cube[float64], error)      { return present(b.Float) }
func (b *MemoryBuffer) WeightSpectrum() (*Cube[float64], error) { return present(b.WeightSpc) }
func (b *MemoryBuffer) SigmaSpectrum() (*Cube[float64], error)  { return present(b.SigmaSpc) }
func (b *MemoryBuffer) Weight() (*Matrix, error)                { return present(b.Weights) }
func (b *MemoryBuffer) Sigma() (*Matrix, error)                 { return present(b.Sigmas) }

func (b *MemoryBuffer) FlagRow() ([]bool, error) {
	if b.RowFlags == nil {
		return nil, errs.ErrQuantityMissing
	}
	return b.RowFlags, nil
}

func (b *MemoryBuffer) Visibilities(kind DataKind) (*Cube[complex128], error) {
	switch kind {
	case Observed:
		return present(b.Observed)
	case Model:
		return present(b.Model)
	case Corrected:
		return present(b.Corrected)
	}
	return nil, fmt.Errorf("unknown data kind %v", kind)
}

// Validate checks every present cube against the shape in Info.
func (b *MemoryBuffer) Validate() error {
	m := b.Info
	want := m.NPol * m.NChan * m.NRow
	check := func(name string, np, nc, nr, n int) error {
		if np != m.NPol || nc != m.NChan || nr != m.NRow || n != want {
			return fmt.Errorf("%s cube is %dx%dx%d (%d values), buffer is %dx%dx%d", name, np, nc, nr, n, m.NPol, m.NChan, m.NRow)
		}
		return nil
	}
	if c := b.FlagCube; c != nil {
		if err := check("flag", c.NPol, c.NChan, c.NRow, len(c.Data)); err != nil {
			return err
		}
	}
	for kind, c := range []*Cube[complex128]{b.Observed, b.Model, b.Corrected} {
		if c != nil {
			if err := check(DataKind(kind).String(), c.NPol, c.NChan, c.NRow, len(c.Data)); err != nil {
				return err
			}
		}
	}
	for name, c := range map[string]*Cube[float64]{"float": b.Float, "weight": b.WeightSpc, "sigma": b.SigmaSpc} {
		if c != nil {
			if err := check(name, c.NPol, c.NChan, c.NRow, len(c.Data)); err != nil {
				return err
			}
		}
	}
	for name, mx := range map[string]*Matrix{"weight": b.Weights, "sigma": b.Sigmas} {
		if mx != nil && (mx.NPol != m.NPol || mx.NRow != m.NRow || len(mx.Data) != m.NPol*m.NRow) {
			return fmt.Errorf("%s matrix is %dx%d, buffer has %d pols and %d rows", name, mx.NPol, mx.NRow, m.NPol, m.NRow)
		}
	}
	if b.RowFlags != nil && len(b.RowFlags) != m.NRow {
		return fmt.Errorf("row flags have %d entries, buffer has %d rows", len(b.RowFlags), m.NRow)
	}
	return nil
}
