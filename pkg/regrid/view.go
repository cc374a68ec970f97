package regrid

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/kernel"
)

// view is the regridded face of one upstream buffer. Every cube is computed
// on first access and then reused.
type view struct {
	p     *Pipeline
	in    Buffer
	meta  Meta
	state TransformState
	axis  kernel.Axis

	flags     lazy[*Cube[bool]]
	vis       [3]lazy[*Cube[complex128]]
	float     lazy[*Cube[float64]]
	weightSpc lazy[*Cube[float64]]
	sigmaSpc  lazy[*Cube[float64]]
	weight    lazy[*Matrix]
	sigma     lazy[*Matrix]
}

func newView(p *Pipeline, in Buffer, meta Meta, st TransformState, row RowContext) *view {
	meta.NChan = st.OutputChannels
	return &view{
		p:     p,
		in:    in,
		meta:  meta,
		state: st,
		axis:  kernel.Axis{In: row.Adjusted.Freq, Out: st.Output.Freq, Shift: row.Shift},
	}
}

func (v *view) Meta() Meta { return v.meta }

func (v *view) enabled(col string) bool {
	return v.p.set.columns == nil || v.p.set.columns[col]
}

func (v *view) wrap(what string, err error) error {
	return fmt.Errorf("partition %d: regridding %s: %w", v.meta.Partition, what, err)
}

// inputFlags returns upstream's flag cube, or nil when it carries none.
func (v *view) inputFlags() (*Cube[bool], error) {
	f, err := v.in.Flags()
	if errors.Is(err, errs.ErrQuantityMissing) {
		return nil, nil
	}
	return f, err
}

func (v *view) Flags() (*Cube[bool], error) {
	return v.flags.get(func() (*Cube[bool], error) {
		f, err := v.inputFlags()
		if err != nil {
			return nil, err
		}
		if f == nil {
			in := v.in.Meta()
			f = NewCube[bool](in.NPol, in.NChan, in.NRow)
		}
		out, err := v.p.engine.Apply(context.Background(), v.p.kern, v.axis, Lines{Flags: f}, v.state.OutputChannels)
		if err != nil {
			return nil, v.wrap("flags", err)
		}
		return out.Flags, nil
	})
}

// FlagRow is passed through: regridding does not change the rows.
func (v *view) FlagRow() ([]bool, error) {
	rows, err := v.in.FlagRow()
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(rows))
	copy(out, rows)
	return out, nil
}

func (v *view) Visibilities(kind DataKind) (*Cube[complex128], error) {
	if kind < Observed || kind > Corrected {
		return nil, fmt.Errorf("unknown data kind %v", kind)
	}
	if !v.enabled(kind.String()) {
		return nil, errs.ErrQuantityMissing
	}
	return v.vis[kind].get(func() (*Cube[complex128], error) {
		data, err := v.in.Visibilities(kind)
		if err != nil {
			return nil, err
		}
		flags, err := v.inputFlags()
		if err != nil {
			return nil, err
		}
		out, err := v.p.engine.Apply(context.Background(), v.p.kern, v.axis, Lines{Data: data, Flags: flags}, v.state.OutputChannels)
		if err != nil {
			return nil, v.wrap(kind.String()+" data", err)
		}
		return out.Data, nil
	})
}

// regridFloat regrids a real cube and scales it by factor.
func (v *view) regridFloat(what string, get func() (*Cube[float64], error), factor float64) (*Cube[float64], error) {
	data, err := get()
	if err != nil {
		return nil, err
	}
	flags, err := v.inputFlags()
	if err != nil {
		return nil, err
	}
	out, _, err := v.p.engine.ApplyFloat(context.Background(), v.p.kern, v.axis, data, flags, v.state.OutputChannels)
	if err != nil {
		return nil, v.wrap(what, err)
	}
	if factor != 1 {
		floats.Scale(factor, out.Data)
	}
	return out, nil
}

func (v *view) FloatData() (*Cube[float64], error) {
	if !v.enabled(ColumnFloat) {
		return nil, errs.ErrQuantityMissing
	}
	return v.float.get(func() (*Cube[float64], error) {
		return v.regridFloat("float data", v.in.FloatData, 1)
	})
}

func (v *view) WeightSpectrum() (*Cube[float64], error) {
	if !v.enabled(ColumnWeight) {
		return nil, errs.ErrQuantityMissing
	}
	return v.weightSpc.get(func() (*Cube[float64], error) {
		return v.regridFloat("weight spectrum", v.in.WeightSpectrum, v.state.WeightFactor)
	})
}

func (v *view) SigmaSpectrum() (*Cube[float64], error) {
	if !v.enabled(ColumnSigma) {
		return nil, errs.ErrQuantityMissing
	}
	return v.sigmaSpc.get(func() (*Cube[float64], error) {
		return v.regridFloat("sigma spectrum", v.in.SigmaSpectrum, v.state.SigmaFactor)
	})
}

func scaledMatrix(get func() (*Matrix, error), factor float64) (*Matrix, error) {
	m, err := get()
	if err != nil {
		return nil, err
	}
	out := &Matrix{NPol: m.NPol, NRow: m.NRow, Data: make([]float64, len(m.Data))}
	floats.ScaleTo(out.Data, factor, m.Data)
	return out, nil
}

func (v *view) Weight() (*Matrix, error) {
	if !v.enabled(ColumnWeight) {
		return nil, errs.ErrQuantityMissing
	}
	return v.weight.get(func() (*Matrix, error) { return scaledMatrix(v.in.Weight, v.state.WeightFactor) })
}

func (v *view) Sigma() (*Matrix, error) {
	if !v.enabled(ColumnSigma) {
		return nil, errs.ErrQuantityMissing
	}
	return v.sigma.get(func() (*Matrix, error) { return scaledMatrix(v.in.Sigma, v.state.SigmaFactor) })
}
