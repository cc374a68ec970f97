package frames

import (
	"fmt"
	"time"

	"github.com/wdm0006/regrid/pkg/errs"
)

// VelocityModel gives the radial velocity (m/s, positive receding) of a
// frame's rest point relative to the topocentric observer along a direction.
type VelocityModel interface {
	FrameVelocity(f Frame, t time.Time, dir Direction, pos Position) (float64, error)
}

// VelocityTable is a static VelocityModel. TOPO is always zero.
type VelocityTable map[Frame]float64

// FrameVelocity implements VelocityModel.
func (vt VelocityTable) FrameVelocity(f Frame, _ time.Time, _ Direction, _ Position) (float64, error) {
	if f == TOPO {
		return 0, nil
	}
	v, ok := vt[f]
	if !ok {
		return 0, fmt.Errorf("no velocity for frame %s", f)
	}
	return v, nil
}

// RadialVelocity is a source's measured radial velocity.
type RadialVelocity struct {
	Value float64 // m/s, positive receding
	Ref   Frame
}

// Converter shifts grids between frames with a first-order doppler factor.
type Converter struct {
	model VelocityModel
}

// NewConverter returns a Converter backed by model.
func NewConverter(model VelocityModel) *Converter {
	if model == nil {
		model = VelocityTable{}
	}
	return &Converter{model: model}
}

// ConvertFrame returns g expressed in frame to. Identical frames return a
// copy. SOURCE and REST cannot be reached geometrically.
func (c *Converter) ConvertFrame(g Grid, from, to Frame, t time.Time, dir Direction, pos Position) (Grid, error) {
	if from == to || to == Native {
		return g.Clone(), nil
	}
	for _, f := range []Frame{from, to} {
		if f == SOURCE || f == REST {
			return Grid{}, errs.FrameConversion(string(f), "frame needs an ephemeris, not a geometric conversion")
		}
		if _, ok := known[f]; !ok {
			return Grid{}, errs.FrameConversion(string(f), "unsupported frame name")
		}
	}
	vFrom, err := c.model.FrameVelocity(from, t, dir, pos)
	if err != nil {
		return Grid{}, errs.FrameConversion(string(from), "velocity model failed").WithCause(err)
	}
	vTo, err := c.model.FrameVelocity(to, t, dir, pos)
	if err != nil {
		return Grid{}, errs.FrameConversion(string(to), "velocity model failed").WithCause(err)
	}
	return g.Scaled(1 - (vTo-vFrom)/SpeedOfLight), nil
}

// ApplyRadialVelocity moves a geocentric grid into the source frame. The
// measure must be geocentric.
func (c *Converter) ApplyRadialVelocity(g Grid, rv RadialVelocity) (Grid, error) {
	if rv.Ref != GEO {
		return Grid{}, errs.FrameConversion(string(SOURCE),
			fmt.Sprintf("radial velocity must be referenced to %s, got %s", GEO, rv.Ref.String()))
	}
	return g.Scaled(1 + rv.Value/SpeedOfLight), nil
}
