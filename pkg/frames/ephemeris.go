package frames

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"
)

// VelocitySample is one tabulated radial velocity.
type VelocitySample struct {
	Time  time.Time `json:"time" toml:"time" yaml:"time"`
	Value float64   `json:"velocity" toml:"velocity" yaml:"velocity"` // m/s
}

// FieldEphemeris holds the radial-velocity track of one field. An entry
// without samples has no radial-velocity measure.
type FieldEphemeris struct {
	Ref     Frame            `json:"ref" toml:"ref" yaml:"ref"`
	Samples []VelocitySample `json:"samples" toml:"samples" yaml:"samples"`
}

// EphemerisTable maps field ids to their ephemerides.
type EphemerisTable map[int]FieldEphemeris

// RadialVelocity returns the field's radial velocity at t, interpolated
// linearly between samples and held constant beyond the ends. ok is false
// when the field has no radial-velocity measure.
func (et EphemerisTable) RadialVelocity(field int, t time.Time) (RadialVelocity, bool, error) {
	fe, found := et[field]
	if !found || len(fe.Samples) == 0 {
		return RadialVelocity{}, false, nil
	}
	ref := fe.Ref
	if ref == Native {
		ref = GEO
	}
	if len(fe.Samples) == 1 {
		return RadialVelocity{Value: fe.Samples[0].Value, Ref: ref}, true, nil
	}
	samples := make([]VelocitySample, len(fe.Samples))
	copy(samples, fe.Samples)
	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = float64(s.Time.UnixNano()) / 1e9
		ys[i] = s.Value
		if i > 0 && xs[i] <= xs[i-1] {
			return RadialVelocity{}, false, fmt.Errorf("ephemeris for field %d has duplicate sample times", field)
		}
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return RadialVelocity{}, false, err
	}
	return RadialVelocity{Value: pl.Predict(float64(t.UnixNano()) / 1e9), Ref: ref}, true, nil
}
