// Package frames describes frequency grids and reference frames, and provides
// a reference grid solver and frame converter for the regridding pipeline.
//
// The physics here is deliberately simple: frame offsets come from a
// VelocityModel supplied by the caller, and conversions apply a first-order
// doppler factor. Pipelines only rely on the contracts.
package frames

import (
	"strings"

	"github.com/wdm0006/regrid/pkg/errs"
)

// Frame names a frequency reference frame.
type Frame string

// Native means "keep whatever frame the source reports".
const Native Frame = ""

const (
	TOPO    Frame = "TOPO"
	GEO     Frame = "GEO"
	BARY    Frame = "BARY"
	LSRK    Frame = "LSRK"
	LSRD    Frame = "LSRD"
	GALACTO Frame = "GALACTO"
	LGROUP  Frame = "LGROUP"
	CMB     Frame = "CMB"
	REST    Frame = "REST"
	// SOURCE is symbolic: a geocentric conversion followed by the source's
	// own radial-velocity correction from an ephemeris.
	SOURCE Frame = "SOURCE"
)

var known = map[Frame]struct{}{
	TOPO: {}, GEO: {}, BARY: {}, LSRK: {}, LSRD: {}, GALACTO: {}, LGROUP: {}, CMB: {}, REST: {}, SOURCE: {},
}

var aliases = map[string]Frame{
	"TOPOCENTRIC":    TOPO,
	"GEOCENTRIC":     GEO,
	"BARYCENTRIC":    BARY,
	"BARYCENTER":     BARY,
	"LSR":            LSRK,
	"GALACTOCENTRIC": GALACTO,
}

// ParseFrame resolves a frame name case-insensitively. The empty string maps
// to Native.
func ParseFrame(s string) (Frame, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return Native, nil
	}
	if f, ok := aliases[name]; ok {
		return f, nil
	}
	f := Frame(name)
	if _, ok := known[f]; !ok {
		return Native, errs.FrameConversion(s, "unsupported frame name")
	}
	return f, nil
}

// String returns the frame name, or "native" for Native.
func (f Frame) String() string {
	if f == Native {
		return "native"
	}
	return string(f)
}

// Geometric returns the frame used for the geometric part of a conversion.
// SOURCE converts through GEO.
func (f Frame) Geometric() Frame {
	if f == SOURCE {
		return GEO
	}
	return f
}
