// Package kernel implements the 1-D channel resamplers used by the
// regridding pipeline.
//
// Every kernel works on one line of channels at a time and is safe for
// concurrent use, so the engine can spread lines across goroutines.
package kernel

import (
	"fmt"
	"strings"

	"github.com/wdm0006/regrid/pkg/errs"
)

// Axis describes one resampling problem: the (frame adjusted) input channel
// centers, the output channel centers and, for FFTShift, the shift as a
// fraction of the band.
type Axis struct {
	In    []float64
	Out   []float64
	Shift float64
}

// Kernel resamples one line of channels.
type Kernel interface {
	Name() string
	// Channels returns the output channel count the kernel produces for
	// these grids, or an error if it cannot honour them.
	Channels(in, out []float64) (int, error)
	// Transform writes len(out) samples and flags. A flag is true for a bad
	// sample. Inputs are never modified.
	Transform(ax Axis, in []complex128, inFlags []bool, out []complex128, outFlags []bool) error
}

// Selection picks a kernel variant.
type Selection int

const (
	Nearest Selection = iota
	Linear
	Cubic
	Spline
	FFTShift
)

var selectionNames = map[Selection]string{
	Nearest:  "nearest",
	Linear:   "linear",
	Cubic:    "cubic",
	Spline:   "spline",
	FFTShift: "fftshift",
}

func (s Selection) String() string {
	if n, ok := selectionNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Selection(%d)", int(s))
}

// Parse resolves an interpolation name. Empty means linear.
func Parse(name string) (Selection, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return Linear, nil
	}
	if n == "fft" {
		return FFTShift, nil
	}
	for s, sn := range selectionNames {
		if sn == n {
			return s, nil
		}
	}
	return 0, errs.Configuration("interpolation", name, "want nearest, linear, cubic, spline or fftshift")
}

// New returns the kernel for a selection.
func New(s Selection) (Kernel, error) {
	switch s {
	case Nearest:
		return NewNearest(), nil
	case Linear:
		return NewLinear(), nil
	case Cubic:
		return NewCubic(), nil
	case Spline:
		return NewSpline(), nil
	case FFTShift:
		return NewFFTShift(), nil
	}
	return nil, errs.Configuration("interpolation", s.String(), "unknown kernel")
}

func checkLine(ax Axis, in []complex128, inFlags []bool, out []complex128, outFlags []bool, nOut int) error {
	if len(in) != len(ax.In) || len(inFlags) != len(in) {
		return fmt.Errorf("kernel: input line has %d samples, %d flags, %d channels", len(in), len(inFlags), len(ax.In))
	}
	if len(out) != nOut || len(outFlags) != nOut {
		return fmt.Errorf("kernel: output line has %d samples, %d flags, want %d", len(out), len(outFlags), nOut)
	}
	if len(in) == 0 {
		return fmt.Errorf("kernel: empty input line")
	}
	return nil
}

// broadcast fills the output with the single input sample, unflagged.
func broadcast(v complex128, out []complex128, outFlags []bool) {
	for k := range out {
		out[k] = v
		outFlags[k] = false
	}
}
