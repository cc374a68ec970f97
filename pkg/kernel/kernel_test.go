package kernel_test

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/kernel"
)

var fourGHz = []float64{1e9, 2e9, 3e9, 4e9}

func line(vals ...float64) []complex128 {
	out := make([]complex128, len(vals))
	for i, v := range vals {
		out[i] = complex(v, 0)
	}
	return out
}

func run(t *testing.T, k kernel.Kernel, ax kernel.Axis, in []complex128, flags []bool) ([]complex128, []bool) {
	t.Helper()
	if flags == nil {
		flags = make([]bool, len(in))
	}
	n, err := k.Channels(ax.In, ax.Out)
	require.NoError(t, err)
	out := make([]complex128, n)
	outFlags := make([]bool, n)
	require.NoError(t, k.Transform(ax, in, flags, out, outFlags))
	return out, outFlags
}

func interpolators() []kernel.Kernel {
	return []kernel.Kernel{kernel.NewLinear(), kernel.NewCubic(), kernel.NewSpline()}
}

func TestInterpolatorsReproduceLinearData(t *testing.T) {
	ax := kernel.Axis{In: fourGHz, Out: []float64{1.5e9, 3.5e9}}
	for _, k := range interpolators() {
		out, flags := run(t, k, ax, line(10, 20, 30, 40), nil)
		assert.InDelta(t, 15, real(out[0]), 1e-6, k.Name())
		assert.InDelta(t, 35, real(out[1]), 1e-6, k.Name())
		assert.Equal(t, []bool{false, false}, flags, k.Name())
	}
}

func TestLinearComplexAndDescending(t *testing.T) {
	k := kernel.NewLinear()
	ax := kernel.Axis{In: []float64{4e9, 3e9, 2e9, 1e9}, Out: []float64{2.5e9}}
	in := []complex128{complex(40, -4), complex(30, -3), complex(20, -2), complex(10, -1)}
	out, _ := run(t, k, ax, in, nil)
	assert.InDelta(t, 25, real(out[0]), 1e-9)
	assert.InDelta(t, -2.5, imag(out[0]), 1e-9)
}

func TestNearest(t *testing.T) {
	ax := kernel.Axis{In: fourGHz, Out: []float64{1.4e9, 1.6e9, 4e9}}
	out, flags := run(t, kernel.NewNearest(), ax, line(10, 20, 30, 40), []bool{false, true, false, false})
	assert.Equal(t, line(10, 20, 40), out)
	assert.Equal(t, []bool{false, true, false}, flags)
}

func TestOutsideHullIsFlagged(t *testing.T) {
	ax := kernel.Axis{In: fourGHz, Out: []float64{0.5e9, 2e9, 4.5e9}}
	for _, k := range append(interpolators(), kernel.NewNearest()) {
		_, flags := run(t, k, ax, line(10, 20, 30, 40), nil)
		assert.Equal(t, []bool{true, false, true}, flags, k.Name())
	}
}

func TestFlagStencils(t *testing.T) {
	ax := kernel.Axis{In: fourGHz, Out: []float64{1.5e9, 3.5e9}}
	inFlags := []bool{false, true, false, false}

	_, flags := run(t, kernel.NewLinear(), ax, line(10, 20, 30, 40), inFlags)
	assert.Equal(t, []bool{true, false}, flags)

	_, flags = run(t, kernel.NewCubic(), ax, line(10, 20, 30, 40), inFlags)
	assert.Equal(t, []bool{true, true}, flags)

	// an exact hit only depends on the sample it lands on
	ax.Out = []float64{3e9}
	_, flags = run(t, kernel.NewCubic(), ax, line(10, 20, 30, 40), inFlags)
	assert.Equal(t, []bool{false}, flags)
}

func TestSplineFlagsFollowBracketingPair(t *testing.T) {
	grid := []float64{1e9, 2e9, 3e9, 4e9, 5e9, 6e9}
	ax := kernel.Axis{In: grid, Out: []float64{1.5e9, 5.5e9}}
	inFlags := []bool{false, false, false, false, true, false}
	in := line(1, 4, 9, 16, 1e6, 36)

	out, flags := run(t, kernel.NewSpline(), ax, in, inFlags)
	assert.Equal(t, []bool{false, true}, flags)

	// the flagged outlier still moves the far unflagged value
	clean, _ := run(t, kernel.NewSpline(), ax, line(1, 4, 9, 16, 25, 36), nil)
	assert.NotEqual(t, real(clean[0]), real(out[0]))
}

func TestFewSamplesFallBackToLinear(t *testing.T) {
	ax := kernel.Axis{In: []float64{1e9, 2e9}, Out: []float64{1.25e9}}
	for _, k := range interpolators() {
		out, _ := run(t, k, ax, line(0, 8), nil)
		assert.InDelta(t, 2, real(out[0]), 1e-9, k.Name())
	}
}

func TestSingleChannelBroadcasts(t *testing.T) {
	ax := kernel.Axis{In: []float64{1e9}, Out: []float64{0.5e9, 1e9, 7e9}}
	for _, k := range append(interpolators(), kernel.NewNearest()) {
		out, flags := run(t, k, ax, line(3), []bool{true})
		assert.Equal(t, line(3, 3, 3), out, k.Name())
		assert.Equal(t, []bool{false, false, false}, flags, k.Name())
	}
	out, flags := run(t, kernel.NewFFTShift(), kernel.Axis{In: []float64{1e9}, Out: []float64{1e9}, Shift: 0.3}, line(3), []bool{true})
	assert.Equal(t, line(3), out)
	assert.Equal(t, []bool{false}, flags)
}

func TestFFTShiftIdentity(t *testing.T) {
	ax := kernel.Axis{In: fourGHz, Out: fourGHz}
	in := []complex128{1, complex(2, 1), 3, complex(0, -4)}
	out, flags := run(t, kernel.NewFFTShift(), ax, in, []bool{false, true, false, false})
	for i := range in {
		assert.InDelta(t, 0, cmplx.Abs(out[i]-in[i]), 1e-6)
	}
	assert.Equal(t, []bool{false, true, false, false}, flags)
}

func TestFFTShiftWholeChannel(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	for _, tc := range []struct {
		name    string
		grid    []float64
		want    int
		wrapped int
	}{
		{"ascending", up, 3, 0},
		{"descending", down, 1, 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			// The adjusted input sits one channel above the output grid,
			// which is a shift of minus one channel.
			in := line(0, 0, 1, 0, 0, 0, 0, 0)
			out, flags := run(t, kernel.NewFFTShift(), kernel.Axis{In: tc.grid, Out: tc.grid, Shift: -1.0 / 8}, in, nil)
			for i := range out {
				want := 0.0
				if i == tc.want {
					want = 1
				}
				assert.InDelta(t, want, real(out[i]), 1e-9, "channel %d", i)
				assert.InDelta(t, 0, imag(out[i]), 1e-9, "channel %d", i)
			}
			assert.True(t, flags[tc.wrapped], "wrapped channel must be flagged")
			assert.False(t, flags[tc.want])
		})
	}
}

func TestFFTShiftAgreesWithLinear(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	for name, grid := range map[string][]float64{"ascending": up, "descending": down} {
		t.Run(name, func(t *testing.T) {
			adjusted := make([]float64, len(grid))
			for i, f := range grid {
				adjusted[i] = f + 1
			}
			in := make([]complex128, len(grid))
			for i := range in {
				in[i] = complex(math.Cos(2*math.Pi*float64(i)/8), 0)
			}
			lin, linFlags := run(t, kernel.NewLinear(), kernel.Axis{In: adjusted, Out: grid}, in, nil)
			fft, fftFlags := run(t, kernel.NewFFTShift(), kernel.Axis{In: adjusted, Out: grid, Shift: -1.0 / 8}, in, nil)
			assert.Equal(t, linFlags, fftFlags)
			for i := range lin {
				if linFlags[i] {
					continue
				}
				assert.InDelta(t, real(lin[i]), real(fft[i]), 1e-9, "channel %d", i)
			}
		})
	}
}

func TestFFTShiftRoundTrip(t *testing.T) {
	k := kernel.NewFFTShift()
	grid := []float64{1, 2, 3, 4, 5, 6}
	in := line(1, 4, 9, 16, 25, 36)
	shifted, _ := run(t, k, kernel.Axis{In: grid, Out: grid, Shift: 0.137}, in, nil)
	back, _ := run(t, k, kernel.Axis{In: grid, Out: grid, Shift: -0.137}, shifted, nil)
	for i := range in {
		assert.InDelta(t, 0, cmplx.Abs(back[i]-in[i]), 1e-9)
	}
}

func TestFFTShiftRejectsLengthChange(t *testing.T) {
	_, err := kernel.NewFFTShift().Channels(fourGHz, fourGHz[:2])
	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce), err)
	assert.Equal(t, "interpolation", ce.Parameter)
}

func TestParse(t *testing.T) {
	for name, want := range map[string]kernel.Selection{
		"":         kernel.Linear,
		"Nearest":  kernel.Nearest,
		" cubic ":  kernel.Cubic,
		"spline":   kernel.Spline,
		"FFTSHIFT": kernel.FFTShift,
		"fft":      kernel.FFTShift,
	} {
		got, err := kernel.Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
		k, err := kernel.New(got)
		require.NoError(t, err)
		assert.Equal(t, want.String(), k.Name())
	}

	_, err := kernel.Parse("bogus")
	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "bogus", ce.Value)
}
