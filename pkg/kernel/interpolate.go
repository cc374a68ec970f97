package kernel

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// fittable is the subset of the gonum interpolators used here.
type fittable interface {
	Fit(xs, ys []float64) error
	Predict(x float64) float64
}

// resampler is the shared body of the interpolation kernels. Output samples
// outside the input hull are always flagged. An output sample is also
// flagged when any input inside its stencil is flagged.
type resampler struct {
	name string
	// fit builds the value interpolator; nil means nearest neighbour.
	fit func() fittable
	// minFit is the sample count below which linear is used instead.
	minFit int
	// reach is the stencil half-width used to propagate flags.
	reach int
}

// NewNearest copies the nearest input sample.
func NewNearest() Kernel {
	return &resampler{name: "nearest", reach: 0}
}

// NewLinear interpolates linearly between the two bracketing samples.
func NewLinear() Kernel {
	return &resampler{name: "linear", fit: func() fittable { return &interp.PiecewiseLinear{} }, minFit: 2, reach: 1}
}

// NewCubic uses a local (Akima) cubic through the neighbouring samples.
func NewCubic() Kernel {
	return &resampler{name: "cubic", fit: func() fittable { return &interp.AkimaSpline{} }, minFit: 4, reach: 2}
}

// NewSpline uses a natural cubic spline through all samples. Every output
// value depends on every input sample, flagged or not, but flags propagate
// from the bracketing pair only, as for linear.
func NewSpline() Kernel {
	return &resampler{name: "spline", fit: func() fittable { return &interp.NaturalCubic{} }, minFit: 4, reach: 1}
}

func (r *resampler) Name() string { return r.name }

func (r *resampler) Channels(_, out []float64) (int, error) { return len(out), nil }

func (r *resampler) Transform(ax Axis, in []complex128, inFlags []bool, out []complex128, outFlags []bool) error {
	if err := checkLine(ax, in, inFlags, out, outFlags, len(ax.Out)); err != nil {
		return err
	}
	n := len(in)
	if n == 1 {
		broadcast(in[0], out, outFlags)
		return nil
	}
	xs, re, im, flags, hasImag := ascending(ax.In, in, inFlags)
	for i := 1; i < n; i++ {
		if xs[i] <= xs[i-1] {
			return fmt.Errorf("kernel %s: input grid is not strictly monotonic at channel %d", r.name, i)
		}
	}
	lo, hi := xs[0], xs[n-1]
	tol := 1e-12 * math.Max(math.Abs(lo), math.Abs(hi))

	var fre, fim fittable
	if r.fit != nil {
		newFit := r.fit
		if n < r.minFit {
			newFit = func() fittable { return &interp.PiecewiseLinear{} }
		}
		fre = newFit()
		if err := fre.Fit(xs, re); err != nil {
			return fmt.Errorf("kernel %s: %w", r.name, err)
		}
		if hasImag {
			fim = newFit()
			if err := fim.Fit(xs, im); err != nil {
				return fmt.Errorf("kernel %s: %w", r.name, err)
			}
		}
	}

	for k, x := range ax.Out {
		if x < lo-tol || x > hi+tol {
			outFlags[k] = true
			out[k] = 0
			continue
		}
		i := bracket(xs, x)
		if r.fit == nil {
			j := i
			if i+1 < n && xs[i+1]-x < x-xs[i] {
				j = i + 1
			}
			out[k] = complex(re[j], im[j])
			outFlags[k] = flags[j]
			continue
		}
		v := complex(fre.Predict(x), 0)
		if fim != nil {
			v = complex(real(v), fim.Predict(x))
		}
		out[k] = v
		outFlags[k] = stencilFlagged(xs, flags, x, i, r.reach)
	}
	return nil
}

// ascending splits a line into real and imaginary parts ordered by
// increasing frequency.
func ascending(grid []float64, in []complex128, inFlags []bool) (xs, re, im []float64, flags []bool, hasImag bool) {
	n := len(grid)
	xs, re, im, flags = make([]float64, n), make([]float64, n), make([]float64, n), make([]bool, n)
	rev := grid[n-1] < grid[0]
	for i := 0; i < n; i++ {
		src := i
		if rev {
			src = n - 1 - i
		}
		xs[i] = grid[src]
		re[i] = real(in[src])
		im[i] = imag(in[src])
		flags[i] = inFlags[src]
		if im[i] != 0 {
			hasImag = true
		}
	}
	return xs, re, im, flags, hasImag
}

// bracket returns i such that xs[i] <= x <= xs[i+1], clamped to [0, n-2].
func bracket(xs []float64, x float64) int {
	i := sort.SearchFloat64s(xs, x) - 1
	if i < 0 {
		i = 0
	}
	if i > len(xs)-2 {
		i = len(xs) - 2
	}
	return i
}

// stencilFlagged ORs the flags of the samples that contribute to x. A
// sample hit exactly contributes alone.
func stencilFlagged(xs []float64, flags []bool, x float64, i, reach int) bool {
	if x == xs[i] {
		return flags[i]
	}
	if x == xs[i+1] {
		return flags[i+1]
	}
	from, to := i-reach+1, i+reach
	if from < 0 {
		from = 0
	}
	if to > len(xs)-1 {
		to = len(xs) - 1
	}
	for j := from; j <= to; j++ {
		if flags[j] {
			return true
		}
	}
	return false
}
