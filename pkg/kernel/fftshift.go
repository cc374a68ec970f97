package kernel

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/wdm0006/regrid/pkg/errs"
)

// fftPlan is a transform of one length together with its round-trip
// normalization. Plans carry scratch space and are not shared.
type fftPlan struct {
	fft   *fourier.CmplxFFT
	coeff []complex128
	norm  float64
}

func newPlan(n int) *fftPlan {
	p := &fftPlan{fft: fourier.NewCmplxFFT(n), coeff: make([]complex128, n)}
	impulse := make([]complex128, n)
	impulse[0] = 1
	c := p.fft.Coefficients(nil, impulse)
	back := p.fft.Sequence(nil, c)
	p.norm = real(back[0])
	if p.norm == 0 {
		p.norm = 1
	}
	return p
}

// fftShift applies a sub-channel shift by a linear phase ramp in the
// Fourier domain. Input and output grids must have the same length.
type fftShift struct {
	mu    sync.Mutex
	plans map[int]*sync.Pool
}

// NewFFTShift returns the Fourier-domain shift kernel.
func NewFFTShift() Kernel {
	return &fftShift{plans: map[int]*sync.Pool{}}
}

func (f *fftShift) Name() string { return "fftshift" }

func (f *fftShift) Channels(in, out []float64) (int, error) {
	if len(in) != len(out) {
		return 0, errs.Configuration("interpolation", "fftshift",
			fmt.Sprintf("fftshift keeps the channel count but the output grid has %d channels for %d inputs", len(out), len(in)))
	}
	return len(in), nil
}

func (f *fftShift) pool(n int) *sync.Pool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[n]
	if !ok {
		p = &sync.Pool{New: func() any { return newPlan(n) }}
		f.plans[n] = p
	}
	return p
}

func (f *fftShift) Transform(ax Axis, in []complex128, inFlags []bool, out []complex128, outFlags []bool) error {
	if err := checkLine(ax, in, inFlags, out, outFlags, len(in)); err != nil {
		return err
	}
	n := len(in)
	if n == 1 {
		broadcast(in[0], out, outFlags)
		return nil
	}
	if ax.Shift == 0 {
		copy(out, in)
		copy(outFlags, inFlags)
		return nil
	}

	pool := f.pool(n)
	plan := pool.Get().(*fftPlan)
	defer pool.Put(plan)

	// Shift is measured along increasing frequency; s is along increasing
	// channel index. A positive s reads from higher channels.
	s := ax.Shift
	if descending(ax.Out) {
		s = -s
	}

	coeff := plan.fft.Coefficients(plan.coeff, in)
	for j := range coeff {
		k := j
		if j > n/2 {
			k = j - n
		}
		coeff[j] *= cmplx.Exp(complex(0, 2*math.Pi*float64(k)*s))
	}
	plan.fft.Sequence(out, coeff)
	scale := complex(1/plan.norm, 0)
	for i := range out {
		out[i] *= scale
	}

	m := int(math.Round(s * float64(n)))
	for i := range outFlags {
		src := i + m
		outFlags[i] = src < 0 || src >= n || inFlags[src]
	}
	return nil
}

func descending(grid []float64) bool {
	return len(grid) > 1 && grid[len(grid)-1] < grid[0]
}
