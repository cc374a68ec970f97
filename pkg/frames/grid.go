package frames

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Grid is an ordered channelization: channel centers and widths in Hz.
type Grid struct {
	Freq  []float64
	Width []float64
}

// NewGrid builds a Grid from centers and widths. A nil width slice gives
// every channel the spacing of its neighbours.
func NewGrid(freq, width []float64) Grid {
	if width == nil {
		width = make([]float64, len(freq))
		for i := range freq {
			switch {
			case len(freq) < 2:
				width[i] = 0
			case i == len(freq)-1:
				width[i] = math.Abs(freq[i] - freq[i-1])
			default:
				width[i] = math.Abs(freq[i+1] - freq[i])
			}
		}
	}
	return Grid{Freq: freq, Width: width}
}

// UniformGrid returns n channels starting at center start, stepping by step.
func UniformGrid(start, step float64, n int) Grid {
	g := Grid{Freq: make([]float64, n), Width: make([]float64, n)}
	for i := 0; i < n; i++ {
		g.Freq[i] = start + float64(i)*step
		g.Width[i] = math.Abs(step)
	}
	return g
}

// Len is the number of channels.
func (g Grid) Len() int { return len(g.Freq) }

// Validate checks that the grid is non-empty, finite and strictly monotonic.
func (g Grid) Validate() error {
	n := len(g.Freq)
	if n == 0 {
		return errors.New("grid is empty")
	}
	if len(g.Width) != n {
		return fmt.Errorf("grid has %d centers but %d widths", n, len(g.Width))
	}
	if floats.HasNaN(g.Freq) || floats.HasNaN(g.Width) {
		return errors.New("grid contains NaN")
	}
	for i, f := range g.Freq {
		if math.IsInf(f, 0) || math.IsInf(g.Width[i], 0) {
			return errors.New("grid contains Inf")
		}
	}
	if n == 1 {
		return nil
	}
	asc := g.Freq[1] > g.Freq[0]
	for i := 1; i < n; i++ {
		d := g.Freq[i] - g.Freq[i-1]
		if d == 0 || (d > 0) != asc {
			return fmt.Errorf("grid is not strictly monotonic at channel %d", i)
		}
	}
	return nil
}

// Ascending reports whether frequencies increase with channel index.
func (g Grid) Ascending() bool {
	return len(g.Freq) < 2 || g.Freq[1] > g.Freq[0]
}

// Center is the midpoint between the first and last channel centers.
func (g Grid) Center() float64 {
	if len(g.Freq) == 0 {
		return 0
	}
	return (g.Freq[0] + g.Freq[len(g.Freq)-1]) / 2
}

// Bandwidth is the total span covered by the grid, edge to edge.
func (g Grid) Bandwidth() float64 {
	n := len(g.Freq)
	if n == 0 {
		return 0
	}
	return math.Abs(g.Freq[n-1]-g.Freq[0]) + (math.Abs(g.Width[0])+math.Abs(g.Width[n-1]))/2
}

// MeanWidth is the mean absolute channel width.
func (g Grid) MeanWidth() float64 {
	if len(g.Width) == 0 {
		return 0
	}
	abs := make([]float64, len(g.Width))
	for i, w := range g.Width {
		abs[i] = math.Abs(w)
	}
	return floats.Sum(abs) / float64(len(abs))
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	out := Grid{Freq: make([]float64, len(g.Freq)), Width: make([]float64, len(g.Width))}
	copy(out.Freq, g.Freq)
	copy(out.Width, g.Width)
	return out
}

// Scaled returns a copy with every center and width multiplied by factor.
// Widths stay positive.
func (g Grid) Scaled(factor float64) Grid {
	out := g.Clone()
	floats.Scale(factor, out.Freq)
	floats.Scale(math.Abs(factor), out.Width)
	return out
}
