package frames

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wdm0006/regrid/pkg/errs"
)

// Mode selects how Start and Width are interpreted.
type Mode string

const (
	ModeChannel   Mode = "channel"
	ModeFrequency Mode = "frequency"
	ModeVelocity  Mode = "velocity"
)

// ParseMode accepts channel, frequency or velocity; empty means channel.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeChannel:
		return ModeChannel, nil
	case ModeFrequency:
		return ModeFrequency, nil
	case ModeVelocity:
		return ModeVelocity, nil
	}
	return "", errs.Configuration("mode", s, "want channel, frequency or velocity")
}

// GridSpec is the output channelization request handed to a solver.
type GridSpec struct {
	Mode          Mode
	NChan         int // <= 0 means as many as fit
	Start         string
	Width         string
	RestFrequency string
	VelocityType  VelocityType
	InFrame       Frame
	OutFrame      Frame
}

// parsed holds the numeric form of a GridSpec.
type parsed struct {
	start, width, rest *Quantity
}

// Validate parses every field that can be checked without an input grid.
func (s GridSpec) Validate() error {
	_, err := s.parse()
	return err
}

func (s GridSpec) parse() (parsed, error) {
	var p parsed
	want := map[Mode]Unit{ModeChannel: Dimensionless, ModeFrequency: Hertz, ModeVelocity: MetersPerSecond}[s.Mode]
	if _, ok := map[Mode]bool{ModeChannel: true, ModeFrequency: true, ModeVelocity: true}[s.Mode]; !ok {
		return p, errs.Configuration("mode", string(s.Mode), "want channel, frequency or velocity")
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **Quantity
	}{{"start", s.Start, &p.start}, {"width", s.Width, &p.width}} {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		q, err := ParseQuantity(f.raw)
		if err != nil {
			return p, errs.Configuration(f.name, f.raw, "malformed grid specification").WithCause(err)
		}
		// frequency mode takes bare numbers as Hz
		if q.Unit == Dimensionless && s.Mode == ModeFrequency {
			q.Unit = Hertz
		}
		if q.Unit != want {
			reason := "channel mode needs a plain channel number"
			if want != Dimensionless {
				reason = fmt.Sprintf("%s mode needs a value in %s", s.Mode, want)
			}
			return p, errs.Configuration(f.name, f.raw, reason)
		}
		if s.Mode == ModeChannel {
			if _, err := q.Channel(); err != nil {
				return p, errs.Configuration(f.name, f.raw, "malformed grid specification").WithCause(err)
			}
		}
		if f.name == "width" && q.Value == 0 {
			return p, errs.Configuration(f.name, f.raw, "width must be non-zero")
		}
		*f.dst = &q
	}
	if s.Mode == ModeChannel && p.width != nil && p.width.Value < 1 {
		return p, errs.Configuration("width", s.Width, "channel width must be at least 1")
	}
	if strings.TrimSpace(s.RestFrequency) != "" {
		q, err := ParseQuantity(s.RestFrequency)
		if err == nil && q.Unit == Dimensionless {
			q.Unit = Hertz
		}
		if err != nil || q.Unit != Hertz || q.Value <= 0 {
			return p, errs.Configuration("restFrequency", s.RestFrequency, "want a positive frequency").WithCause(err)
		}
		p.rest = &q
	}
	if s.Mode == ModeVelocity && p.rest == nil {
		return p, errs.Configuration("restFrequency", s.RestFrequency, "velocity mode needs a rest frequency")
	}
	return p, nil
}

type frameConverter interface {
	ConvertFrame(g Grid, from, to Frame, t time.Time, dir Direction, pos Position) (Grid, error)
}

// GridSolver builds output grids and weight scales from a GridSpec.
type GridSolver struct {
	conv frameConverter
}

// NewGridSolver returns a solver. When conv is nil the input grid is used
// in its native frame.
func NewGridSolver(conv frameConverter) *GridSolver {
	return &GridSolver{conv: conv}
}

// SolveGrid implements the pipeline's solver contract. The weight scale is
// the ratio of mean output to mean input channel width.
func (s *GridSolver) SolveGrid(spec GridSpec, in Grid, phaseCenter Direction, t time.Time, pos Position) (Grid, float64, error) {
	if err := in.Validate(); err != nil {
		return Grid{}, 0, errs.Computation(errs.NoPartition, "input grid is invalid", err)
	}
	p, err := spec.parse()
	if err != nil {
		return Grid{}, 0, err
	}
	src := in
	target := spec.OutFrame.Geometric()
	if s.conv != nil && target != Native && target != spec.InFrame {
		if src, err = s.conv.ConvertFrame(in, spec.InFrame, target, t, phaseCenter, pos); err != nil {
			return Grid{}, 0, err
		}
	}
	var out Grid
	switch spec.Mode {
	case ModeChannel:
		out = channelGrid(src, spec.NChan, p)
	case ModeFrequency:
		out = frequencyGrid(src, spec.NChan, p)
	case ModeVelocity:
		out = velocityGrid(src, spec.NChan, spec.VelocityType, p)
	}
	if err := out.Validate(); err != nil {
		return Grid{}, 0, errs.Computation(errs.NoPartition, "solver produced a degenerate output grid", err)
	}
	inWidth := src.MeanWidth()
	if inWidth == 0 {
		return Grid{}, 0, errs.Computation(errs.NoPartition, "input grid has zero channel width", nil)
	}
	return out, out.MeanWidth() / inWidth, nil
}

func channelGrid(src Grid, nchan int, p parsed) Grid {
	start, width := 0, 1
	if p.start != nil {
		start = int(p.start.Value)
	}
	if p.width != nil {
		width = int(p.width.Value)
	}
	avail := 0
	if start < src.Len() {
		avail = (src.Len() - start) / width
	}
	if nchan <= 0 || nchan > avail {
		nchan = avail
	}
	out := Grid{Freq: make([]float64, nchan), Width: make([]float64, nchan)}
	for k := 0; k < nchan; k++ {
		lo := start + k*width
		var sum, w float64
		for c := lo; c < lo+width; c++ {
			sum += src.Freq[c]
			w += math.Abs(src.Width[c])
		}
		out.Freq[k] = sum / float64(width)
		out.Width[k] = w
	}
	return out
}

func frequencyGrid(src Grid, nchan int, p parsed) Grid {
	n := src.Len()
	start := src.Freq[0]
	if p.start != nil {
		start = p.start.Value
	}
	step := math.Abs(src.Width[0])
	if n > 1 {
		step = math.Abs(src.Freq[1] - src.Freq[0])
	}
	if p.width != nil {
		step = math.Abs(p.width.Value)
	}
	if !src.Ascending() {
		step = -step
	}
	if nchan <= 0 {
		nchan = fitCount(start, src.Freq[n-1], step)
	}
	return UniformGrid(start, step, nchan)
}

func velocityGrid(src Grid, nchan int, vt VelocityType, p parsed) Grid {
	rest := p.rest.Value
	n := src.Len()
	first, last := vt.Velocity(src.Freq[0], rest), vt.Velocity(src.Freq[n-1], rest)
	start := first
	if p.start != nil {
		start = p.start.Value
	}
	var step float64
	if n > 1 {
		step = (last - first) / float64(n-1)
	} else {
		step = vt.Velocity(src.Freq[0]-src.Width[0]/2, rest) - vt.Velocity(src.Freq[0]+src.Width[0]/2, rest)
	}
	if p.width != nil {
		step = p.width.Value
	}
	if nchan <= 0 {
		nchan = fitCount(start, last, step)
	}
	out := Grid{Freq: make([]float64, nchan), Width: make([]float64, nchan)}
	for k := 0; k < nchan; k++ {
		v := start + float64(k)*step
		out.Freq[k] = vt.Frequency(v, rest)
		out.Width[k] = math.Abs(vt.Frequency(v-step/2, rest) - vt.Frequency(v+step/2, rest))
	}
	return out
}

// fitCount is the number of steps from start that stay on or before end.
func fitCount(start, end, step float64) int {
	if step == 0 {
		return 1
	}
	n := int(math.Floor((end-start)/step+1e-9)) + 1
	if n < 1 {
		n = 1
	}
	return n
}
