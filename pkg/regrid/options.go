package regrid

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/wdm0006/regrid/pkg/frames"
)

// Solver builds an output grid and the weight scale for one partition.
type Solver interface {
	SolveGrid(spec frames.GridSpec, in frames.Grid, phaseCenter frames.Direction, t time.Time, pos frames.Position) (frames.Grid, float64, error)
}

// FrameConverter moves grids between reference frames.
type FrameConverter interface {
	ConvertFrame(g frames.Grid, from, to frames.Frame, t time.Time, dir frames.Direction, pos frames.Position) (frames.Grid, error)
	ApplyRadialVelocity(g frames.Grid, rv frames.RadialVelocity) (frames.Grid, error)
}

// Ephemeris looks up a field's radial velocity. ok is false when the field
// has no radial-velocity measure.
type Ephemeris interface {
	RadialVelocity(field int, t time.Time) (rv frames.RadialVelocity, ok bool, err error)
}

// FieldTable resolves field ids to directions.
type FieldTable interface {
	Direction(field int) (frames.Direction, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSolver replaces the default frames.GridSolver.
func WithSolver(s Solver) Option { return func(p *Pipeline) { p.solver = s } }

// WithFrameConverter sets the converter used for output frames.
func WithFrameConverter(c FrameConverter) Option { return func(p *Pipeline) { p.conv = c } }

// WithEphemeris sets the radial-velocity source for the SOURCE frame.
func WithEphemeris(e Ephemeris) Option { return func(p *Pipeline) { p.eph = e } }

// WithFieldTable resolves numeric phase centers.
func WithFieldTable(ft FieldTable) Option { return func(p *Pipeline) { p.fields = ft } }

// WithObservatory sets the observatory position used for frame conversion.
func WithObservatory(pos frames.Position) Option { return func(p *Pipeline) { p.pos = pos } }

// WithWorkers spreads the lines of each cube over n goroutines.
func WithWorkers(n int) Option { return func(p *Pipeline) { p.engine = NewEngine(n) } }

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option { return func(p *Pipeline) { p.log = l } }
