package regrid

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/wdm0006/regrid/pkg/frames"
)

// TransformState is the per-partition regridding recipe. It is built once
// and never changes.
type TransformState struct {
	Input          frames.Grid
	Output         frames.Grid
	WeightFactor   float64
	SigmaFactor    float64
	OutputChannels int
}

// RowKey identifies the rows that share one frame-adjusted grid.
type RowKey uint64

// NewRowKey fingerprints (partition, field, time).
func NewRowKey(partition, field int, t time.Time) RowKey {
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(int64(partition)))
	binary.LittleEndian.PutUint64(b[8:], uint64(int64(field)))
	binary.LittleEndian.PutUint64(b[16:], uint64(t.UnixNano()))
	return RowKey(xxhash.Sum64(b[:]))
}

// RowContext is the input grid as seen in the output frame for one row key,
// with the band-fraction shift used by the FFT kernel.
type RowContext struct {
	Key      RowKey
	Adjusted frames.Grid
	Shift    float64
}

// sigmaFactor is the sigma scale matching a weight scale.
func sigmaFactor(weightFactor float64) float64 {
	return 1 / math.Sqrt(weightFactor)
}

// fftShift is the output-band fraction the adjusted grid must move by to
// line up with the output grid.
func fftShift(adjusted, output frames.Grid) float64 {
	bw := output.Bandwidth()
	if bw == 0 {
		return 0
	}
	return -(adjusted.Center() - output.Center()) / bw
}
