package regrid

import (
	"fmt"
	"time"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
)

// MemorySource serves buffers held in memory, grouped into chunks.
type MemorySource struct {
	Frame  frames.Frame
	Grids  map[int]frames.Grid
	Chunks [][]Buffer

	started    bool
	chunk, sub int
}

// NewMemorySource returns a source over chunks with one grid per partition.
func NewMemorySource(frame frames.Frame, grids map[int]frames.Grid, chunks ...[]Buffer) *MemorySource {
	return &MemorySource{Frame: frame, Grids: grids, Chunks: chunks}
}

func (s *MemorySource) OriginChunk() error {
	s.started, s.chunk, s.sub = true, 0, 0
	return nil
}

func (s *MemorySource) MoreChunks() bool { return s.started && s.chunk < len(s.Chunks) }

func (s *MemorySource) NextChunk() error {
	if !s.started {
		return errs.ErrNotPositioned
	}
	s.chunk++
	s.sub = 0
	return nil
}

func (s *MemorySource) Origin() error {
	if !s.started {
		return errs.ErrNotPositioned
	}
	s.sub = 0
	return nil
}

func (s *MemorySource) More() bool {
	return s.MoreChunks() && s.sub < len(s.Chunks[s.chunk])
}

func (s *MemorySource) Next() error {
	if !s.More() {
		return errs.ErrNotPositioned
	}
	s.sub++
	return nil
}

func (s *MemorySource) CurrentBuffer() (Buffer, error) {
	if !s.More() {
		return nil, errs.ErrNotPositioned
	}
	return s.Chunks[s.chunk][s.sub], nil
}

func (s *MemorySource) NativeFrame() frames.Frame { return s.Frame }

func (s *MemorySource) FrequenciesFor(_ time.Time, f frames.Frame, partition int) (frames.Grid, error) {
	g, ok := s.Grids[partition]
	if !ok {
		return frames.Grid{}, fmt.Errorf("no grid for partition %d", partition)
	}
	if f != frames.Native && f != s.Frame {
		return frames.Grid{}, errs.FrameConversion(string(f), "memory source only serves its own frame").At(partition, errs.NoPartition)
	}
	return g.Clone(), nil
}
