// Package profile summarizes the buffers flowing into a sink.
package profile

import (
	"errors"
	"fmt"
	"math/cmplx"
	"sort"
	"strings"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// NumStats accumulates unflagged samples of one quantity. Visibilities are
// profiled by amplitude.
type NumStats struct {
	Count   int     `json:"count"`
	Flagged int     `json:"flagged"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Sum     float64 `json:"sum"`
}

func (s *NumStats) add(v float64, flagged bool) {
	if flagged {
		s.Flagged++
		return
	}
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
}

// Mean is zero when nothing was counted.
func (s *NumStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

type BoolStats struct {
	Count int `json:"count"`
	True  int `json:"true"`
	False int `json:"false"`
}

func (s *BoolStats) add(v bool) {
	s.Count++
	if v {
		s.True++
	} else {
		s.False++
	}
}

// PartitionProfile is the summary of one spectral window.
type PartitionProfile struct {
	Partition  int                  `json:"spw"`
	Buffers    int                  `json:"buffers"`
	Rows       int                  `json:"rows"`
	Channels   int                  `json:"channels"`
	Flags      BoolStats            `json:"flags"`
	FlagRow    BoolStats            `json:"flag_row"`
	Quantities map[string]*NumStats `json:"quantities"`
}

// Collector is a regrid sink that profiles each buffer before handing it to
// the next sink. A nil next sink only profiles.
type Collector struct {
	next  regrid.Sink
	parts map[int]*PartitionProfile
}

func NewCollector(next regrid.Sink) *Collector {
	return &Collector{next: next, parts: map[int]*PartitionProfile{}}
}

func (c *Collector) BeginChunk(n int) error {
	if cs, ok := c.next.(regrid.ChunkSink); ok {
		return cs.BeginChunk(n)
	}
	return nil
}

func (c *Collector) Write(buf regrid.Buffer) error {
	if err := c.consume(buf); err != nil {
		return err
	}
	if c.next == nil {
		return nil
	}
	return c.next.Write(buf)
}

func (c *Collector) Close() error {
	if c.next == nil {
		return nil
	}
	return c.next.Close()
}

func (c *Collector) consume(buf regrid.Buffer) error {
	meta := buf.Meta()
	pp := c.parts[meta.Partition]
	if pp == nil {
		pp = &PartitionProfile{Partition: meta.Partition, Quantities: map[string]*NumStats{}}
		c.parts[meta.Partition] = pp
	}
	pp.Buffers++
	pp.Rows += meta.NRow
	pp.Channels = meta.NChan

	flags, err := optional(buf.Flags())
	if err != nil {
		return err
	}
	if flags != nil {
		for _, f := range flags.Data {
			pp.Flags.add(f)
		}
	}
	rows, err := optional(buf.FlagRow())
	if err != nil {
		return err
	}
	for _, f := range rows {
		pp.FlagRow.add(f)
	}
	isFlagged := func(i int) bool { return flags != nil && flags.Data[i] }

	for _, kind := range []regrid.DataKind{regrid.Observed, regrid.Model, regrid.Corrected} {
		vis, err := optional(buf.Visibilities(kind))
		if err != nil {
			return err
		}
		if vis == nil {
			continue
		}
		st := pp.stats(kind.String())
		for i, v := range vis.Data {
			st.add(cmplx.Abs(v), isFlagged(i))
		}
	}
	for _, q := range []struct {
		name string
		get  func() (*regrid.Cube[float64], error)
	}{
		{regrid.ColumnFloat, buf.FloatData},
		{"weight_spectrum", buf.WeightSpectrum},
		{"sigma_spectrum", buf.SigmaSpectrum},
	} {
		cube, err := optional(q.get())
		if err != nil {
			return err
		}
		if cube == nil {
			continue
		}
		st := pp.stats(q.name)
		for i, v := range cube.Data {
			st.add(v, isFlagged(i))
		}
	}
	return nil
}

func (pp *PartitionProfile) stats(name string) *NumStats {
	st := pp.Quantities[name]
	if st == nil {
		st = &NumStats{}
		pp.Quantities[name] = st
	}
	return st
}

func optional[T any](v T, err error) (T, error) {
	if errors.Is(err, errs.ErrQuantityMissing) {
		var zero T
		return zero, nil
	}
	return v, err
}

// Partitions returns the profiles ordered by partition.
func (c *Collector) Partitions() []*PartitionProfile {
	out := make([]*PartitionProfile, 0, len(c.parts))
	for _, pp := range c.parts {
		out = append(out, pp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partition < out[j].Partition })
	return out
}

func (c *Collector) ReportText() string {
	var b strings.Builder
	b.WriteString("Profile Summary\n")
	for _, pp := range c.Partitions() {
		fmt.Fprintf(&b, "- spw %d: buffers=%d rows=%d channels=%d flagged=%d/%d flag_row=%d\n",
			pp.Partition, pp.Buffers, pp.Rows, pp.Channels, pp.Flags.True, pp.Flags.Count, pp.FlagRow.True)
		names := make([]string, 0, len(pp.Quantities))
		for name := range pp.Quantities {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := pp.Quantities[name]
			fmt.Fprintf(&b, "  %s: count=%d flagged=%d min=%.6g max=%.6g mean=%.6g\n",
				name, st.Count, st.Flagged, st.Min, st.Max, st.Mean())
		}
	}
	return b.String()
}

type JSONProfile struct {
	Partitions []*PartitionProfile `json:"partitions"`
}

func (c *Collector) ReportJSON() JSONProfile {
	return JSONProfile{Partitions: c.Partitions()}
}
