// Package csvio writes and reads channel grid tables as CSV.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	iox "github.com/wdm0006/regrid/pkg/io/ioutils"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// Header is the column layout of a grid table.
var Header = []string{"spw", "channel", "freq_hz", "width_hz", "weight_factor", "sigma_factor"}

type WriterOptions struct {
	Delimiter rune // default ','
}

type ReaderOptions struct {
	Delimiter rune // 0 = sniff from the header line
}

// WriteGrids writes one line per output channel of every resolved
// partition, ordered by partition and channel.
func WriteGrids(path string, states map[int]regrid.TransformState, opt WriterOptions) error {
	out, err := iox.CreateMaybeCompressed(path)
	if err != nil {
		return err
	}
	if err := WriteGridsTo(out, states, opt); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// WriteGridsTo is WriteGrids on an arbitrary writer.
func WriteGridsTo(out io.Writer, states map[int]regrid.TransformState, opt WriterOptions) error {
	w := csv.NewWriter(out)
	if opt.Delimiter != 0 {
		w.Comma = opt.Delimiter
	}
	if err := w.Write(Header); err != nil {
		return err
	}
	spws := make([]int, 0, len(states))
	for spw := range states {
		spws = append(spws, spw)
	}
	sort.Ints(spws)

	row := make([]string, len(Header))
	for _, spw := range spws {
		st := states[spw]
		wf := formatFloat(st.WeightFactor)
		sf := formatFloat(st.SigmaFactor)
		for ch := range st.Output.Freq {
			row[0] = strconv.Itoa(spw)
			row[1] = strconv.Itoa(ch)
			row[2] = formatFloat(st.Output.Freq[ch])
			row[3] = formatFloat(st.Output.Width[ch])
			row[4] = wf
			row[5] = sf
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// ReadGrids loads a grid table. Columns are matched by header name, so
// extra columns are ignored; spw, channel and freq_hz are required. A
// partition whose table has no width_hz gets widths from channel spacing.
func ReadGrids(path string, opt ReaderOptions) (map[int]frames.Grid, error) {
	rc, err := iox.OpenMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return ReadGridsFrom(rc, opt)
}

// ReadGridsFrom is ReadGrids on an arbitrary reader.
func ReadGridsFrom(in io.Reader, opt ReaderOptions) (map[int]frames.Grid, error) {
	r := csv.NewReader(in)
	if opt.Delimiter != 0 {
		r.Comma = opt.Delimiter
	}
	hdr, err := readHeader(r, opt.Delimiter == 0)
	if err != nil {
		return nil, err
	}
	col := map[string]int{}
	for i, name := range hdr {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, need := range []string{"spw", "channel", "freq_hz"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("grid table has no %s column", need)
		}
	}
	widthCol, hasWidth := col["width_hz"]

	type channel struct {
		n           int
		freq, width float64
	}
	bySPW := map[int][]channel{}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		spw, err := strconv.Atoi(strings.TrimSpace(rec[col["spw"]]))
		if err != nil {
			return nil, fmt.Errorf("grid table line %d: spw: %w", line, err)
		}
		var c channel
		if c.n, err = strconv.Atoi(strings.TrimSpace(rec[col["channel"]])); err != nil {
			return nil, fmt.Errorf("grid table line %d: channel: %w", line, err)
		}
		if c.freq, err = strconv.ParseFloat(strings.TrimSpace(rec[col["freq_hz"]]), 64); err != nil {
			return nil, fmt.Errorf("grid table line %d: freq_hz: %w", line, err)
		}
		if hasWidth {
			if c.width, err = strconv.ParseFloat(strings.TrimSpace(rec[widthCol]), 64); err != nil {
				return nil, fmt.Errorf("grid table line %d: width_hz: %w", line, err)
			}
		}
		bySPW[spw] = append(bySPW[spw], c)
	}

	grids := make(map[int]frames.Grid, len(bySPW))
	for spw, chans := range bySPW {
		sort.Slice(chans, func(i, j int) bool { return chans[i].n < chans[j].n })
		freq := make([]float64, len(chans))
		var width []float64
		if hasWidth {
			width = make([]float64, len(chans))
		}
		for i, c := range chans {
			if c.n != i {
				return nil, fmt.Errorf("spw %d: channel %d missing or repeated", spw, i)
			}
			freq[i] = c.freq
			if hasWidth {
				width[i] = c.width
			}
		}
		g := frames.NewGrid(freq, width)
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("spw %d: %w", spw, err)
		}
		grids[spw] = g
	}
	return grids, nil
}

// readHeader reads the header record, switching to a tab or semicolon
// delimiter when sniffing and the comma split finds a single column.
func readHeader(r *csv.Reader, sniff bool) ([]string, error) {
	r.FieldsPerRecord = -1
	hdr, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("grid table header: %w", err)
	}
	if sniff && len(hdr) == 1 {
		for _, d := range []string{"\t", ";"} {
			if parts := strings.Split(hdr[0], d); len(parts) > 1 {
				r.Comma = rune(d[0])
				hdr = parts
				break
			}
		}
	}
	if len(hdr) > 0 {
		hdr[0] = strings.TrimPrefix(hdr[0], "\ufeff")
	}
	r.FieldsPerRecord = len(hdr)
	return hdr, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
