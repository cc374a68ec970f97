package regrid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/kernel"
)

// AllChannels asks for as many output channels as fit.
const AllChannels ChannelCount = 0

// ChannelCount is an output channel count; "all" and 0 mean as many as fit.
type ChannelCount int

func (n *ChannelCount) parse(s string) error {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") || s == "" {
		*n = AllChannels
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return errs.Configuration("nchan", s, "want a non-negative integer or \"all\"")
	}
	*n = ChannelCount(v)
	return nil
}

func (n *ChannelCount) UnmarshalText(b []byte) error { return n.parse(string(b)) }

func (n *ChannelCount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return n.parse(s)
	}
	return n.parse(string(b))
}

func (n *ChannelCount) UnmarshalYAML(node *yaml.Node) error { return n.parse(node.Value) }

// FieldOrDirection is a phase center given as a field id or a direction
// such as "J2000 12h30m00 -45d00m00".
type FieldOrDirection string

func (f *FieldOrDirection) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FieldOrDirection(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errs.Configuration("phaseCenter", string(b), "want a field id or a direction")
	}
	*f = FieldOrDirection(n.String())
	return nil
}

func (f *FieldOrDirection) UnmarshalYAML(node *yaml.Node) error {
	*f = FieldOrDirection(node.Value)
	return nil
}

// Config is the regridding request.
type Config struct {
	Mode          string           `json:"mode" toml:"mode" yaml:"mode"`
	NChan         ChannelCount     `json:"nchan" toml:"nchan" yaml:"nchan"`
	Start         string           `json:"start" toml:"start" yaml:"start"`
	Width         string           `json:"width" toml:"width" yaml:"width"`
	VelocityType  string           `json:"velocityType" toml:"velocityType" yaml:"velocityType"`
	VelType       string           `json:"veltype" toml:"veltype" yaml:"veltype"`
	RestFrequency string           `json:"restFrequency" toml:"restFrequency" yaml:"restFrequency"`
	Interpolation string           `json:"interpolation" toml:"interpolation" yaml:"interpolation"`
	OutFrame      string           `json:"outframe" toml:"outframe" yaml:"outframe"`
	PhaseCenter   FieldOrDirection `json:"phaseCenter" toml:"phaseCenter" yaml:"phaseCenter"`
	// DataColumns limits the quantities the pipeline exposes; empty exposes
	// everything upstream carries.
	DataColumns []string `json:"dataColumns" toml:"dataColumns" yaml:"dataColumns"`
}

// Column names accepted in DataColumns.
const (
	ColumnObserved  = "observed"
	ColumnModel     = "model"
	ColumnCorrected = "corrected"
	ColumnFloat     = "float"
	ColumnWeight    = "weight"
	ColumnSigma     = "sigma"
)

var knownColumns = map[string]bool{
	ColumnObserved: true, ColumnModel: true, ColumnCorrected: true,
	ColumnFloat: true, ColumnWeight: true, ColumnSigma: true,
}

// settings is a validated Config.
type settings struct {
	spec      frames.GridSpec
	selection kernel.Selection
	outFrame  frames.Frame
	// field >= 0 selects the phase center from the field table; otherwise
	// direction is used when hasDirection is set.
	field        int
	direction    frames.Direction
	hasDirection bool
	columns      map[string]bool
}

// Validate reports every problem in c.
func (c Config) Validate() error {
	_, err := c.settings()
	return err
}

func (c Config) settings() (settings, error) {
	s := settings{field: -1}
	var result *multierror.Error

	mode, err := frames.ParseMode(c.Mode)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if s.selection, err = kernel.Parse(c.Interpolation); err != nil {
		result = multierror.Append(result, err)
	}
	vt, err := c.velocityType()
	if err != nil {
		result = multierror.Append(result, err)
	}
	if s.outFrame, err = frames.ParseFrame(c.OutFrame); err != nil {
		result = multierror.Append(result, err)
	}
	if pc := strings.TrimSpace(string(c.PhaseCenter)); pc != "" {
		if id, aerr := strconv.Atoi(pc); aerr == nil {
			if id < 0 {
				result = multierror.Append(result, errs.Configuration("phaseCenter", pc, "field id must not be negative"))
			}
			s.field = id
		} else if s.direction, err = frames.ParseDirection(pc); err != nil {
			result = multierror.Append(result, errs.Configuration("phaseCenter", pc, "want a field id or a direction").WithCause(err))
		} else {
			s.hasDirection = true
		}
	}
	for _, col := range c.DataColumns {
		name := strings.ToLower(strings.TrimSpace(col))
		if !knownColumns[name] {
			result = multierror.Append(result, errs.Configuration("dataColumns", col, "unknown column"))
			continue
		}
		if s.columns == nil {
			s.columns = map[string]bool{}
		}
		s.columns[name] = true
	}
	s.spec = frames.GridSpec{
		Mode:          mode,
		NChan:         int(c.NChan),
		Start:         c.Start,
		Width:         c.Width,
		RestFrequency: c.RestFrequency,
		VelocityType:  vt,
		OutFrame:      s.outFrame,
	}
	if mode != "" {
		if err := s.spec.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return s, result.ErrorOrNil()
}

func (c Config) velocityType() (frames.VelocityType, error) {
	a, b := strings.TrimSpace(c.VelocityType), strings.TrimSpace(c.VelType)
	if a == "" {
		a = b
	}
	vt, err := frames.ParseVelocityType(a)
	if err != nil {
		return "", errs.Configuration("velocityType", a, "want radio or optical").WithCause(err)
	}
	if b != "" {
		alt, err := frames.ParseVelocityType(b)
		if err != nil {
			return "", errs.Configuration("veltype", b, "want radio or optical").WithCause(err)
		}
		if alt != vt {
			return "", errs.Configuration("veltype", b, fmt.Sprintf("conflicts with velocityType %q", c.VelocityType))
		}
	}
	return vt, nil
}

// decoders maps a config file extension to its unmarshal function.
var decoders = map[string]func([]byte, any) error{
	".json": json.Unmarshal,
}

// LoadConfig reads a Config from a .json, .toml, .yaml or .yml file.
func LoadConfig(path string) (Config, error) {
	var c Config
	err := DecodeFile(path, &c)
	return c, err
}

// DecodeFile decodes a JSON, TOML or YAML file into v, choosing the format
// by extension. Callers embedding Config in a larger document use it to get
// the same decoding rules.
func DecodeFile(path string, v any) error {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := decode(b, v); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}
