package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/wdm0006/regrid/pkg/frames"
	"github.com/wdm0006/regrid/pkg/regrid"
)

// runConfig is the CLI config file: the pipeline settings plus the
// observing environment the pipeline's collaborators are built from.
type runConfig struct {
	regrid.Config `yaml:",inline"`

	// FrameVelocities is the radial velocity (m/s) of each frame relative
	// to the observer.
	FrameVelocities map[string]float64 `json:"frameVelocities" toml:"frameVelocities" yaml:"frameVelocities"`
	// Ephemeris is keyed by field id.
	Ephemeris map[string]frames.FieldEphemeris `json:"ephemeris" toml:"ephemeris" yaml:"ephemeris"`
	// Fields maps field ids to phase centers such as "J2000 12h00m00 -30d00m00".
	Fields      map[string]string `json:"fields" toml:"fields" yaml:"fields"`
	Observatory *observatory      `json:"observatory" toml:"observatory" yaml:"observatory"`
}

type observatory struct {
	Lon    float64 `json:"lon" toml:"lon" yaml:"lon"` // degrees
	Lat    float64 `json:"lat" toml:"lat" yaml:"lat"` // degrees
	Height float64 `json:"height" toml:"height" yaml:"height"`
}

func loadRunConfig(path string) (runConfig, error) {
	var rc runConfig
	if err := regrid.DecodeFile(path, &rc); err != nil {
		return rc, err
	}
	return rc, nil
}

// options builds the pipeline collaborators the config asks for. A frame
// converter is installed when an output frame or frame velocities are set.
func (rc runConfig) options() ([]regrid.Option, error) {
	var (
		opts   []regrid.Option
		result *multierror.Error
	)
	if rc.OutFrame != "" || len(rc.FrameVelocities) > 0 {
		table := frames.VelocityTable{}
		for name, v := range rc.FrameVelocities {
			f, err := frames.ParseFrame(name)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			table[f] = v
		}
		opts = append(opts, regrid.WithFrameConverter(frames.NewConverter(table)))
	}
	if len(rc.Ephemeris) > 0 {
		eph := frames.EphemerisTable{}
		for id, fe := range rc.Ephemeris {
			field, err := strconv.Atoi(id)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("ephemeris: field id %q: %w", id, err))
				continue
			}
			if fe.Ref, err = frames.ParseFrame(string(fe.Ref)); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			eph[field] = fe
		}
		opts = append(opts, regrid.WithEphemeris(eph))
	}
	if len(rc.Fields) > 0 {
		table := frames.FieldDirections{}
		for id, s := range rc.Fields {
			field, err := strconv.Atoi(id)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("fields: field id %q: %w", id, err))
				continue
			}
			d, err := frames.ParseDirection(s)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			table[field] = d
		}
		opts = append(opts, regrid.WithFieldTable(table))
	}
	if o := rc.Observatory; o != nil {
		opts = append(opts, regrid.WithObservatory(frames.Position{
			Ref:    "WGS84",
			Lon:    o.Lon * math.Pi / 180,
			Lat:    o.Lat * math.Pi / 180,
			Height: o.Height,
		}))
	}
	return opts, result.ErrorOrNil()
}
