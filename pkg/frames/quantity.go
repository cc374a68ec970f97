package frames

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 299792458.0

// Unit is the dimension of a parsed Quantity.
type Unit int

const (
	// Dimensionless values are channel indices or counts.
	Dimensionless Unit = iota
	Hertz
	MetersPerSecond
)

func (u Unit) String() string {
	switch u {
	case Hertz:
		return "Hz"
	case MetersPerSecond:
		return "m/s"
	default:
		return ""
	}
}

// Quantity is a value normalized to SI units.
type Quantity struct {
	Value float64
	Unit  Unit
}

var unitScale = map[string]struct {
	unit  Unit
	scale float64
}{
	"hz":   {Hertz, 1},
	"khz":  {Hertz, 1e3},
	"mhz":  {Hertz, 1e6},
	"ghz":  {Hertz, 1e9},
	"thz":  {Hertz, 1e12},
	"m/s":  {MetersPerSecond, 1},
	"km/s": {MetersPerSecond, 1e3},
}

// ParseQuantity parses strings such as "1.4GHz", "-10 km/s" or "3".
func ParseQuantity(s string) (Quantity, error) {
	str := strings.TrimSpace(s)
	if str == "" {
		return Quantity{}, fmt.Errorf("empty quantity")
	}
	i := len(str)
	for i > 0 {
		c := str[i-1]
		if (c >= '0' && c <= '9') || c == '.' {
			break
		}
		i--
	}
	num, unit := strings.TrimSpace(str[:i]), strings.ToLower(strings.TrimSpace(str[i:]))
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if unit == "" {
		return Quantity{Value: v, Unit: Dimensionless}, nil
	}
	us, ok := unitScale[unit]
	if !ok {
		return Quantity{}, fmt.Errorf("invalid quantity %q: unknown unit %q", s, unit)
	}
	return Quantity{Value: v * us.scale, Unit: us.unit}, nil
}

// Channel returns the quantity as a non-negative channel index or count.
func (q Quantity) Channel() (int, error) {
	if q.Unit != Dimensionless {
		return 0, fmt.Errorf("expected a channel number, got a value in %s", q.Unit)
	}
	if q.Value < 0 || q.Value != math.Trunc(q.Value) {
		return 0, fmt.Errorf("expected a non-negative integer channel, got %g", q.Value)
	}
	return int(q.Value), nil
}

// VelocityType is a doppler velocity convention.
type VelocityType string

const (
	Radio   VelocityType = "radio"
	Optical VelocityType = "optical"
)

// ParseVelocityType accepts "radio" or "optical"; empty means radio.
func ParseVelocityType(s string) (VelocityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "radio":
		return Radio, nil
	case "optical", "z":
		return Optical, nil
	}
	return "", fmt.Errorf("unknown velocity type %q", s)
}

// Frequency converts a velocity to a frequency for a rest frequency.
func (vt VelocityType) Frequency(v, rest float64) float64 {
	if vt == Optical {
		return rest / (1 + v/SpeedOfLight)
	}
	return rest * (1 - v/SpeedOfLight)
}

// Velocity converts a frequency to a velocity for a rest frequency.
func (vt VelocityType) Velocity(f, rest float64) float64 {
	if vt == Optical {
		return SpeedOfLight * (rest/f - 1)
	}
	return SpeedOfLight * (1 - f/rest)
}
