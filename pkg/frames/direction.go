package frames

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Direction is a sky direction in radians.
type Direction struct {
	Ref string
	Lon float64
	Lat float64
}

// Position is an observatory location: geodetic longitude and latitude in
// radians, height in meters.
type Position struct {
	Ref    string
	Lon    float64
	Lat    float64
	Height float64
}

// ParseDirection parses "J2000 19h30m00.0 -40d00m00.0" or
// "J2000 292.5deg -40deg". The reference defaults to J2000 when only two
// fields are given.
func ParseDirection(s string) (Direction, error) {
	fields := strings.Fields(s)
	ref := "J2000"
	switch len(fields) {
	case 2:
	case 3:
		ref, fields = strings.ToUpper(fields[0]), fields[1:]
	default:
		return Direction{}, fmt.Errorf("invalid direction %q: want [ref] lon lat", s)
	}
	lon, err := parseAngle(fields[0], true)
	if err != nil {
		return Direction{}, fmt.Errorf("invalid direction %q: %w", s, err)
	}
	lat, err := parseAngle(fields[1], false)
	if err != nil {
		return Direction{}, fmt.Errorf("invalid direction %q: %w", s, err)
	}
	if math.Abs(lat) > math.Pi/2 {
		return Direction{}, fmt.Errorf("invalid direction %q: latitude out of range", s)
	}
	return Direction{Ref: ref, Lon: lon, Lat: lat}, nil
}

// parseAngle understands sexagesimal (12h30m00s, -40d30m00s, -40.30.00),
// "deg" and "rad" suffixes. Sexagesimal hours only apply to longitudes.
func parseAngle(s string, hoursAllowed bool) (float64, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(str, "rad"):
		return strconv.ParseFloat(strings.TrimSuffix(str, "rad"), 64)
	case strings.HasSuffix(str, "deg"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(str, "deg"), 64)
		return v * math.Pi / 180, err
	}
	sign := 1.0
	if strings.HasPrefix(str, "-") {
		sign, str = -1, str[1:]
	} else if strings.HasPrefix(str, "+") {
		str = str[1:]
	}
	unit := math.Pi / 180
	var parts []string
	switch {
	case strings.Contains(str, "h"):
		if !hoursAllowed {
			return 0, fmt.Errorf("hour angle %q not allowed here", s)
		}
		unit = math.Pi / 12
		parts = strings.FieldsFunc(str, func(r rune) bool { return r == 'h' || r == 'm' || r == 's' })
	case strings.Contains(str, "d"):
		parts = strings.FieldsFunc(str, func(r rune) bool { return r == 'd' || r == 'm' || r == 's' })
	case strings.Count(str, ".") >= 2:
		// "40.30.00.5": the third part keeps the fractional seconds
		parts = strings.SplitN(str, ".", 3)
	default:
		return 0, fmt.Errorf("cannot parse angle %q", s)
	}
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("cannot parse angle %q", s)
	}
	total, div := 0.0, 1.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse angle %q: %w", s, err)
		}
		total += v / div
		div *= 60
	}
	return sign * total * unit, nil
}

// FieldDirections is a static field table.
type FieldDirections map[int]Direction

// Direction returns the phase center of field.
func (fd FieldDirections) Direction(field int) (Direction, error) {
	d, ok := fd[field]
	if !ok {
		return Direction{}, fmt.Errorf("field %d is not in the field table", field)
	}
	return d, nil
}
