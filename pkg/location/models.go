package location

import (
	"math"
	"time"
)

// Coordinate is a WGS84 position. Altitude is NaN when the source did not report one.
type Coordinate struct {
	Latitude  float64 // degrees
	Longitude float64 // degrees
	Altitude  float64 // meters
}

// NewCoordinate builds a coordinate; pass math.NaN() for an unknown altitude.
func NewCoordinate(latitude, longitude, altitude float64) Coordinate {
	return Coordinate{Latitude: latitude, Longitude: longitude, Altitude: altitude}
}

// IsValid reports whether latitude and longitude are finite and in range.
func (c Coordinate) IsValid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// HasAltitude reports whether the altitude is known.
func (c Coordinate) HasAltitude() bool {
	return !math.IsNaN(c.Altitude) && !math.IsInf(c.Altitude, 0)
}

// Attribute identifies an optional, derived value of a position report.
type Attribute int

const (
	HorizontalAccuracy Attribute = iota // meters
	VerticalAccuracy                    // meters
	GroundSpeed                         // meters per second
	Direction                           // degrees from true north
)

func (a Attribute) String() string {
	switch a {
	case HorizontalAccuracy:
		return "horizontal_accuracy"
	case VerticalAccuracy:
		return "vertical_accuracy"
	case GroundSpeed:
		return "ground_speed"
	case Direction:
		return "direction"
	default:
		return "unknown"
	}
}

// PositionReport is a coordinate with the time it was taken and any optional attributes.
// The zero value is an empty report.
type PositionReport struct {
	Coordinate Coordinate
	Timestamp  time.Time
	attributes map[Attribute]float64
}

// NewPositionReport creates a report without attributes.
func NewPositionReport(coordinate Coordinate, timestamp time.Time) PositionReport {
	return PositionReport{Coordinate: coordinate, Timestamp: timestamp}
}

// IsValid reports whether the report carries a usable coordinate.
func (p PositionReport) IsValid() bool {
	return !p.Timestamp.IsZero() && p.Coordinate.IsValid()
}

// SetAttribute attaches or replaces an attribute value.
func (p *PositionReport) SetAttribute(attr Attribute, value float64) {
	if p.attributes == nil {
		p.attributes = make(map[Attribute]float64, 4)
	}
	p.attributes[attr] = value
}

// Attribute returns the attribute value and whether it is set.
func (p PositionReport) Attribute(attr Attribute) (float64, bool) {
	v, ok := p.attributes[attr]
	return v, ok
}

// HasAttribute reports whether the attribute is set.
func (p PositionReport) HasAttribute(attr Attribute) bool {
	_, ok := p.attributes[attr]
	return ok
}

// RemoveAttribute clears an attribute.
func (p *PositionReport) RemoveAttribute(attr Attribute) {
	delete(p.attributes, attr)
}

// Attributes returns a copy of all set attributes.
func (p PositionReport) Attributes() map[Attribute]float64 {
	out := make(map[Attribute]float64, len(p.attributes))
	for k, v := range p.attributes {
		out[k] = v
	}
	return out
}

// PositioningMethods is a bitset of the techniques a source can use.
type PositioningMethods uint32

const (
	NoPositioningMethods           PositioningMethods = 0
	SatellitePositioningMethods    PositioningMethods = 0x000000ff
	NonSatellitePositioningMethods PositioningMethods = 0xffffff00
	AllPositioningMethods          PositioningMethods = 0xffffffff
)

// Has reports whether all bits of other are set in m.
func (m PositioningMethods) Has(other PositioningMethods) bool {
	return m&other == other
}

// ErrorKind is the error reported by a position source. Finer-grained causes never cross this boundary.
type ErrorKind int

const (
	NoError ErrorKind = iota
	UnknownSourceError
)

func (e ErrorKind) String() string {
	switch e {
	case NoError:
		return "no error"
	case UnknownSourceError:
		return "unknown source error"
	default:
		return "invalid error kind"
	}
}
