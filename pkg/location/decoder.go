package location

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// UnknownValue is the daemon's marker for "value not known".
const UnknownValue = -1

var (
	// ErrMalformedReply is returned when the payload is not a JSON object.
	ErrMalformedReply = errors.New("malformed location reply")
	// ErrRemoteFailure is returned when the daemon answered with returnValue false.
	ErrRemoteFailure = errors.New("location service reported failure")
	// ErrInvalidFix is returned for a parsed reply whose coordinate is out of range.
	// Callers drop such replies without reporting an error.
	ErrInvalidFix = errors.New("reply does not contain a valid coordinate")
)

// Reply is the flat reply object of the location service.
type Reply struct {
	ReturnValue   bool     `json:"returnValue"`
	ErrorCode     int      `json:"errorCode,omitempty"`
	ErrorText     string   `json:"errorText,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Altitude      *float64 `json:"altitude,omitempty"`
	Timestamp     *int64   `json:"timestamp,omitempty"`
	HorizAccuracy *float64 `json:"horizAccuracy,omitempty"`
	VertAccuracy  *float64 `json:"vertAccuracy,omitempty"`
	Velocity      *float64 `json:"velocity,omitempty"`
	Heading       *float64 `json:"heading,omitempty"`
}

var replyAttributes = []struct {
	key  string
	attr Attribute
}{
	{"horizAccuracy", HorizontalAccuracy},
	{"vertAccuracy", VerticalAccuracy},
	{"velocity", GroundSpeed},
	{"heading", Direction},
}

// DecodeReply converts a raw reply payload into a position report.
// now is used as the timestamp when the reply carries none.
func DecodeReply(payload []byte, now time.Time) (PositionReport, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return PositionReport{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if fields == nil {
		return PositionReport{}, fmt.Errorf("%w: not an object", ErrMalformedReply)
	}

	if ok, _ := fields["returnValue"].(bool); !ok {
		if text, _ := fields["errorText"].(string); text != "" {
			return PositionReport{}, fmt.Errorf("%w: %s", ErrRemoteFailure, text)
		}
		return PositionReport{}, ErrRemoteFailure
	}

	coordinate := NewCoordinate(
		number(fields, "latitude"),
		number(fields, "longitude"),
		number(fields, "altitude"),
	)

	timestamp := now.Unix()
	if v, ok := fields["timestamp"].(float64); ok && v == math.Trunc(v) && !math.IsInf(v, 0) {
		timestamp = int64(v)
	}

	report := NewPositionReport(coordinate, time.Unix(timestamp, 0))
	for _, ra := range replyAttributes {
		v := number(fields, ra.key)
		if math.IsNaN(v) || v == UnknownValue {
			continue
		}
		report.SetAttribute(ra.attr, v)
	}

	if !report.IsValid() {
		return report, ErrInvalidFix
	}
	return report, nil
}

// number returns the numeric field value, or NaN when absent or not a number.
func number(fields map[string]any, key string) float64 {
	if v, ok := fields[key].(float64); ok {
		return v
	}
	return math.NaN()
}
