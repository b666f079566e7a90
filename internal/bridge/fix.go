// Package bridge serves the location service bus protocol from an NMEA GPS receiver.
package bridge

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/benbjohnson/clock"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
)

const (
	knotsToMetersPerSecond = 0.514444
	kphToMetersPerSecond   = 1 / 3.6

	// uere converts a dilution of precision into meters.
	uere = 5.0
)

// ErrNoFix is returned when no fresh fix is available.
var ErrNoFix = errors.New("no position fix available")

// Fix is the receiver's current position. Unknown values are NaN.
type Fix struct {
	Latitude           float64
	Longitude          float64
	Altitude           float64
	HorizontalAccuracy float64
	VerticalAccuracy   float64
	Speed              float64 // m/s
	Heading            float64 // degrees from true north
	Time               time.Time
	Received           time.Time
}

func unknownFix() Fix {
	nan := math.NaN()
	return Fix{
		Latitude:           nan,
		Longitude:          nan,
		Altitude:           nan,
		HorizontalAccuracy: nan,
		VerticalAccuracy:   nan,
		Speed:              nan,
		Heading:            nan,
	}
}

// Reply encodes the fix as a successful location service reply.
func (f Fix) Reply() location.Reply {
	known := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = location.UnknownValue
		}
		return &v
	}
	timestamp := f.Time.Unix()
	return location.Reply{
		ReturnValue:   true,
		Latitude:      known(f.Latitude),
		Longitude:     known(f.Longitude),
		Altitude:      known(f.Altitude),
		Timestamp:     &timestamp,
		HorizAccuracy: known(f.HorizontalAccuracy),
		VertAccuracy:  known(f.VerticalAccuracy),
		Velocity:      known(f.Speed),
		Heading:       known(f.Heading),
	}
}

// FixTracker merges NMEA sentences into the current fix. RMC sentences complete a fix; GGA
// sentences do so only for receivers that never send RMC.
type FixTracker struct {
	clock clock.Clock

	mu      sync.Mutex
	current Fix
	valid   bool
	rmcSeen bool
}

// NewFixTracker creates a tracker without a fix.
func NewFixTracker(c clock.Clock) *FixTracker {
	if c == nil {
		c = clock.New()
	}
	return &FixTracker{clock: c, current: unknownFix()}
}

// Update parses one sentence. It returns the fix and true when the sentence completed a fix.
func (t *FixTracker) Update(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Fix{}, false, nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, fmt.Errorf("failed to parse sentence: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now().UTC()
	switch s := sentence.(type) {
	case nmea.RMC:
		t.rmcSeen = true
		if s.Validity != nmea.ValidRMC {
			t.valid = false
			return Fix{}, false, nil
		}
		t.current.Latitude = s.Latitude
		t.current.Longitude = s.Longitude
		t.current.Speed = s.Speed * knotsToMetersPerSecond
		t.current.Heading = s.Course
		t.current.Time = fixTime(s.Date, s.Time, now)
		return t.complete(now), true, nil

	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			if !t.rmcSeen {
				t.valid = false
			}
			return Fix{}, false, nil
		}
		t.current.Altitude = s.Altitude
		t.current.HorizontalAccuracy = s.HDOP * uere
		if t.rmcSeen {
			return Fix{}, false, nil
		}
		t.current.Latitude = s.Latitude
		t.current.Longitude = s.Longitude
		t.current.Time = fixTime(nmea.Date{}, s.Time, now)
		return t.complete(now), true, nil

	case nmea.VTG:
		t.current.Speed = s.GroundSpeedKPH * kphToMetersPerSecond
		t.current.Heading = s.TrueTrack

	case nmea.GSA:
		if s.FixType == nmea.FixNone {
			return Fix{}, false, nil
		}
		t.current.HorizontalAccuracy = s.HDOP * uere
		t.current.VerticalAccuracy = s.VDOP * uere
	}
	return Fix{}, false, nil
}

// Latest returns the last fix if it is younger than maxAge. A zero maxAge accepts any age.
func (t *FixTracker) Latest(maxAge time.Duration) (Fix, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid {
		return Fix{}, ErrNoFix
	}
	if maxAge > 0 && t.clock.Since(t.current.Received) > maxAge {
		return Fix{}, fmt.Errorf("%w: last fix is older than %s", ErrNoFix, maxAge)
	}
	return t.current, nil
}

func (t *FixTracker) complete(now time.Time) Fix {
	t.current.Received = now
	t.valid = true
	return t.current
}

// fixTime combines the receiver's date and time. A missing date is taken from now.
func fixTime(d nmea.Date, tm nmea.Time, now time.Time) time.Time {
	if !tm.Valid {
		return now
	}
	year, month, day := now.Date()
	if d.Valid {
		year, month, day = 2000+d.YY, time.Month(d.MM), d.DD
	}
	return time.Date(year, month, day, tm.Hour, tm.Minute, tm.Second, tm.Millisecond*int(time.Millisecond), time.UTC)
}
