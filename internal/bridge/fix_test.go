package bridge_test

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/bridge"
)

const (
	rmcValid   = "$GPRMC,123519.00,A,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W*4F"
	rmcVoid    = "$GPRMC,123520.00,V,4807.038,N,01131.000,E,,,230324,,*25"
	ggaValid   = "$GPGGA,123519.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*69"
	ggaInvalid = "$GPGGA,123521.00,4807.038,N,01131.000,E,0,00,,,M,,M,,*77"
	vtg        = "$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48"
	gsa        = "$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39"
	rmcWest    = "$GNRMC,000000.00,A,3730.000,N,12218.000,W,0.0,,010124,,*18"

	munichLat = 48.1173
	munichLon = 11.516666
)

func newTracker() (*bridge.FixTracker, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 23, 12, 35, 20, 0, time.UTC))
	return bridge.NewFixTracker(mock), mock
}

// TestFixTracker_RMC tests that an RMC sentence completes a fix.
func TestFixTracker_RMC(t *testing.T) {
	tracker, _ := newTracker()

	fix, ok, err := tracker.Update(rmcValid + "\r\n")

	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, munichLat, fix.Latitude, 1e-4)
	assert.InDelta(t, munichLon, fix.Longitude, 1e-4)
	assert.InDelta(t, 11.5235, fix.Speed, 1e-3)
	assert.Equal(t, 84.4, fix.Heading)
	assert.Equal(t, time.Date(2024, 3, 23, 12, 35, 19, 0, time.UTC), fix.Time)
	assert.True(t, math.IsNaN(fix.Altitude))
	assert.True(t, math.IsNaN(fix.HorizontalAccuracy))

	latest, err := tracker.Latest(0)
	require.NoError(t, err)
	assert.Equal(t, fix.Time, latest.Time)
}

// TestFixTracker_Enrichment tests that GGA and GSA add altitude and accuracy to RMC fixes.
func TestFixTracker_Enrichment(t *testing.T) {
	tracker, _ := newTracker()

	for _, line := range []string{rmcValid, ggaValid, gsa} {
		_, ok, err := tracker.Update(line)
		require.NoError(t, err)
		if line != rmcValid {
			assert.False(t, ok, "only RMC completes a fix once seen")
		}
	}
	fix, ok, err := tracker.Update(rmcValid)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 545.4, fix.Altitude)
	assert.InDelta(t, 6.5, fix.HorizontalAccuracy, 1e-9)
	assert.InDelta(t, 10.5, fix.VerticalAccuracy, 1e-9)
}

// TestFixTracker_GGAOnly tests receivers that never send RMC.
func TestFixTracker_GGAOnly(t *testing.T) {
	tracker, _ := newTracker()

	_, ok, err := tracker.Update(vtg)
	require.NoError(t, err)
	assert.False(t, ok)

	fix, ok, err := tracker.Update(ggaValid)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, munichLat, fix.Latitude, 1e-4)
	assert.Equal(t, 545.4, fix.Altitude)
	assert.InDelta(t, 4.5, fix.HorizontalAccuracy, 1e-9)
	assert.InDelta(t, 10.2/3.6, fix.Speed, 1e-9)
	assert.Equal(t, 54.7, fix.Heading)
	assert.Equal(t, time.Date(2024, 3, 23, 12, 35, 19, 0, time.UTC), fix.Time)

	_, ok, err = tracker.Update(ggaInvalid)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = tracker.Latest(0)
	assert.ErrorIs(t, err, bridge.ErrNoFix)
}

// TestFixTracker_LostFix tests that a void RMC drops the fix.
func TestFixTracker_LostFix(t *testing.T) {
	tracker, _ := newTracker()
	_, _, err := tracker.Update(rmcValid)
	require.NoError(t, err)

	_, ok, err := tracker.Update(rmcVoid)

	require.NoError(t, err)
	assert.False(t, ok)
	_, err = tracker.Latest(0)
	assert.ErrorIs(t, err, bridge.ErrNoFix)
}

// TestFixTracker_Latest_MaxAge tests that stale fixes are not served.
func TestFixTracker_Latest_MaxAge(t *testing.T) {
	tracker, mock := newTracker()
	_, _, err := tracker.Update(rmcValid)
	require.NoError(t, err)

	mock.Add(10 * time.Second)
	_, err = tracker.Latest(30 * time.Second)
	assert.NoError(t, err)

	mock.Add(25 * time.Second)
	_, err = tracker.Latest(30 * time.Second)
	assert.ErrorIs(t, err, bridge.ErrNoFix)
}

// TestFixTracker_Malformed tests that sentences with a bad checksum are rejected.
func TestFixTracker_Malformed(t *testing.T) {
	tracker, _ := newTracker()

	_, ok, err := tracker.Update("$GPRMC,123519.00,A,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W*00")
	assert.Error(t, err)
	assert.False(t, ok)

	_, ok, err = tracker.Update("   ")
	assert.NoError(t, err)
	assert.False(t, ok)
}

// TestFix_Reply tests that unknown values are encoded as -1.
func TestFix_Reply(t *testing.T) {
	tracker, _ := newTracker()
	fix, ok, err := tracker.Update(rmcWest)
	require.NoError(t, err)
	require.True(t, ok)

	reply := fix.Reply()

	assert.True(t, reply.ReturnValue)
	assert.InDelta(t, 37.5, *reply.Latitude, 1e-9)
	assert.InDelta(t, -122.3, *reply.Longitude, 1e-9)
	assert.Equal(t, -1.0, *reply.Altitude)
	assert.Equal(t, -1.0, *reply.HorizAccuracy)
	assert.Equal(t, -1.0, *reply.VertAccuracy)
	assert.Equal(t, 0.0, *reply.Velocity)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), *reply.Timestamp)
}
