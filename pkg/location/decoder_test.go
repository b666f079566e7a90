package location_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
)

var decodeNow = time.Unix(1700000000, 0)

// TestDecodeReply_FullReply tests decoding of a reply that carries every field.
func TestDecodeReply_FullReply(t *testing.T) {
	payload := []byte(`{"returnValue":true,"latitude":37.5,"longitude":-122.3,"altitude":12.5,
		"timestamp":1000,"horizAccuracy":20,"vertAccuracy":8,"velocity":3.5,"heading":270}`)

	report, err := location.DecodeReply(payload, decodeNow)

	require.NoError(t, err)
	assert.Equal(t, 37.5, report.Coordinate.Latitude)
	assert.Equal(t, -122.3, report.Coordinate.Longitude)
	assert.Equal(t, 12.5, report.Coordinate.Altitude)
	assert.Equal(t, int64(1000), report.Timestamp.Unix())

	expected := map[location.Attribute]float64{
		location.HorizontalAccuracy: 20,
		location.VerticalAccuracy:   8,
		location.GroundSpeed:        3.5,
		location.Direction:          270,
	}
	assert.Equal(t, expected, report.Attributes())
}

// TestDecodeReply_SentinelAttributes tests that -1 attributes are left unset.
func TestDecodeReply_SentinelAttributes(t *testing.T) {
	payload := []byte(`{"returnValue":true,"latitude":37.5,"longitude":-122.3,"timestamp":1000,"horizAccuracy":-1}`)

	report, err := location.DecodeReply(payload, decodeNow)

	require.NoError(t, err)
	assert.Equal(t, 37.5, report.Coordinate.Latitude)
	assert.Equal(t, -122.3, report.Coordinate.Longitude)
	assert.True(t, math.IsNaN(report.Coordinate.Altitude))
	assert.False(t, report.Coordinate.HasAltitude())
	assert.False(t, report.HasAttribute(location.HorizontalAccuracy))
	assert.Equal(t, time.Unix(1000, 0), report.Timestamp)
}

// TestDecodeReply_NegativeAttributeKept tests that negative values other than -1 are attached unchanged.
func TestDecodeReply_NegativeAttributeKept(t *testing.T) {
	payload := []byte(`{"returnValue":true,"latitude":1,"longitude":2,"velocity":-2.5,"heading":-1}`)

	report, err := location.DecodeReply(payload, decodeNow)

	require.NoError(t, err)
	v, ok := report.Attribute(location.GroundSpeed)
	assert.True(t, ok)
	assert.Equal(t, -2.5, v)
	assert.False(t, report.HasAttribute(location.Direction))
}

// TestDecodeReply_MissingTimestamp tests that the decode time is used when no timestamp is sent.
func TestDecodeReply_MissingTimestamp(t *testing.T) {
	payload := []byte(`{"returnValue":true,"latitude":1,"longitude":2}`)

	first, err := location.DecodeReply(payload, decodeNow)
	require.NoError(t, err)
	second, err := location.DecodeReply(payload, decodeNow.Add(5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, decodeNow.Unix(), first.Timestamp.Unix())
	assert.Equal(t, decodeNow.Unix()+5, second.Timestamp.Unix())
}

// TestDecodeReply_NonIntegralTimestamp tests that a fractional timestamp falls back to the decode time.
func TestDecodeReply_NonIntegralTimestamp(t *testing.T) {
	payload := []byte(`{"returnValue":true,"latitude":1,"longitude":2,"timestamp":1000.5}`)

	report, err := location.DecodeReply(payload, decodeNow)

	require.NoError(t, err)
	assert.Equal(t, decodeNow.Unix(), report.Timestamp.Unix())
}

// TestDecodeReply_RemoteFailure tests replies whose returnValue is false, missing or not a boolean.
func TestDecodeReply_RemoteFailure(t *testing.T) {
	payloads := []string{
		`{"returnValue":false,"latitude":1,"longitude":2}`,
		`{"latitude":1,"longitude":2}`,
		`{"returnValue":"true","latitude":1,"longitude":2}`,
		`{"returnValue":false,"errorCode":-1,"errorText":"Message timeout"}`,
	}

	for _, payload := range payloads {
		_, err := location.DecodeReply([]byte(payload), decodeNow)
		assert.ErrorIs(t, err, location.ErrRemoteFailure, payload)
	}
}

// TestDecodeReply_Malformed tests payloads that are not JSON objects.
func TestDecodeReply_Malformed(t *testing.T) {
	payloads := []string{``, `not json`, `[1,2]`, `null`, `{"returnValue":true`}

	for _, payload := range payloads {
		_, err := location.DecodeReply([]byte(payload), decodeNow)
		assert.ErrorIs(t, err, location.ErrMalformedReply, payload)
	}
}

// TestDecodeReply_InvalidFix tests that out-of-range or missing coordinates yield ErrInvalidFix.
func TestDecodeReply_InvalidFix(t *testing.T) {
	payloads := []string{
		`{"returnValue":true,"latitude":91,"longitude":0}`,
		`{"returnValue":true,"latitude":-90.5,"longitude":0}`,
		`{"returnValue":true,"latitude":0,"longitude":180.01}`,
		`{"returnValue":true,"latitude":0}`,
		`{"returnValue":true,"longitude":"12"}`,
	}

	for _, payload := range payloads {
		_, err := location.DecodeReply([]byte(payload), decodeNow)
		assert.True(t, errors.Is(err, location.ErrInvalidFix), payload)
		assert.False(t, errors.Is(err, location.ErrRemoteFailure), payload)
	}
}

// TestDecodeReply_Boundaries tests that range limits are inclusive.
func TestDecodeReply_Boundaries(t *testing.T) {
	payload := []byte(`{"returnValue":true,"latitude":-90,"longitude":180}`)

	report, err := location.DecodeReply(payload, decodeNow)

	require.NoError(t, err)
	assert.True(t, report.IsValid())
}
