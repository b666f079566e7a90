package location_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
)

func TestCoordinate_IsValid(t *testing.T) {
	assert.True(t, location.NewCoordinate(0, 0, math.NaN()).IsValid())
	assert.True(t, location.NewCoordinate(90, -180, 0).IsValid())
	assert.False(t, location.NewCoordinate(math.NaN(), 0, 0).IsValid())
	assert.False(t, location.NewCoordinate(0, math.Inf(1), 0).IsValid())
	assert.False(t, location.NewCoordinate(-91, 0, 0).IsValid())
}

func TestPositionReport_Attributes(t *testing.T) {
	report := location.NewPositionReport(location.NewCoordinate(1, 2, 3), time.Unix(10, 0))
	assert.Empty(t, report.Attributes())

	report.SetAttribute(location.Direction, 90)
	v, ok := report.Attribute(location.Direction)
	assert.True(t, ok)
	assert.Equal(t, 90.0, v)

	// The returned map is a copy.
	report.Attributes()[location.GroundSpeed] = 1
	assert.False(t, report.HasAttribute(location.GroundSpeed))

	report.RemoveAttribute(location.Direction)
	assert.False(t, report.HasAttribute(location.Direction))
}

func TestPositionReport_EmptyIsInvalid(t *testing.T) {
	assert.False(t, location.PositionReport{}.IsValid())
}

func TestPositioningMethods_Has(t *testing.T) {
	assert.True(t, location.AllPositioningMethods.Has(location.NonSatellitePositioningMethods))
	assert.False(t, location.NonSatellitePositioningMethods.Has(location.SatellitePositioningMethods))
	assert.Equal(t, "unknown source error", location.UnknownSourceError.String())
}
