package positioning

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/eventloop"
)

func waitQueued(t *testing.T, loop *eventloop.Loop) {
	t.Helper()
	require.Eventually(t, func() bool { return loop.Len() > 0 }, time.Second, time.Millisecond)
}

// TestRequestTimer_Fires tests that the timeout runs on the loop once the countdown expires.
func TestRequestTimer_Fires(t *testing.T) {
	// Setup
	mock := clock.NewMock()
	loop := eventloop.New()
	fired := 0
	timer := NewRequestTimer(mock, loop, func() { fired++ })

	// Execute
	timer.Arm(time.Second)
	mock.Add(999 * time.Millisecond)
	loop.Drain()

	// Assert
	assert.True(t, timer.IsArmed())
	assert.Equal(t, 0, fired)

	mock.Add(time.Millisecond)
	waitQueued(t, loop)
	assert.Equal(t, 0, fired, "expiry must wait for the loop")
	loop.Drain()
	assert.Equal(t, 1, fired)
	assert.False(t, timer.IsArmed())
}

// TestRequestTimer_DisarmDropsQueuedExpiry tests that an expiry already queued is discarded by Disarm.
func TestRequestTimer_DisarmDropsQueuedExpiry(t *testing.T) {
	mock := clock.NewMock()
	loop := eventloop.New()
	fired := 0
	timer := NewRequestTimer(mock, loop, func() { fired++ })

	timer.Arm(time.Second)
	mock.Add(time.Second)
	waitQueued(t, loop)

	timer.Disarm()
	loop.Drain()

	assert.Equal(t, 0, fired)
	assert.False(t, timer.IsArmed())
}

// TestRequestTimer_Rearm tests that arming again restarts the countdown.
func TestRequestTimer_Rearm(t *testing.T) {
	mock := clock.NewMock()
	loop := eventloop.New()
	fired := 0
	timer := NewRequestTimer(mock, loop, func() { fired++ })

	timer.Arm(time.Second)
	mock.Add(600 * time.Millisecond)
	timer.Arm(time.Second)
	mock.Add(600 * time.Millisecond)
	loop.Drain()
	assert.Equal(t, 0, fired)
	assert.True(t, timer.IsArmed())

	mock.Add(400 * time.Millisecond)
	waitQueued(t, loop)
	loop.Drain()
	assert.Equal(t, 1, fired)
}

// TestRequestTimer_DisarmIdle tests that disarming a disarmed timer is harmless.
func TestRequestTimer_DisarmIdle(t *testing.T) {
	timer := NewRequestTimer(clock.NewMock(), eventloop.New(), func() {})

	timer.Disarm()
	timer.Disarm()

	assert.False(t, timer.IsArmed())
}
