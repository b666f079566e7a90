package positioning

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Poster queues work onto the goroutine that owns positioning state.
type Poster interface {
	Post(fn func()) bool
}

// RequestTimer is a single-shot countdown for one-shot position requests. Expiry is delivered
// through the poster, so onTimeout always runs on the loop. Arm, Disarm and IsArmed must be called
// from the loop as well.
type RequestTimer struct {
	clock     clock.Clock
	poster    Poster
	onTimeout func()

	timer      *clock.Timer
	armed      bool
	generation uint64
}

// NewRequestTimer creates a disarmed timer.
func NewRequestTimer(c clock.Clock, poster Poster, onTimeout func()) *RequestTimer {
	return &RequestTimer{
		clock:     c,
		poster:    poster,
		onTimeout: onTimeout,
	}
}

// Arm starts the countdown. Arming an armed timer restarts it.
func (t *RequestTimer) Arm(d time.Duration) {
	t.Disarm()

	gen := t.generation
	t.armed = true
	t.timer = t.clock.AfterFunc(d, func() {
		t.poster.Post(func() { t.fire(gen) })
	})
}

// Disarm stops the countdown. An expiry already queued on the loop is discarded.
func (t *RequestTimer) Disarm() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
	t.generation++
}

// IsArmed reports whether a countdown is running.
func (t *RequestTimer) IsArmed() bool {
	return t.armed
}

func (t *RequestTimer) fire(gen uint64) {
	if !t.armed || gen != t.generation {
		return
	}
	t.armed = false
	t.timer = nil
	t.onTimeout()
}
