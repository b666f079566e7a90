package mocks

import (
	"sync"
	"time"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
)

// FakeSource is a location.Source recording calls made to it. Emit* deliver events to its listeners.
type FakeSource struct {
	mu        sync.Mutex
	listeners map[int]location.Listener
	nextID    int
	running   bool
	err       location.ErrorKind
	last      location.PositionReport
	starts    int
	stops     int
	requests  []time.Duration
	interval  time.Duration
	preferred location.PositioningMethods
}

// NewFakeSource returns a stopped source without listeners.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		listeners: make(map[int]location.Listener),
		interval:  time.Second,
		preferred: location.NonSatellitePositioningMethods,
	}
}

func (s *FakeSource) StartUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.running = true
}

func (s *FakeSource) StopUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.running = false
}

func (s *FakeSource) RequestUpdate(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, timeout)
}

func (s *FakeSource) LastKnownPosition(satelliteOnly bool) location.PositionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if satelliteOnly {
		return location.PositionReport{}
	}
	return s.last
}

func (s *FakeSource) SupportedPositioningMethods() location.PositioningMethods {
	return location.NonSatellitePositioningMethods
}

func (s *FakeSource) PreferredPositioningMethods() location.PositioningMethods {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferred
}

func (s *FakeSource) SetPreferredPositioningMethods(methods location.PositioningMethods) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferred = methods
}

func (s *FakeSource) UpdateInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *FakeSource) SetUpdateInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}

func (s *FakeSource) MinimumUpdateInterval() time.Duration {
	return time.Second
}

func (s *FakeSource) Error() location.ErrorKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FakeSource) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *FakeSource) Subscribe(l location.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SetError sets the error returned by Error.
func (s *FakeSource) SetError(kind location.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = kind
}

// SetLastKnownPosition sets the cached position.
func (s *FakeSource) SetLastKnownPosition(report location.PositionReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = report
}

// EmitPosition delivers report to every listener.
func (s *FakeSource) EmitPosition(report location.PositionReport) {
	for _, l := range s.snapshot() {
		l.PositionUpdated(report)
	}
}

// EmitError delivers kind to every listener.
func (s *FakeSource) EmitError(kind location.ErrorKind) {
	for _, l := range s.snapshot() {
		l.Error(kind)
	}
}

// EmitTimeout delivers an update timeout to every listener.
func (s *FakeSource) EmitTimeout() {
	for _, l := range s.snapshot() {
		l.UpdateTimeout()
	}
}

// Listeners returns the number of subscribed listeners.
func (s *FakeSource) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Starts returns how often StartUpdates was called.
func (s *FakeSource) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Stops returns how often StopUpdates was called.
func (s *FakeSource) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Requests returns the timeouts passed to RequestUpdate.
func (s *FakeSource) Requests() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.requests...)
}

func (s *FakeSource) snapshot() []location.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]location.Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}
