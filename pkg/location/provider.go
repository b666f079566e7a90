package location

import "time"

// Listener receives the events of a Source.
type Listener interface {
	PositionUpdated(report PositionReport)
	Error(kind ErrorKind)
	UpdateTimeout()
}

// Source is a position source. Implementations are not safe for concurrent use; callers must
// drive them from the goroutine that owns their event loop.
type Source interface {
	StartUpdates()
	StopUpdates()
	// RequestUpdate asks for a single update within timeout; zero means the source's minimum interval.
	RequestUpdate(timeout time.Duration)
	// LastKnownPosition returns the cached report, or an empty one.
	LastKnownPosition(satelliteOnly bool) PositionReport
	SupportedPositioningMethods() PositioningMethods
	PreferredPositioningMethods() PositioningMethods
	SetPreferredPositioningMethods(methods PositioningMethods)
	UpdateInterval() time.Duration
	SetUpdateInterval(interval time.Duration)
	MinimumUpdateInterval() time.Duration
	Error() ErrorKind
	// Subscribe registers a listener and returns a function removing it.
	Subscribe(l Listener) func()
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are ignored.
type ListenerFuncs struct {
	OnPositionUpdated func(PositionReport)
	OnError           func(ErrorKind)
	OnUpdateTimeout   func()
}

func (f ListenerFuncs) PositionUpdated(report PositionReport) {
	if f.OnPositionUpdated != nil {
		f.OnPositionUpdated(report)
	}
}

func (f ListenerFuncs) Error(kind ErrorKind) {
	if f.OnError != nil {
		f.OnError(kind)
	}
}

func (f ListenerFuncs) UpdateTimeout() {
	if f.OnUpdateTimeout != nil {
		f.OnUpdateTimeout()
	}
}
