// Package positioning adapts the LuneOS location service to the location.Source contract.
//
// All Adapter methods, listener callbacks and reply processing run on a single event loop; the
// adapter itself holds no locks.
package positioning

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/bus"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/mqtt"
)

const (
	// MinimumUpdateInterval is the shortest interval and request timeout the adapter accepts.
	MinimumUpdateInterval = 1000 * time.Millisecond

	// DefaultServiceURI addresses the location daemon.
	DefaultServiceURI = "luna://org.webosports.service.location"

	// ServiceNamePrefix prefixes the application name to form the adapter's bus name.
	ServiceNamePrefix = "qtpositioning_"

	supportedMethods = location.NonSatellitePositioningMethods

	startTrackingMethod      = "startTracking"
	getCurrentPositionMethod = "getCurrentPosition"
)

var (
	startTrackingPayload      = []byte(`{"subscribe":true}`)
	getCurrentPositionPayload = []byte(`{}`)
)

// Registrar registers the adapter on the bus under serviceName.
type Registrar func(serviceName string) (Caller, error)

// BusRegistrar returns a Registrar creating a bus handle on client.
func BusRegistrar(client mqtt.MQTTClient, logger zerolog.Logger, opts ...bus.Option) Registrar {
	return func(serviceName string) (Caller, error) {
		h, err := bus.RegisterService(client, serviceName, logger, opts...)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// ServiceName derives the bus name from the application name, defaulting to the executable name.
func ServiceName(applicationName string) string {
	if applicationName == "" {
		applicationName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
	}
	return ServiceNamePrefix + applicationName
}

// AdapterConfig configures an Adapter. Zero values select the defaults.
type AdapterConfig struct {
	ApplicationName string
	ServiceURI      string
	Clock           clock.Clock
}

type listenerEntry struct {
	id       int
	listener location.Listener
}

// Adapter is a location.Source backed by the location daemon.
type Adapter struct {
	serviceURI string
	poster     Poster
	clock      clock.Clock
	logger     zerolog.Logger

	caller Caller
	calls  *CallLifecycle
	timer  *RequestTimer

	listeners []listenerEntry
	nextID    int

	running      bool
	destroyed    bool
	streaming    *PendingCall
	request      *PendingCall
	lastPosition location.PositionReport
	lastError    location.ErrorKind
	preferred    location.PositioningMethods
	interval     time.Duration
}

var _ location.Source = (*Adapter)(nil)

// NewAdapter creates a stopped adapter and registers it on the bus. A registration failure is
// reported as UnknownSourceError to the given listeners; the adapter stays usable.
func NewAdapter(poster Poster, register Registrar, cfg AdapterConfig, logger zerolog.Logger, listeners ...location.Listener) *Adapter {
	if cfg.ServiceURI == "" {
		cfg.ServiceURI = DefaultServiceURI
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	a := &Adapter{
		serviceURI: strings.TrimSuffix(cfg.ServiceURI, "/"),
		poster:     poster,
		clock:      cfg.Clock,
		logger:     logger,
		preferred:  supportedMethods,
		interval:   MinimumUpdateInterval,
	}
	for _, l := range listeners {
		a.Subscribe(l)
	}
	a.timer = NewRequestTimer(a.clock, poster, a.requestTimeout)

	name := ServiceName(cfg.ApplicationName)
	caller, err := register(name)
	if err != nil {
		a.logger.Warn().Err(err).Str("service_name", name).Msg("Failed to register service handle")
		caller = nil
	}
	a.caller = caller
	a.calls = NewCallLifecycle(caller, poster, logger)
	if err != nil {
		a.fail()
	}
	return a
}

// Subscribe registers a listener and returns a function removing it.
func (a *Adapter) Subscribe(l location.Listener) func() {
	a.nextID++
	id := a.nextID
	a.listeners = append(a.listeners, listenerEntry{id: id, listener: l})
	return func() {
		for i, e := range a.listeners {
			if e.id == id {
				a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
				return
			}
		}
	}
}

// StartUpdates subscribes to streaming updates. A cached position is re-emitted on the next loop turn.
func (a *Adapter) StartUpdates() {
	if a.destroyed {
		a.logger.Warn().Msg("StartUpdates called on destroyed adapter")
		return
	}
	if a.running {
		a.logger.Debug().Msg("Adapter already running")
		return
	}
	a.running = true

	pc, err := a.calls.StartStreaming(a.uri(startTrackingMethod), startTrackingPayload, a.processReply)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to start tracking")
		a.fail()
	} else {
		a.streaming = pc
		a.logger.Info().Msg("Position updates started")
	}

	if a.lastPosition.IsValid() {
		cached := a.lastPosition
		a.poster.Post(func() { a.emitPosition(cached) })
	}
}

// StopUpdates cancels streaming and any pending request. It is idempotent.
func (a *Adapter) StopUpdates() {
	a.calls.Cancel(a.streaming)
	a.calls.Cancel(a.request)
	a.streaming, a.request = nil, nil

	if a.timer.IsArmed() {
		a.timer.Disarm()
	}
	if a.running {
		a.logger.Info().Msg("Position updates stopped")
	}
	a.running = false
}

// RequestUpdate asks the daemon for the current position. Requests made while one is pending are
// ignored; timeouts shorter than MinimumUpdateInterval time out immediately.
func (a *Adapter) RequestUpdate(timeout time.Duration) {
	if a.destroyed {
		a.logger.Warn().Msg("RequestUpdate called on destroyed adapter")
		return
	}
	if timeout != 0 && timeout < MinimumUpdateInterval {
		a.logger.Debug().Dur("timeout", timeout).Msg("Request timeout below minimum interval")
		a.emitTimeout()
		return
	}
	if a.timer.IsArmed() {
		a.logger.Debug().Msg("Request already pending, ignoring RequestUpdate")
		return
	}

	if timeout == 0 {
		timeout = MinimumUpdateInterval
	}
	a.timer.Arm(timeout)

	pc, err := a.calls.StartOneShot(a.uri(getCurrentPositionMethod), getCurrentPositionPayload, timeout, a.processReply)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to get current position")
		a.fail()
		return
	}
	a.request = pc
}

// Destroy cancels both calls regardless of state and releases the bus handle. The adapter is
// unusable afterwards.
func (a *Adapter) Destroy() {
	a.calls.Cancel(a.streaming)
	a.calls.Cancel(a.request)
	a.streaming, a.request = nil, nil
	a.timer.Disarm()
	a.running = false

	if !a.destroyed {
		if closer, ok := a.caller.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to close service handle")
			}
		}
	}
	a.destroyed = true
}

// IsRunning reports whether streaming updates were started.
func (a *Adapter) IsRunning() bool {
	return a.running
}

// LastKnownPosition returns the cached position. This source never has satellite fixes.
func (a *Adapter) LastKnownPosition(satelliteOnly bool) location.PositionReport {
	if satelliteOnly {
		return location.PositionReport{}
	}
	return a.lastPosition
}

func (a *Adapter) SupportedPositioningMethods() location.PositioningMethods {
	return supportedMethods
}

func (a *Adapter) PreferredPositioningMethods() location.PositioningMethods {
	return a.preferred
}

// SetPreferredPositioningMethods keeps the supported set whatever is asked for.
func (a *Adapter) SetPreferredPositioningMethods(methods location.PositioningMethods) {
	if methods != supportedMethods {
		a.logger.Debug().Uint32("requested", uint32(methods)).Msg("Only non-satellite positioning is supported")
	}
	a.preferred = supportedMethods
}

func (a *Adapter) UpdateInterval() time.Duration {
	return a.interval
}

// SetUpdateInterval stores the interval, raised to MinimumUpdateInterval if needed.
func (a *Adapter) SetUpdateInterval(interval time.Duration) {
	a.interval = max(interval, MinimumUpdateInterval)
}

func (a *Adapter) MinimumUpdateInterval() time.Duration {
	return MinimumUpdateInterval
}

// Error returns the last error reported.
func (a *Adapter) Error() location.ErrorKind {
	return a.lastError
}

func (a *Adapter) processReply(kind CallKind, payload []byte) {
	report, err := location.DecodeReply(payload, a.clock.Now())
	switch {
	case errors.Is(err, location.ErrInvalidFix):
		a.logger.Debug().Str("call", kind.String()).Msg("Dropping reply without a valid coordinate")
		return
	case err != nil:
		a.logger.Warn().Err(err).Str("call", kind.String()).Msg("Location service reply failed")
		a.fail()
		return
	}

	a.lastPosition = report
	if a.timer.IsArmed() {
		a.timer.Disarm()
	}
	a.emitPosition(report)
}

func (a *Adapter) requestTimeout() {
	a.logger.Debug().Msg("Position request timed out")
	a.emitTimeout()
}

func (a *Adapter) uri(method string) string {
	return a.serviceURI + "/" + method
}

func (a *Adapter) fail() {
	a.lastError = location.UnknownSourceError
	for _, e := range a.snapshot() {
		e.listener.Error(a.lastError)
	}
}

func (a *Adapter) emitPosition(report location.PositionReport) {
	for _, e := range a.snapshot() {
		e.listener.PositionUpdated(report)
	}
}

func (a *Adapter) emitTimeout() {
	for _, e := range a.snapshot() {
		e.listener.UpdateTimeout()
	}
}

func (a *Adapter) snapshot() []listenerEntry {
	return append([]listenerEntry(nil), a.listeners...)
}
