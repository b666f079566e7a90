package bridge

import (
	"encoding/json"
	"errors"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/bus"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
)

// Methods served by the responder.
const (
	StartTrackingMethod      = "startTracking"
	GetCurrentPositionMethod = "getCurrentPosition"
)

const (
	errorCodeUnavailable = 2
	errorTextUnavailable = "Position unavailable"
)

// Server is the bus side the responder serves on. *bus.Handle implements it.
type Server interface {
	Name() string
	RegisterMethod(method string, handler bus.MethodHandler) error
	Respond(req bus.Request, payload []byte) error
}

type trackingRequest struct {
	Subscribe bool `json:"subscribe"`
}

type subscriber struct {
	req     bus.Request
	oneShot bool
}

// Responder answers location service calls from the fixes of a FixTracker. Tracking subscribers get
// every new fix; position requests made without a fresh fix wait for the next one.
type Responder struct {
	server    Server
	tracker   *FixTracker
	maxFixAge time.Duration
	logger    zerolog.Logger

	subscribers cmap.ConcurrentMap[string, subscriber]
}

// NewResponder creates a responder. Fixes older than maxFixAge are not served from cache.
func NewResponder(server Server, tracker *FixTracker, maxFixAge time.Duration, logger zerolog.Logger) *Responder {
	return &Responder{
		server:      server,
		tracker:     tracker,
		maxFixAge:   maxFixAge,
		logger:      logger,
		subscribers: cmap.New[subscriber](),
	}
}

// Register serves the location methods and call cancellation on the bus.
func (r *Responder) Register() error {
	methods := map[string]bus.MethodHandler{
		StartTrackingMethod:      r.startTracking,
		GetCurrentPositionMethod: r.getCurrentPosition,
		bus.CancelMethod:         r.cancel,
	}
	for method, handler := range methods {
		if err := r.server.RegisterMethod(method, handler); err != nil {
			return err
		}
	}
	r.logger.Info().Str("service", r.server.Name()).Msg("Location methods registered")
	return nil
}

// Subscribers returns the number of callers waiting for fixes.
func (r *Responder) Subscribers() int {
	return r.subscribers.Count()
}

// Publish sends fix to every subscriber. Waiting position requests are answered and dropped.
func (r *Responder) Publish(fix Fix) {
	payload, err := json.Marshal(fix.Reply())
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode fix")
		return
	}

	for token, sub := range r.subscribers.Items() {
		if sub.oneShot {
			if _, ok := r.subscribers.Pop(token); !ok {
				continue
			}
		}
		r.respond(sub.req, payload)
	}
}

// Close answers every waiting caller with a failure and drops all subscribers.
func (r *Responder) Close() {
	for token, sub := range r.subscribers.Items() {
		if _, ok := r.subscribers.Pop(token); ok {
			r.respond(sub.req, unavailableReply(errors.New("service stopping")))
		}
	}
}

func (r *Responder) startTracking(req bus.Request) {
	var params trackingRequest
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &params); err != nil {
			r.logger.Warn().Err(err).Str("token", req.Token).Msg("Malformed startTracking request")
		}
	}

	if !params.Subscribe {
		r.answerOnce(req)
		return
	}

	r.subscribers.Set(req.Token, subscriber{req: req})
	r.logger.Debug().Str("token", req.Token).Str("sender", req.Sender).Msg("Tracking subscriber added")

	if fix, err := r.tracker.Latest(r.maxFixAge); err == nil {
		payload, _ := json.Marshal(fix.Reply())
		r.respond(req, payload)
	}
}

func (r *Responder) getCurrentPosition(req bus.Request) {
	r.answerOnce(req)
}

// answerOnce replies with the cached fix, or waits for the next one.
func (r *Responder) answerOnce(req bus.Request) {
	fix, err := r.tracker.Latest(r.maxFixAge)
	if err != nil {
		r.subscribers.Set(req.Token, subscriber{req: req, oneShot: true})
		r.logger.Debug().Err(err).Str("token", req.Token).Msg("Waiting for next fix")
		return
	}
	payload, err := json.Marshal(fix.Reply())
	if err != nil {
		r.respond(req, unavailableReply(err))
		return
	}
	r.respond(req, payload)
}

func (r *Responder) cancel(req bus.Request) {
	if _, ok := r.subscribers.Pop(req.Token); ok {
		r.logger.Debug().Str("token", req.Token).Msg("Subscriber cancelled")
	}
}

func (r *Responder) respond(req bus.Request, payload []byte) {
	if err := r.server.Respond(req, payload); err != nil {
		r.logger.Warn().Err(err).Str("token", req.Token).Msg("Failed to send reply")
	}
}

func unavailableReply(err error) []byte {
	payload, _ := json.Marshal(location.Reply{
		ReturnValue: false,
		ErrorCode:   errorCodeUnavailable,
		ErrorText:   errorTextUnavailable + ": " + err.Error(),
	})
	return payload
}
